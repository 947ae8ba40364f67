// Re-run archetype correction over every stored scenario and write back the
// ones whose classification changed.
//
// Usage:
//
//	go run ./scripts/reclassify-archetypes --dry-run          # preview changes
//	go run ./scripts/reclassify-archetypes                    # apply changes
//	go run ./scripts/reclassify-archetypes --table my-table   # custom table name
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/apresai/roleplay/internal/observability"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/apresai/roleplay/internal/store"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

func main() {
	tableName := flag.String("table", "roleplay-prod", "DynamoDB table name")
	region := flag.String("region", "us-east-1", "AWS region")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing")
	flag.Parse()

	ctx := context.Background()
	cfg, err := observability.LoadAWSConfig(ctx, *region)
	if err != nil {
		log.Fatal(err)
	}
	docs := store.NewDynamo(dynamodb.NewFromConfig(cfg), *tableName)

	fmt.Printf("Table: %s | Dry run: %v\n", *tableName, *dryRun)
	stats, err := reclassify(ctx, docs, *dryRun, log.Writer())
	if err != nil {
		log.Fatalf("reclassify: %v", err)
	}

	fmt.Printf("\nDone. Scanned: %d, Changed: %d, Failed: %d\n", stats.scanned, stats.changed, stats.failed)
	if *dryRun {
		fmt.Println("(dry run, no changes written)")
	}
}

type stats struct {
	scanned, changed, failed int
}

func reclassify(ctx context.Context, docs store.Store, dryRun bool, out io.Writer) (stats, error) {
	var s stats
	all, err := docs.ListScenarios(ctx)
	if err != nil {
		return s, err
	}
	for _, td := range all {
		s.scanned++
		before := td.ArchetypeClassification.PrimaryArchetype
		if !scenario.Correct(td) {
			continue
		}
		s.changed++

		action := "UPDATE"
		if dryRun {
			action = "DRY-RUN"
		}
		fmt.Fprintf(out, "[%s] %s: %s -> %s (%s)\n", action, td.ID, orNone(before),
			td.ArchetypeClassification.PrimaryArchetype, td.ArchetypeClassification.Reason)
		if dryRun {
			continue
		}
		if err := docs.PutScenario(ctx, td); err != nil {
			fmt.Fprintf(out, "ERROR updating %s: %v\n", td.ID, err)
			s.failed++
		}
	}
	return s, nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
