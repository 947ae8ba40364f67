package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const (
	docScenario = "scenario"
	docPersona  = "persona"
	docPrompt   = "prompt"

	metadataSK = "METADATA"
	gsiName    = "GSI1"
)

// docItem is the single-table record shape. The document itself travels as
// JSON in Body so the persona's category map and the scenario's lenient
// list types round-trip exactly.
type docItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	DocType   string `dynamodbav:"docType"`
	DocID     string `dynamodbav:"docId"`
	ParentID  string `dynamodbav:"parentId,omitempty"`
	Title     string `dynamodbav:"title,omitempty"`
	Archetype string `dynamodbav:"archetype,omitempty"`
	Body      string `dynamodbav:"body"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

// Dynamo stores documents in one DynamoDB table keyed by PK/SK with a GSI1
// for listing. Scenarios list under GSI1PK=SCENARIOS; personas and prompts
// list under their scenario.
type Dynamo struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamo creates a DynamoDB-backed store.
func NewDynamo(client DynamoAPI, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName, now: time.Now}
}

func docPK(docType, id string) string {
	switch docType {
	case docScenario:
		return "SCENARIO#" + id
	case docPersona:
		return "PERSONA#" + id
	default:
		return "PROMPT#" + id
	}
}

func listPK(docType, scenarioID string) string {
	switch docType {
	case docScenario:
		return "SCENARIOS"
	case docPersona:
		return "SCENARIO#" + scenarioID + "#PERSONAS"
	default:
		return "SCENARIO#" + scenarioID + "#PROMPTS"
	}
}

func itemKey(docType, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: docPK(docType, id)},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// upsert writes the document, keeping createdAt and the GSI1 sort key from
// the first write so list order is stable across updates.
func (d *Dynamo) upsert(ctx context.Context, docType, id, parent, title, arch string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", docType, err)
	}
	now := d.now().UTC().Format(time.RFC3339Nano)

	values := map[string]types.AttributeValue{
		":gpk":   &types.AttributeValueMemberS{Value: listPK(docType, parent)},
		":gsk":   &types.AttributeValueMemberS{Value: now + "#" + id},
		":type":  &types.AttributeValueMemberS{Value: docType},
		":id":    &types.AttributeValueMemberS{Value: id},
		":body":  &types.AttributeValueMemberS{Value: string(body)},
		":now":   &types.AttributeValueMemberS{Value: now},
		":title": &types.AttributeValueMemberS{Value: title},
		":arch":  &types.AttributeValueMemberS{Value: arch},
		":par":   &types.AttributeValueMemberS{Value: parent},
	}
	expr := "SET GSI1PK = :gpk, GSI1SK = if_not_exists(GSI1SK, :gsk), docType = :type, docId = :id, " +
		"body = :body, title = :title, archetype = :arch, parentId = :par, " +
		"createdAt = if_not_exists(createdAt, :now), updatedAt = :now"

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &d.tableName,
		Key:                       itemKey(docType, id),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", docType, err)
	}
	return nil
}

func (d *Dynamo) fetch(ctx context.Context, docType, id string, v any) error {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tableName,
		Key:       itemKey(docType, id),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", docType, err)
	}
	if out.Item == nil {
		return fmt.Errorf("get %s %s: %w", docType, id, ErrNotFound)
	}
	var item docItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return fmt.Errorf("unmarshal %s: %w", docType, err)
	}
	if err := json.Unmarshal([]byte(item.Body), v); err != nil {
		return fmt.Errorf("decode %s %s: %w", docType, id, err)
	}
	return nil
}

// list walks every GSI1 page for the given partition in creation order.
func (d *Dynamo) list(ctx context.Context, docType, scenarioID string, each func(body []byte) error) error {
	p := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              &d.tableName,
		IndexName:              aws.String(gsiName),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: listPK(docType, scenarioID)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", docType, err)
		}
		var items []docItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return fmt.Errorf("unmarshal %s list: %w", docType, err)
		}
		for _, it := range items {
			if err := each([]byte(it.Body)); err != nil {
				return fmt.Errorf("decode %s %s: %w", docType, it.DocID, err)
			}
		}
	}
	return nil
}

func (d *Dynamo) PutScenario(ctx context.Context, td *scenario.TemplateData) error {
	ensureID(&td.ID)
	return d.upsert(ctx, docScenario, td.ID, "", td.GeneralInfo.Title,
		td.ArchetypeClassification.PrimaryArchetype, td)
}

func (d *Dynamo) GetScenario(ctx context.Context, id string) (*scenario.TemplateData, error) {
	var td scenario.TemplateData
	if err := d.fetch(ctx, docScenario, id, &td); err != nil {
		return nil, err
	}
	return &td, nil
}

func (d *Dynamo) ListScenarios(ctx context.Context) ([]*scenario.TemplateData, error) {
	var out []*scenario.TemplateData
	err := d.list(ctx, docScenario, "", func(body []byte) error {
		var td scenario.TemplateData
		if err := json.Unmarshal(body, &td); err != nil {
			return err
		}
		out = append(out, &td)
		return nil
	})
	return out, err
}

func (d *Dynamo) PutPersona(ctx context.Context, p *persona.Instance) error {
	ensureID(&p.ID)
	return d.upsert(ctx, docPersona, p.ID, p.ScenarioID, p.Name, p.Archetype, p)
}

func (d *Dynamo) GetPersona(ctx context.Context, id string) (*persona.Instance, error) {
	var p persona.Instance
	if err := d.fetch(ctx, docPersona, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *Dynamo) ListPersonas(ctx context.Context, scenarioID string) ([]*persona.Instance, error) {
	var out []*persona.Instance
	err := d.list(ctx, docPersona, scenarioID, func(body []byte) error {
		var p persona.Instance
		if err := json.Unmarshal(body, &p); err != nil {
			return err
		}
		out = append(out, &p)
		return nil
	})
	return out, err
}

func (d *Dynamo) PutPrompt(ctx context.Context, rec *PromptRecord) error {
	ensureID(&rec.ID)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.now().UTC()
	}
	return d.upsert(ctx, docPrompt, rec.ID, rec.ScenarioID, rec.Mode, "", rec)
}

func (d *Dynamo) GetPrompt(ctx context.Context, id string) (*PromptRecord, error) {
	var rec PromptRecord
	if err := d.fetch(ctx, docPrompt, id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
