package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo understands exactly the update expression upsert issues and
// serves GSI1 queries one item per page so pagination is exercised.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	seq   int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[str(in.Key["PK"])]}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pk := str(in.Key["PK"])
	item, ok := f.items[pk]
	if !ok {
		item = map[string]types.AttributeValue{"PK": in.Key["PK"], "SK": in.Key["SK"]}
		f.items[pk] = item
	}
	v := in.ExpressionAttributeValues
	item["GSI1PK"] = v[":gpk"]
	item["docType"] = v[":type"]
	item["docId"] = v[":id"]
	item["body"] = v[":body"]
	item["title"] = v[":title"]
	item["archetype"] = v[":arch"]
	item["parentId"] = v[":par"]
	item["updatedAt"] = v[":now"]
	if _, ok := item["createdAt"]; !ok {
		item["createdAt"] = v[":now"]
	}
	if _, ok := item["GSI1SK"]; !ok {
		// Timestamps can collide within a test; a counter keeps order exact.
		f.seq++
		item["GSI1SK"] = &types.AttributeValueMemberS{Value: fmt.Sprintf("%08d", f.seq)}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := str(in.ExpressionAttributeValues[":pk"])
	var matched []map[string]types.AttributeValue
	for _, item := range f.items {
		if str(item["GSI1PK"]) == want {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return str(matched[i]["GSI1SK"]) < str(matched[j]["GSI1SK"]) })

	start := 0
	if in.ExclusiveStartKey != nil {
		after := str(in.ExclusiveStartKey["PK"])
		for i, item := range matched {
			if str(item["PK"]) == after {
				start = i + 1
			}
		}
	}
	if start >= len(matched) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := &dynamodb.QueryOutput{Items: matched[start : start+1]}
	if start+1 < len(matched) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": matched[start]["PK"]}
	}
	return out, nil
}
