package dynamostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/eunmann/s3-chunkproc/pkg/statestore"
)

// fakeAPI serves Query pages in order, linking them with LastEvaluatedKey.
type fakeAPI struct {
	pages    []*dynamodb.QueryOutput
	queries  []*dynamodb.QueryInput
	puts     []*dynamodb.PutItemInput
	queryErr error
	putErr   error
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	idx := len(f.queries)
	f.queries = append(f.queries, in)
	if idx >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	out := *f.pages[idx]
	if idx < len(f.pages)-1 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			AttrPartitionKey: &types.AttributeValueMemberS{Value: "cursor"},
		}
	}
	return &out, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, nil
}

func item(msg string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrMessage: &types.AttributeValueMemberS{Value: msg},
	}
}

func strAttr(t *testing.T, av types.AttributeValue) string {
	t.Helper()
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		t.Fatalf("attribute %T is not a string", av)
	}
	return s.Value
}

func TestQueryByKind_Paginates(t *testing.T) {
	api := &fakeAPI{pages: []*dynamodb.QueryOutput{
		{Count: 2, Items: []map[string]types.AttributeValue{item("b/k1"), item("b/k2")}},
		{Count: 1, Items: []map[string]types.AttributeValue{item("b/k3")}},
	}}
	s := NewWithAPI(api)

	res, err := s.QueryByKind(context.Background(), "tbl", "OWNER#o#EXECUTION_ID#e", statestore.KindReport)
	if err != nil {
		t.Fatalf("QueryByKind: %v", err)
	}
	if res.Count != 3 {
		t.Errorf("Count = %d, want 3", res.Count)
	}
	if len(res.Messages) != 3 || res.Messages[2] != "b/k3" {
		t.Errorf("Messages = %v", res.Messages)
	}
	if len(api.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(api.queries))
	}

	q := api.queries[0]
	if aws.ToString(q.TableName) != "tbl" {
		t.Errorf("TableName = %q", aws.ToString(q.TableName))
	}
	if aws.ToString(q.KeyConditionExpression) != "PartitionKey = :pk" {
		t.Errorf("KeyConditionExpression = %q", aws.ToString(q.KeyConditionExpression))
	}
	if aws.ToString(q.FilterExpression) != "EventType = :et" {
		t.Errorf("FilterExpression = %q", aws.ToString(q.FilterExpression))
	}
	if got := strAttr(t, q.ExpressionAttributeValues[":et"]); got != "Report" {
		t.Errorf(":et = %q, want Report", got)
	}
	if got := strAttr(t, q.ExpressionAttributeValues[":pk"]); got != "OWNER#o#EXECUTION_ID#e" {
		t.Errorf(":pk = %q", got)
	}
	if q.Select != "" {
		t.Errorf("Select = %q, want default", q.Select)
	}
	if api.queries[1].ExclusiveStartKey == nil {
		t.Error("second page query missing ExclusiveStartKey")
	}
}

func TestQueryByKind_CountOnly(t *testing.T) {
	api := &fakeAPI{pages: []*dynamodb.QueryOutput{{Count: 4}, {Count: 3}}}
	s := NewWithAPI(api)

	res, err := s.QueryByKind(context.Background(), "tbl", "pk", statestore.KindReport, statestore.CountOnly())
	if err != nil {
		t.Fatalf("QueryByKind: %v", err)
	}
	if res.Count != 7 || res.Messages != nil {
		t.Errorf("res = %+v, want count 7 with no messages", res)
	}
	if api.queries[0].Select != types.SelectCount {
		t.Errorf("Select = %q, want COUNT", api.queries[0].Select)
	}
}

func TestQueryByKind_MalformedItem(t *testing.T) {
	api := &fakeAPI{pages: []*dynamodb.QueryOutput{{
		Count: 1,
		Items: []map[string]types.AttributeValue{{AttrMessage: &types.AttributeValueMemberN{Value: "1"}}},
	}}}

	_, err := NewWithAPI(api).QueryByKind(context.Background(), "tbl", "pk", statestore.KindCount)
	if !errors.Is(err, ErrMalformedItem) {
		t.Errorf("err = %v, want ErrMalformedItem", err)
	}
}

func TestQueryByKind_PropagatesError(t *testing.T) {
	boom := errors.New("throttled")
	_, err := NewWithAPI(&fakeAPI{queryErr: boom}).QueryByKind(context.Background(), "tbl", "pk", statestore.KindCount)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped throttled", err)
	}
}

func TestPut(t *testing.T) {
	api := &fakeAPI{}
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := NewWithAPI(api).Put(context.Background(), "tbl", statestore.Record{
		PartitionKey: "pk",
		Kind:         statestore.KindCount,
		Timestamp:    ts,
		Message:      "10",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(api.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(api.puts))
	}

	it := api.puts[0].Item
	if aws.ToString(api.puts[0].TableName) != "tbl" {
		t.Errorf("TableName = %q", aws.ToString(api.puts[0].TableName))
	}
	want := map[string]string{
		AttrPartitionKey: "pk",
		AttrEventType:    "Count",
		AttrDateTime:     "2024-05-01T12:00:00Z",
		AttrMessage:      "10",
	}
	for k, v := range want {
		if got := strAttr(t, it[k]); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestPut_SameTimestampSharesKey(t *testing.T) {
	api := &fakeAPI{}
	s := NewWithAPI(api)
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	for _, msg := range []string{"b/k1", "b/k2"} {
		rec := statestore.Record{PartitionKey: "pk", Kind: statestore.KindReport, Timestamp: ts, Message: msg}
		if err := s.Put(context.Background(), "tbl", rec); err != nil {
			t.Fatalf("Put %s: %v", msg, err)
		}
	}
	if len(api.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(api.puts))
	}
	for _, attr := range []string{AttrPartitionKey, AttrDateTime} {
		first := strAttr(t, api.puts[0].Item[attr])
		second := strAttr(t, api.puts[1].Item[attr])
		if first != second {
			t.Errorf("%s differs: %q vs %q", attr, first, second)
		}
	}

	// Nanosecond precision keeps distinct instants apart.
	next := statestore.Record{PartitionKey: "pk", Kind: statestore.KindReport, Timestamp: ts.Add(time.Nanosecond), Message: "b/k3"}
	if err := s.Put(context.Background(), "tbl", next); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if strAttr(t, api.puts[2].Item[AttrDateTime]) == strAttr(t, api.puts[0].Item[AttrDateTime]) {
		t.Error("DateTime of records 1ns apart collided")
	}
}

func TestPut_PropagatesError(t *testing.T) {
	boom := errors.New("denied")
	err := NewWithAPI(&fakeAPI{putErr: boom}).Put(context.Background(), "tbl", statestore.Record{Kind: statestore.KindReport})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped denied", err)
	}
}
