package dynamo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cuongbtq/jigsaw-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps items per table and understands the narrow set of
// expressions the store sends.
type fakeDynamo struct {
	mu         sync.Mutex
	keys       map[string][2]string
	tables     map[string]map[string]map[string]types.AttributeValue
	pageSize   int
	unprocess  int
	batchCalls int
	failWith   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		keys: map[string][2]string{
			"jobs":   {"owner_id", "job_id"},
			"pieces": {"job_id", "piece_id"},
		},
		tables:   map[string]map[string]map[string]types.AttributeValue{},
		pageSize: 2,
	}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) itemKey(table string, item map[string]types.AttributeValue) string {
	k := f.keys[table]
	return str(item[k[0]]) + "|" + str(item[k[1]])
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if f.tables[name] == nil {
		f.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return f.tables[name]
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.table(*in.TableName)[f.itemKey(*in.TableName, in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &dynamodb.GetItemOutput{Item: f.table(*in.TableName)[f.itemKey(*in.TableName, in.Key)]}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.table(*in.TableName)[f.itemKey(*in.TableName, in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	for _, attr := range in.ExpressionAttributeNames {
		item[attr] = in.ExpressionAttributeValues[":"+attr]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table(*in.TableName), f.itemKey(*in.TableName, in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}

	attr := in.ExpressionAttributeNames["#pk"]
	value := str(in.ExpressionAttributeValues[":pk"])

	var matched []string
	for key, item := range f.table(*in.TableName) {
		if str(item[attr]) == value {
			matched = append(matched, key)
		}
	}
	sortStrings(matched)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := f.itemKey(*in.TableName, in.ExclusiveStartKey)
		for i, key := range matched {
			if key == last {
				start = i + 1
			}
		}
	}
	end := min(start+f.pageSize, len(matched))

	out := &dynamodb.QueryOutput{}
	for _, key := range matched[start:end] {
		out.Items = append(out.Items, f.table(*in.TableName)[key])
	}
	if end < len(matched) {
		out.LastEvaluatedKey = out.Items[len(out.Items)-1]
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++

	out := &dynamodb.BatchWriteItemOutput{}
	for table, requests := range in.RequestItems {
		for i, req := range requests {
			if f.unprocess > 0 && i == len(requests)-1 {
				f.unprocess--
				out.UnprocessedItems = map[string][]types.WriteRequest{table: {req}}
				continue
			}
			delete(f.table(table), f.itemKey(table, req.DeleteRequest.Key))
		}
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[*in.TableName]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists")}
	}
	f.table(*in.TableName)
	return &dynamodb.CreateTableOutput{}, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func newTestStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(fake, &Config{JobsTable: "jobs", PiecesTable: "pieces"}, logger), fake
}

func TestStore_JobLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.GetJob(ctx, "u1", "j1")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	require.NoError(t, store.PutJob(ctx, &domain.Job{
		OwnerID:     "u1",
		JobID:       "j1",
		DisplayName: "puzzle",
		PieceCount:  300,
		Status:      domain.JobStatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}))

	updated := created.Add(time.Minute)
	require.NoError(t, store.UpdateJob(ctx, "u1", "j1", domain.JobUpdate{
		Status:      domain.Ptr(domain.JobStatusCompleted),
		Rows:        domain.Ptr(15),
		Cols:        domain.Ptr(20),
		TotalPieces: domain.Ptr(300),
		UpdatedAt:   updated,
	}))

	job, err := store.GetJob(ctx, "u1", "j1")
	require.NoError(t, err)
	assert.Equal(t, "puzzle", job.DisplayName)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 15, job.Rows)
	assert.Equal(t, 20, job.Cols)
	assert.Equal(t, 300, job.TotalPieces)
	assert.True(t, updated.Equal(job.UpdatedAt))
	assert.True(t, created.Equal(job.CreatedAt))

	err = store.UpdateJob(ctx, "u1", "missing", domain.JobUpdate{Status: domain.Ptr(domain.JobStatusFailed)})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	require.NoError(t, store.DeleteJob(ctx, "u1", "j1"))
	_, err = store.GetJob(ctx, "u1", "j1")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestStore_ListJobsFollowsPages(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.PutJob(ctx, &domain.Job{
			OwnerID:   "u1",
			JobID:     fmt.Sprintf("j%d", i),
			Status:    domain.JobStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.PutJob(ctx, &domain.Job{OwnerID: "u2", JobID: "other", CreatedAt: base}))

	jobs, err := store.ListJobs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, jobs, 5)
	assert.Equal(t, "j4", jobs[0].JobID)
	assert.Equal(t, "j0", jobs[4].JobID)
}

func TestStore_Pieces(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		require.NoError(t, store.PutPiece(ctx, &domain.Piece{
			OwnerID:    "u1",
			JobID:      "j1",
			PieceID:    fmt.Sprintf("p%02d", i),
			Row:        i / 6,
			Col:        i % 6,
			CorrectRow: i / 6,
			CorrectCol: i % 6,
			ObjectKey:  fmt.Sprintf("pieces/j1/p%02d.jpg", i),
		}))
	}
	require.NoError(t, store.PutPiece(ctx, &domain.Piece{JobID: "j2", PieceID: "x"}))

	pieces, err := store.ListPieces(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, pieces, 30)
	assert.Equal(t, 0, pieces[0].CorrectRow)
	assert.Equal(t, 4, pieces[29].CorrectRow)
	assert.Equal(t, 5, pieces[29].CorrectCol)

	fake.unprocess = 1
	require.NoError(t, store.DeletePieces(ctx, "j1"))
	// two chunks plus one resubmission
	assert.Equal(t, 3, fake.batchCalls)

	pieces, err = store.ListPieces(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, pieces)

	pieces, err = store.ListPieces(ctx, "j2")
	require.NoError(t, err)
	assert.Len(t, pieces, 1)
}

func TestStore_BackendFailure(t *testing.T) {
	store, fake := newTestStore(t)
	fake.failWith = errors.New("throttled")
	ctx := context.Background()

	err := store.PutJob(ctx, &domain.Job{OwnerID: "u1", JobID: "j1"})
	assert.True(t, domain.IsKind(err, domain.KindStorageFailure))

	_, err = store.GetJob(ctx, "u1", "j1")
	assert.True(t, domain.IsKind(err, domain.KindStorageFailure))

	_, err = store.ListPieces(ctx, "j1")
	assert.True(t, domain.IsKind(err, domain.KindStorageFailure))
}

func TestBuildUpdateExpression(t *testing.T) {
	expr, err := buildUpdateExpression(domain.JobUpdate{
		Status:       domain.Ptr(domain.JobStatusFailed),
		ErrorMessage: domain.Ptr("boom"),
	})
	require.NoError(t, err)
	require.NotNil(t, expr)

	assert.Equal(t, "SET #status = :status, #error_message = :error_message", expr.expression)
	assert.Equal(t, map[string]string{"#status": "status", "#error_message": "error_message"}, expr.names)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "failed"}, expr.values[":status"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "boom"}, expr.values[":error_message"])

	expr, err = buildUpdateExpression(domain.JobUpdate{})
	require.NoError(t, err)
	assert.Nil(t, expr)
}

func TestStore_EnsureTables(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureTables(ctx))
	assert.Contains(t, fake.tables, "jobs")
	assert.Contains(t, fake.tables, "pieces")

	require.NoError(t, store.EnsureTables(ctx))
}
