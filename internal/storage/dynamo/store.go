// Package dynamo is the DynamoDB RecordStore. Jobs live in a table keyed by
// owner_id/job_id and pieces in a table keyed by job_id/piece_id.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cuongbtq/jigsaw-be/internal/domain"
)

// batchWriteLimit is the most requests DynamoDB accepts in one BatchWriteItem
const batchWriteLimit = 25

// maxBatchAttempts bounds the resubmission of unprocessed batch items
const maxBatchAttempts = 5

// API is the subset of the DynamoDB client the store uses
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Config holds Store settings
type Config struct {
	JobsTable   string
	PiecesTable string
}

// Store handles job and piece records in DynamoDB
type Store struct {
	db          API
	jobsTable   string
	piecesTable string
	logger      *slog.Logger
}

// NewStore creates a new Store
func NewStore(db API, cfg *Config, logger *slog.Logger) *Store {
	return &Store{
		db:          db,
		jobsTable:   cfg.JobsTable,
		piecesTable: cfg.PiecesTable,
		logger:      logger,
	}
}

func jobKey(ownerID, jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"owner_id": &types.AttributeValueMemberS{Value: ownerID},
		"job_id":   &types.AttributeValueMemberS{Value: jobID},
	}
}

func (s *Store) PutJob(ctx context.Context, job *domain.Job) error {
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put job", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.jobsTable),
		Item:      item,
	})
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.jobsTable),
		Key:            jobKey(ownerID, jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get job", err)
	}
	if out.Item == nil {
		return nil, domain.E(domain.KindNotFound, "get job", domain.ErrJobNotFound)
	}

	var job domain.Job
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "get job", err)
	}
	return &job, nil
}

func (s *Store) UpdateJob(ctx context.Context, ownerID, jobID string, update domain.JobUpdate) error {
	expr, err := buildUpdateExpression(update)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "update job", err)
	}
	if expr == nil {
		return nil
	}

	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.jobsTable),
		Key:                       jobKey(ownerID, jobID),
		ConditionExpression:       aws.String("attribute_exists(job_id)"),
		UpdateExpression:          aws.String(expr.expression),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return domain.E(domain.KindNotFound, "update job", domain.ErrJobNotFound)
		}
		return domain.E(domain.KindStorageFailure, "update job", err)
	}
	return nil
}

type updateExpression struct {
	expression string
	names      map[string]string
	values     map[string]types.AttributeValue
}

// buildUpdateExpression renders the set fields of update as a SET
// expression. Every attribute goes through a #name placeholder since status
// and rows are reserved words. It returns nil when nothing is set.
func buildUpdateExpression(update domain.JobUpdate) (*updateExpression, error) {
	expr := &updateExpression{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
	var sets []string

	add := func(attr string, value interface{}) error {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", attr, err)
		}
		sets = append(sets, fmt.Sprintf("#%s = :%s", attr, attr))
		expr.names["#"+attr] = attr
		expr.values[":"+attr] = av
		return nil
	}

	fields := []struct {
		attr  string
		set   bool
		value func() interface{}
	}{
		{"status", update.Status != nil, func() interface{} { return *update.Status }},
		{"rows", update.Rows != nil, func() interface{} { return *update.Rows }},
		{"cols", update.Cols != nil, func() interface{} { return *update.Cols }},
		{"total_pieces", update.TotalPieces != nil, func() interface{} { return *update.TotalPieces }},
		{"error_message", update.ErrorMessage != nil, func() interface{} { return *update.ErrorMessage }},
		{"file_name", update.FileName != nil, func() interface{} { return *update.FileName }},
		{"source_object_key", update.SourceObjectKey != nil, func() interface{} { return *update.SourceObjectKey }},
		{"updated_at", !update.UpdatedAt.IsZero(), func() interface{} { return update.UpdatedAt }},
	}

	for _, f := range fields {
		if !f.set {
			continue
		}
		if err := add(f.attr, f.value()); err != nil {
			return nil, err
		}
	}

	if len(sets) == 0 {
		return nil, nil
	}
	expr.expression = "SET " + strings.Join(sets, ", ")
	return expr, nil
}

func (s *Store) ListJobs(ctx context.Context, ownerID string) ([]domain.Job, error) {
	items, err := s.query(ctx, s.jobsTable, "owner_id", ownerID)
	if err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list jobs", err)
	}

	jobs := []domain.Job{}
	if err := attributevalue.UnmarshalListOfMaps(items, &jobs); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list jobs", err)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].JobID > jobs[j].JobID
	})
	return jobs, nil
}

func (s *Store) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.jobsTable),
		Key:       jobKey(ownerID, jobID),
	})
	if err != nil {
		return domain.E(domain.KindStorageFailure, "delete job", err)
	}
	return nil
}

func (s *Store) PutPiece(ctx context.Context, piece *domain.Piece) error {
	item, err := attributevalue.MarshalMap(piece)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put piece", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.piecesTable),
		Item:      item,
	})
	if err != nil {
		return domain.E(domain.KindStorageFailure, "put piece", err)
	}
	return nil
}

func (s *Store) ListPieces(ctx context.Context, jobID string) ([]domain.Piece, error) {
	items, err := s.query(ctx, s.piecesTable, "job_id", jobID)
	if err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list pieces", err)
	}

	pieces := []domain.Piece{}
	if err := attributevalue.UnmarshalListOfMaps(items, &pieces); err != nil {
		return nil, domain.E(domain.KindStorageFailure, "list pieces", err)
	}

	sort.Slice(pieces, func(i, j int) bool {
		a, b := pieces[i], pieces[j]
		if a.CorrectRow != b.CorrectRow {
			return a.CorrectRow < b.CorrectRow
		}
		if a.CorrectCol != b.CorrectCol {
			return a.CorrectCol < b.CorrectCol
		}
		return a.PieceID < b.PieceID
	})
	return pieces, nil
}

// DeletePieces removes every piece of jobID in batches of 25
func (s *Store) DeletePieces(ctx context.Context, jobID string) error {
	items, err := s.query(ctx, s.piecesTable, "job_id", jobID)
	if err != nil {
		return domain.E(domain.KindStorageFailure, "delete pieces", err)
	}

	for start := 0; start < len(items); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(items))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"job_id":   item["job_id"],
						"piece_id": item["piece_id"],
					},
				},
			})
		}

		if err := s.batchWrite(ctx, requests); err != nil {
			return domain.E(domain.KindStorageFailure, "delete pieces", err)
		}
	}

	return nil
}

func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.piecesTable: requests}

	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		out, err := s.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}

		s.logger.Warn("Resubmitting unprocessed batch items",
			slog.Int("attempt", attempt),
			slog.Int("unprocessed", len(out.UnprocessedItems[s.piecesTable])),
		)
		pending = out.UnprocessedItems
	}

	return fmt.Errorf("batch write left %d items unprocessed", len(pending[s.piecesTable]))
}

// query reads every item under one partition key, following pagination
func (s *Store) query(ctx context.Context, table, keyAttr, keyValue string) ([]map[string]types.AttributeValue, error) {
	paginator := dynamodb.NewQueryPaginator(s.db, &dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": keyAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: keyValue},
		},
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// EnsureTables creates the jobs and pieces tables when they do not exist.
// It is meant for local DynamoDB; production tables are provisioned outside
// the service.
func (s *Store) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name, partitionKey, sortKey string
	}{
		{s.jobsTable, "owner_id", "job_id"},
		{s.piecesTable, "job_id", "piece_id"},
	}

	for _, t := range tables {
		_, err := s.db.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName:   aws.String(t.name),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(t.partitionKey), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(t.sortKey), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(t.partitionKey), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(t.sortKey), KeyType: types.KeyTypeRange},
			},
		})
		if err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				continue
			}
			s.logger.Error("Failed to create table",
				slog.String("table", t.name),
				slog.String("error", err.Error()),
			)
			return domain.E(domain.KindStorageFailure, "ensure tables", err)
		}
		s.logger.Info("Created table", slog.String("table", t.name))
	}

	return nil
}
