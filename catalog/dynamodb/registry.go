// Package dynamodb commits catalog documents through DynamoDB.
//
// Document content lives in an underlying catalog.Store, typically S3, that
// lacks compare-and-swap. DynamoDB records which object holds each version
// and its conditional writes let only one writer commit a given version.
//
// Table schema:
//   - Partition key: name (string) - the document name
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name kvsearch-catalog \
//	  --attribute-definitions AttributeName=name,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=name,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/hupe1980/kvsearch/catalog"
)

// Client is the interface for DynamoDB operations.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Registry implements catalog.Store and catalog.Committer.
type Registry struct {
	content catalog.Store
	client  Client
	table   string
}

var (
	_ catalog.Store     = (*Registry)(nil)
	_ catalog.Committer = (*Registry)(nil)
)

// New creates a registry that keeps document content in content and commit
// records in the DynamoDB table.
func New(content catalog.Store, client Client, table string) *Registry {
	return &Registry{content: content, client: client, table: table}
}

type record struct {
	version uint64
	object  string
}

// versions returns the committed versions of name, newest first. limit 0
// returns all.
func (r *Registry) versions(ctx context.Context, name string, limit int32) ([]record, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("#n = :name"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name": &types.AttributeValueMemberS{Value: name},
		},
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	var out []record
	for {
		resp, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: query %s: %w", name, err)
		}
		for _, item := range resp.Items {
			rec, err := parseRecord(item)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		if len(resp.LastEvaluatedKey) == 0 || limit > 0 && len(out) >= int(limit) {
			return out, nil
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

func parseRecord(item map[string]types.AttributeValue) (record, error) {
	v, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return record{}, errors.New("dynamodb: invalid version attribute")
	}
	o, ok := item["object"].(*types.AttributeValueMemberS)
	if !ok {
		return record{}, errors.New("dynamodb: invalid object attribute")
	}
	version, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil {
		return record{}, fmt.Errorf("dynamodb: parse version: %w", err)
	}
	return record{version: version, object: o.Value}, nil
}

func (r *Registry) latest(ctx context.Context, name string) (record, bool, error) {
	recs, err := r.versions(ctx, name, 1)
	if err != nil || len(recs) == 0 {
		return record{}, false, err
	}
	return recs[0], true, nil
}

// Versions returns the committed versions of name, oldest first.
func (r *Registry) Versions(ctx context.Context, name string) ([]uint64, error) {
	recs, err := r.versions(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(recs))
	for i, rec := range recs {
		out[len(recs)-1-i] = rec.version
	}
	return out, nil
}

// Get opens the latest committed version of name.
func (r *Registry) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	rec, ok, err := r.latest(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return r.content.Get(ctx, rec.object)
}

// Put commits data as the next version of name.
func (r *Registry) Put(ctx context.Context, name string, data []byte) error {
	rec, _, err := r.latest(ctx, name)
	if err != nil {
		return err
	}
	return r.commit(ctx, name, rec.version+1, data)
}

// Commit implements catalog.Committer.
func (r *Registry) Commit(ctx context.Context, name string, prev uint64, data []byte) error {
	rec, _, err := r.latest(ctx, name)
	if err != nil {
		return err
	}
	if rec.version != prev {
		return catalog.ErrConflict
	}
	return r.commit(ctx, name, prev+1, data)
}

func (r *Registry) commit(ctx context.Context, name string, version uint64, data []byte) error {
	// Every attempt writes its own object, so a losing writer never
	// overwrites the content of the winner.
	object := fmt.Sprintf("%s.v%d-%s", name, version, uuid.NewString())
	if err := r.content.Put(ctx, object, data); err != nil {
		return err
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]types.AttributeValue{
			"name":    &types.AttributeValueMemberS{Value: name},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
			"object":  &types.AttributeValueMemberS{Value: object},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err == nil {
		return nil
	}

	_ = r.content.Delete(ctx, object)
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return catalog.ErrConflict
	}
	return fmt.Errorf("dynamodb: commit %s version %d: %w", name, version, err)
}

// Delete removes every version of name.
func (r *Registry) Delete(ctx context.Context, name string) error {
	recs, err := r.versions(ctx, name, 0)
	if err != nil {
		return err
	}
	return r.remove(ctx, name, recs)
}

// Prune removes all but the newest keep versions of name.
func (r *Registry) Prune(ctx context.Context, name string, keep int) error {
	recs, err := r.versions(ctx, name, 0)
	if err != nil {
		return err
	}
	if keep < 1 {
		keep = 1
	}
	if len(recs) <= keep {
		return nil
	}
	return r.remove(ctx, name, recs[keep:])
}

func (r *Registry) remove(ctx context.Context, name string, recs []record) error {
	for _, rec := range recs {
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.table),
			Key: map[string]types.AttributeValue{
				"name":    &types.AttributeValueMemberS{Value: name},
				"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(rec.version, 10)},
			},
		})
		if err != nil {
			return fmt.Errorf("dynamodb: delete %s version %d: %w", name, rec.version, err)
		}
		if err := r.content.Delete(ctx, rec.object); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of documents with the prefix that have content
// objects.
func (r *Registry) List(ctx context.Context, prefix string) ([]string, error) {
	objects, err := r.content.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, o := range objects {
		i := strings.LastIndex(o, ".v")
		if i < 0 {
			continue
		}
		names = append(names, o[:i])
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
