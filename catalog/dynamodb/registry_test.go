package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/schema"
)

// mockClient is an in-memory DynamoDB table keyed by name and version.
type mockClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
}

func newMockClient() *mockClient {
	return &mockClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	return item["name"].(*types.AttributeValueMemberS).Value + ":" + item["version"].(*types.AttributeValueMemberN).Value
}

func itemVersion(item map[string]types.AttributeValue) uint64 {
	v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	return v
}

func (m *mockClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(params.Item)
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := params.ExpressionAttributeValues[":name"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["name"].(*types.AttributeValueMemberS).Value == name {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		d := int(itemVersion(a)) - int(itemVersion(b))
		if !aws.ToBool(params.ScanIndexForward) {
			d = -d
		}
		return d
	})
	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func (m *mockClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemKey(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func read(t *testing.T, r *Registry, name string) string {
	t.Helper()
	rc, err := r.Get(context.Background(), name)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestRegistry_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	r := New(catalog.NewMemoryStore(), newMockClient(), "kvsearch-catalog")

	_, err := r.Get(ctx, "tables/users.kvs")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.Put(ctx, "tables/users.kvs", fmt.Appendf(nil, "doc-%d", i)))
	}
	assert.Equal(t, "doc-3", read(t, r, "tables/users.kvs"))

	versions, err := r.Versions(ctx, "tables/users.kvs")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, versions)

	require.NoError(t, r.Prune(ctx, "tables/users.kvs", 1))
	versions, err = r.Versions(ctx, "tables/users.kvs")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, versions)
	assert.Equal(t, "doc-3", read(t, r, "tables/users.kvs"))

	names, err := r.List(ctx, "tables/")
	require.NoError(t, err)
	assert.Equal(t, []string{"tables/users.kvs"}, names)

	require.NoError(t, r.Delete(ctx, "tables/users.kvs"))
	_, err = r.Get(ctx, "tables/users.kvs")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	names, err = r.List(ctx, "tables/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRegistry_CommitConflict(t *testing.T) {
	ctx := context.Background()
	r := New(catalog.NewMemoryStore(), newMockClient(), "kvsearch-catalog")

	require.NoError(t, r.Commit(ctx, "doc", 0, []byte("a")))
	assert.ErrorIs(t, r.Commit(ctx, "doc", 0, []byte("b")), catalog.ErrConflict)
	assert.ErrorIs(t, r.Commit(ctx, "doc", 5, []byte("b")), catalog.ErrConflict)
	require.NoError(t, r.Commit(ctx, "doc", 1, []byte("c")))
	assert.Equal(t, "c", read(t, r, "doc"))
}

func TestRegistry_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	content := catalog.NewMemoryStore()
	r := New(content, newMockClient(), "kvsearch-catalog")
	require.NoError(t, r.Commit(ctx, "doc", 0, []byte("v1")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []string
	)
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := fmt.Sprintf("writer-%d", i)
			err := r.Commit(ctx, "doc", 1, []byte(data))
			if errors.Is(err, catalog.ErrConflict) {
				return
			}
			if assert.NoError(t, err) {
				mu.Lock()
				successes = append(successes, data)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, successes, 1, "exactly one writer commits version 2")
	assert.Equal(t, successes[0], read(t, r, "doc"))

	// Losing writers clean up their content objects.
	objects, err := content.List(ctx, "doc")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestRegistry_Catalog(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New(New(catalog.NewMemoryStore(), newMockClient(), "kvsearch-catalog"))

	d := &catalog.Descriptor{
		Name:        "users",
		Layout:      partition.Layout{PartitionKey: []string{"id"}},
		Schema:      schema.NewBuilder().Field("name", mapping.String()),
		Shards:      2,
		Replication: 1,
	}
	require.NoError(t, cat.Save(ctx, d))
	stale := *d
	require.NoError(t, cat.Save(ctx, d))
	assert.ErrorIs(t, cat.Save(ctx, &stale), catalog.ErrConflict)

	got, err := cat.Load(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)

	names, err := cat.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, names)
}
