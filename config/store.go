package config

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/kvsearch/catalog"
	kvdynamodb "github.com/hupe1980/kvsearch/catalog/dynamodb"
	kvminio "github.com/hupe1980/kvsearch/catalog/minio"
	kvs3 "github.com/hupe1980/kvsearch/catalog/s3"
)

// store connects the configured backend. The dynamodb backend keeps
// descriptor contents in S3 when a bucket is set and on local disk
// otherwise.
func (c Catalog) store(ctx context.Context) (catalog.Store, error) {
	switch c.Backend {
	case BackendMemory:
		return catalog.NewMemoryStore(), nil
	case BackendLocal:
		return catalog.NewLocalStore(c.Path)
	case BackendS3:
		return kvs3.New(ctx, c.Bucket, kvs3.WithPrefix(c.Prefix), kvs3.WithRegion(c.Region))
	case BackendMinIO:
		client, err := minio.New(c.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
			Secure: c.Secure,
			Region: c.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("config: minio client: %w", err)
		}
		return kvminio.NewStore(client, c.Bucket, c.Prefix), nil
	case BackendDynamoDB:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if c.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(c.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, err
		}
		var content catalog.Store
		if c.Bucket != "" {
			content, err = kvs3.New(ctx, c.Bucket, kvs3.WithPrefix(c.Prefix), kvs3.WithRegion(c.Region))
		} else {
			content, err = catalog.NewLocalStore(c.Path)
		}
		if err != nil {
			return nil, err
		}
		return kvdynamodb.New(content, dynamodb.NewFromConfig(awsCfg), c.Table), nil
	}
	return nil, fmt.Errorf("config: unknown catalog backend %q", c.Backend)
}
