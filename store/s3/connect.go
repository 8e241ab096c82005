package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/unkn0wn-root/tiercache/location"
)

// ClientConfig describes how to reach the bucket.
type ClientConfig struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for LocalStack.
	Endpoint       string
	ForcePathStyle bool
	// AccessKey and SecretKey select static credentials; when empty the
	// default credential chain is used.
	AccessKey      string
	SecretKey      string
	UploadPartSize int64
	Concurrency    int
}

// Connect builds an *s3.Client from cfg and returns a store rooted at root.
func Connect(ctx context.Context, root location.Object, cfg ClientConfig) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = root.Region
	}
	if region == "" {
		region = location.DefaultRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	root.Region = region
	return New(Config{
		Client:      client,
		PartSize:    cfg.UploadPartSize,
		Concurrency: cfg.Concurrency,
		Root:        root,
	})
}
