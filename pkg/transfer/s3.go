package transfer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/archiver/pkg/domain"
)

type S3Client interface {
	s3.ListObjectsV2APIClient

	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Mount stores archives in S3 compatible buckets; the container is the
// bucket and the key is the remote id.
type S3Mount struct {
	client S3Client
}

// NewS3Mount loads the default AWS configuration. A custom endpoint switches
// to path style addressing.
func NewS3Mount(ctx context.Context, region, endpoint string) (*S3Mount, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3MountWithClient(client), nil
}

func NewS3MountWithClient(client S3Client) *S3Mount {
	return &S3Mount{
		client: client,
	}
}

func (m *S3Mount) Upload(ctx context.Context, localPath, container string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := filepath.Base(localPath)

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", err
	}

	return key, nil
}

func (m *S3Mount) List(ctx context.Context, container, prefix string) ([]domain.RemoteFile, error) {
	var files []domain.RemoteFile

	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(container),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			files = append(files, domain.RemoteFile{Id: key, Name: key, CreatedAt: aws.ToTime(obj.LastModified)})
		}
	}

	return files, nil
}

func (m *S3Mount) Delete(ctx context.Context, container, id string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(id),
	})
	return err
}
