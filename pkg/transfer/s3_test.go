package transfer

import (
	"context"
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// region fakeS3
type fakeS3 struct {
	objects  map[string]string
	modified time.Time
	deleted  []string
	failPut  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}

	data, err := ioutil.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = string(data)

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}

	prefix := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Prefix)
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key[len(aws.ToString(params.Bucket))+1:]),
				LastModified: aws.Time(f.modified),
			})
		}
	}

	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// endregion

func TestS3Mount(t *testing.T) {
	modified := time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)
	client := &fakeS3{objects: map[string]string{"archives/other-2025-07-13-00.jsonl": ""}, modified: modified}
	m := NewS3MountWithClient(client)

	src := filepath.Join(t.TempDir(), "api-2025-07-14-08.jsonl")
	require.NoError(t, ioutil.WriteFile(src, []byte(`{"n":1}`), 0644))

	ctx := context.Background()

	id, err := m.Upload(ctx, src, "archives")
	require.NoError(t, err)
	assert.Equal(t, "api-2025-07-14-08.jsonl", id)
	assert.Equal(t, `{"n":1}`, client.objects["archives/api-2025-07-14-08.jsonl"])

	files, err := m.List(ctx, "archives", "api-")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "api-2025-07-14-08.jsonl", files[0].Id)
	assert.Equal(t, modified, files[0].CreatedAt)

	require.NoError(t, m.Delete(ctx, "archives", id))
	assert.Equal(t, []string{id}, client.deleted)
}

func TestS3Mount_UploadFailure(t *testing.T) {
	client := &fakeS3{objects: map[string]string{}, failPut: errors.New("access denied")}

	src := filepath.Join(t.TempDir(), "app_backup_1.sql.gz")
	require.NoError(t, ioutil.WriteFile(src, []byte("dump"), 0644))

	_, err := NewS3MountWithClient(client).Upload(context.Background(), src, "archives")

	assert.EqualError(t, err, "access denied")
}
