package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yurykabanov/archiver/pkg/domain"
)

// GCSMount stores archives in Cloud Storage; the container is the bucket
// and the object name is the remote id.
type GCSMount struct {
	client *storage.Client
}

// NewGCSMount uses the credentials file when given, application default
// credentials otherwise.
func NewGCSMount(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*GCSMount, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create storage client")
	}

	return &GCSMount{
		client: client,
	}, nil
}

func (m *GCSMount) Upload(ctx context.Context, localPath, container string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := filepath.Base(localPath)

	w := m.client.Bucket(container).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	return name, nil
}

func (m *GCSMount) List(ctx context.Context, container, prefix string) ([]domain.RemoteFile, error) {
	var files []domain.RemoteFile

	it := m.client.Bucket(container).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		files = append(files, domain.RemoteFile{Id: attrs.Name, Name: attrs.Name, CreatedAt: attrs.Created})
	}

	return files, nil
}

func (m *GCSMount) Delete(ctx context.Context, container, id string) error {
	return m.client.Bucket(container).Object(id).Delete(ctx)
}

func (m *GCSMount) Close() error {
	return m.client.Close()
}
