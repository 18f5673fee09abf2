package transfer

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/yurykabanov/archiver/pkg/domain"
)

const driveListFields = "nextPageToken, files(id, name, createdTime)"

// DriveMount stores archives in Google Drive folders; the container is the
// folder id.
type DriveMount struct {
	service *drive.Service
}

// NewDriveMount authenticates with a service account key, impersonating
// subject when it is set.
func NewDriveMount(ctx context.Context, credentialsFile, subject string) (*DriveMount, error) {
	data, err := ioutil.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read drive credentials")
	}

	conf, err := google.JWTConfigFromJSON(data, drive.DriveScope)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse drive credentials")
	}
	conf.Subject = subject

	service, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create drive client")
	}

	return NewDriveMountWithService(service), nil
}

func NewDriveMountWithService(service *drive.Service) *DriveMount {
	return &DriveMount{
		service: service,
	}
}

func (m *DriveMount) Upload(ctx context.Context, localPath, container string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	file := &drive.File{
		Name:    filepath.Base(localPath),
		Parents: []string{container},
	}

	created, err := m.service.Files.Create(file).
		Media(f).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}

	return created.Id, nil
}

func (m *DriveMount) List(ctx context.Context, container, prefix string) ([]domain.RemoteFile, error) {
	var files []domain.RemoteFile

	err := m.service.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(container))).
		Fields(driveListFields).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if !strings.HasPrefix(f.Name, prefix) {
					continue
				}

				createdAt, err := time.Parse(time.RFC3339, f.CreatedTime)
				if err != nil {
					return errors.Wrapf(err, "invalid creation time of %q", f.Name)
				}

				files = append(files, domain.RemoteFile{Id: f.Id, Name: f.Name, CreatedAt: createdAt})
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (m *DriveMount) Delete(ctx context.Context, container, id string) error {
	return m.service.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
