package domain

import (
	"context"
	"encoding/json"
	"time"
)

type ArtifactKind int

const (
	// Uncompressed database dump
	ArtifactRawDump ArtifactKind = iota

	// Gzipped database dump
	ArtifactCompressedDump

	// One hour of logs, one JSON object per line
	ArtifactLogExport
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactRawDump:
		return "raw_dump"
	case ArtifactCompressedDump:
		return "compressed_dump"
	case ArtifactLogExport:
		return "log_export"
	}
	return "unknown"
}

// Artifact is a local file handed over by a producer. The run removes it
// before finishing unless the file was adopted.
type Artifact struct {
	Path      string
	Name      string
	Kind      ArtifactKind
	CreatedAt time.Time

	// File existed before the run; it is uploaded but left in place
	Adopted bool
}

type RemoteFile struct {
	Id        string
	Name      string
	CreatedAt time.Time
}

// LogRecord is one row of the remote log query API.
type LogRecord struct {
	Time    string
	Level   string
	Message string

	// Raw JSON payload of the record
	Payload json.RawMessage
}

// ProduceRequest carries per-invocation inputs of a producer.
type ProduceRequest struct {
	// Moment the run started, used for file names and relative dates
	StartedAt time.Time

	// Explicit log export day in yyyy-MM-dd form, empty means previous day
	Day string
}

type Producer interface {
	Produce(ctx context.Context, source Source, req ProduceRequest) ([]Artifact, error)
}

// RemoteStorage is the contract of every offsite storage backend.
type RemoteStorage interface {
	Upload(ctx context.Context, localPath, container string) (string, error)
	List(ctx context.Context, container, prefix string) ([]RemoteFile, error)
	Delete(ctx context.Context, container, id string) error
}

type StorageResolver interface {
	Storage(name string) (RemoteStorage, error)
}

// FileRemover deletes local files; removing a missing file is not an error.
type FileRemover interface {
	Remove(path string) error
}

// LogWindow is one processed hour of a log export.
type LogWindow struct {
	Source  string
	Day     string
	Hour    int
	Records int

	// Output existed already, nothing was fetched
	Skipped bool

	// Fetching failed and the window was left out
	Failed bool
}
