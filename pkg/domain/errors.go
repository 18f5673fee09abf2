package domain

import (
	"fmt"
)

type ConfigError struct {
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return "invalid source config: " + e.Reason
	}
	return fmt.Sprintf("invalid config of source '%s': %s", e.Source, e.Reason)
}

type ProductionError struct {
	Source string
	Err    error
}

func (e *ProductionError) Error() string {
	return fmt.Sprintf("unable to produce artifacts of '%s': %v", e.Source, e.Err)
}

func (e *ProductionError) Cause() error  { return e.Err }
func (e *ProductionError) Unwrap() error { return e.Err }

type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to fetch logs: %v", e.Err)
}

func (e *FetchError) Cause() error  { return e.Err }
func (e *FetchError) Unwrap() error { return e.Err }

type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("unable to upload '%s': %v", e.Path, e.Err)
}

func (e *UploadError) Cause() error  { return e.Err }
func (e *UploadError) Unwrap() error { return e.Err }

type RetentionError struct {
	Container string
	Err       error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("unable to list container '%s': %v", e.Container, e.Err)
}

func (e *RetentionError) Cause() error  { return e.Err }
func (e *RetentionError) Unwrap() error { return e.Err }
