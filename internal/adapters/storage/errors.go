// Package storage provides object storage adapters for location lists.
package storage

import (
	"fmt"

	"github.com/jobrunner/sceneport/internal/domain"
)

// StorageError is returned by every backend. It matches domain.ErrNotFound
// for missing objects and domain.ErrStorageUnavailable for everything else.
type StorageError struct {
	Backend   string // s3, azure, http, local
	Operation string // list, read, stat, download
	Key       string
	Err       error
	notFound  bool
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s storage %s failed: %v", e.Backend, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s storage %s of %s failed: %v", e.Backend, e.Operation, e.Key, e.Err)
}

// Unwrap exposes both the classification and the cause.
func (e *StorageError) Unwrap() []error {
	if e.notFound {
		return []error{domain.ErrNotFound, e.Err}
	}
	return []error{domain.ErrStorageUnavailable, e.Err}
}

func storageErr(backend, op, key string, err error) error {
	return &StorageError{Backend: backend, Operation: op, Key: key, Err: err}
}

func notFoundErr(backend, op, key string, err error) error {
	return &StorageError{Backend: backend, Operation: op, Key: key, Err: err, notFound: true}
}
