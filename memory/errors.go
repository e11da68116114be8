package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned by Connection.OpenTable when the table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrTableExists is returned by Connection.CreateTable when the table already exists.
	ErrTableExists = errors.New("table already exists")

	// ErrInvalidLimit is returned by Search when limit is not positive.
	ErrInvalidLimit = errors.New("search limit must be positive")

	// ErrUnsupportedFilter is returned by engines for filters they cannot evaluate.
	ErrUnsupportedFilter = errors.New("unsupported filter")

	// ErrDimensionMismatch is returned when a vector or table does not match the schema size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ConfigurationError reports that the memory system cannot be set up:
// the embedder cannot report its dimensionality, or the config is invalid.
// It is not retried.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("memory configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StorageError reports a failure of the storage engine while connecting,
// opening, creating, inserting, deleting or searching.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("memory storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("memory storage: %s %q: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageError wraps err unless it already carries a storage or configuration error.
func storageError(op, table string, err error) error {
	var cfgErr *ConfigurationError
	var stErr *StorageError
	if errors.As(err, &cfgErr) || errors.As(err, &stErr) {
		return err
	}
	return &StorageError{Op: op, Table: table, Err: err}
}
