package lake

import "io"

// Source is the interface for getting raw data one record at a time.
// Implementations of Source need not be thread safe.
type Source interface {
	Record() (interface{}, error)
}

// NamedReadCloser is an io.ReadCloser which knows the name of the object it
// is reading from.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}
