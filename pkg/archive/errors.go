package archive

import "errors"

var (
	// ErrUnsafePath is returned for an entry that would extract outside of the target directory
	ErrUnsafePath = errors.New("archive entry escapes the target directory")
	// ErrUnsupportedFormat is returned when the input is not a zip archive
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)
