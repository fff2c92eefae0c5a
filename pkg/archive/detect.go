package archive

import (
	"bytes"
	"io"
	"os"
)

// Type identifies the detected archive or compression type
type Type int

const (
	// TypeUnknown detected no known header
	TypeUnknown Type = iota
	// TypeZip archive
	TypeZip
	// TypeGzip compression
	TypeGzip
	// TypeBzip2 compression
	TypeBzip2
	// TypeXz compression
	TypeXz
	// TypeZstd compression
	TypeZstd
)

// typeHeaders are used to detect the type
var typeHeaders = map[Type][][]byte{
	TypeZip: {
		[]byte("PK\x03\x04"),
		[]byte("PK\x05\x06"), // empty archive
	},
	TypeGzip:  {[]byte("\x1F\x8B\x08")},
	TypeBzip2: {[]byte("\x42\x5A\x68")},
	TypeXz:    {[]byte("\xFD\x37\x7A\x58\x5A\x00")},
	TypeZstd:  {[]byte("\x28\xB5\x2F\xFD")},
}

func (t Type) String() string {
	switch t {
	case TypeZip:
		return "zip"
	case TypeGzip:
		return "gzip"
	case TypeBzip2:
		return "bzip2"
	case TypeXz:
		return "xz"
	case TypeZstd:
		return "zstd"
	}
	return "unknown"
}

// Detect identifies the type based on the first few bytes
func Detect(head []byte) Type {
	for t, hl := range typeHeaders {
		for _, h := range hl {
			if bytes.HasPrefix(head, h) {
				return t
			}
		}
	}
	return TypeUnknown
}

// DetectFile reads the header of a file to identify its type
func DetectFile(name string) (Type, error) {
	//#nosec G304 command is run by a user accessing their own files
	f, err := os.Open(name)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()
	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return TypeUnknown, err
	}
	return Detect(head[:n]), nil
}
