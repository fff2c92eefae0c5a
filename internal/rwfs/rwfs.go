// Package rwfs is a read/write filesystem rooted at a directory.
// Names are slash separated and relative to the root, matching io/fs.
package rwfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
)

const (
	O_RDONLY = os.O_RDONLY // read-only
	O_WRONLY = os.O_WRONLY // write-only
	O_RDWR   = os.O_RDWR   // read-write
	O_APPEND = os.O_APPEND // append when writing
	O_CREATE = os.O_CREATE // create if missing
	O_EXCL   = os.O_EXCL   // file must not exist, used with O_CREATE
	O_TRUNC  = os.O_TRUNC  // truncate on open
)

// partialSuffix marks a file still being written
const partialSuffix = ".partial"

// RWFS is a filesystem that can be read and written
type RWFS interface {
	fs.FS
	WriteFS
}

// RWFile is an open file that can be read and written
type RWFile interface {
	fs.File
	WFile
}

// WriteFS holds the write methods of RWFS
type WriteFS interface {
	// Create creates a new file
	Create(string) (WFile, error)
	// Mkdir creates a directory
	Mkdir(string, fs.FileMode) error
	// OpenFile generalized file open with options for a flag and permissions
	OpenFile(string, int, fs.FileMode) (RWFile, error)
	// Rename replaces newname with oldname
	Rename(oldname, newname string) error
	// RemoveAll deletes name and any children
	RemoveAll(string) error
}

// WFile is a file opened for writing
type WFile interface {
	Close() error
	Stat() (fi fs.FileInfo, err error)
	Write(b []byte) (n int, err error)
}

// MkdirAll creates name and any missing parents, existing directories are not an error
func MkdirAll(rwfs RWFS, name string, perm fs.FileMode) error {
	if name == "" || name == "." {
		return nil
	}
	parts := strings.Split(name, "/")
	for i := range parts {
		cur := path.Join(parts[:i+1]...)
		fi, err := Stat(rwfs, cur)
		if errors.Is(err, fs.ErrNotExist) {
			err := rwfs.Mkdir(cur, perm)
			if err != nil && !errors.Is(err, fs.ErrExist) {
				return &fs.PathError{Op: "mkdir", Path: cur, Err: err}
			}
		} else if err != nil {
			return &fs.PathError{Op: "mkdir", Path: cur, Err: err}
		} else if !fi.IsDir() {
			// can't mkdir on existing file
			return &fs.PathError{Op: "mkdir", Path: cur, Err: fs.ErrExist}
		}
	}
	return nil
}

// Stat returns the file info for name
func Stat(rfs fs.FS, name string) (fs.FileInfo, error) {
	fh, err := rfs.Open(name)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return fh.Stat()
}

// Exists reports a regular file at name
func Exists(rfs fs.FS, name string) bool {
	fi, err := Stat(rfs, name)
	return err == nil && fi.Mode().IsRegular()
}

// ReadFile returns the content of name
func ReadFile(rfs fs.FS, name string) ([]byte, error) {
	return fs.ReadFile(rfs, name)
}

// WriteFile creates or truncates name and writes data
func WriteFile(wfs WriteFS, name string, data []byte, perm fs.FileMode) error {
	f, err := wfs.OpenFile(name, O_WRONLY|O_CREATE|O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err1 := f.Close(); err1 != nil && err == nil {
		return err1
	}
	return err
}

// WriteStream copies r into name, creating parent directories.
// Content is written to a partial file and renamed into place on success,
// so name never holds a truncated download.
func WriteStream(rwfs RWFS, name string, r io.Reader, perm fs.FileMode) (int64, error) {
	if err := MkdirAll(rwfs, path.Dir(name), 0o755); err != nil {
		return 0, err
	}
	tmp := name + partialSuffix
	f, err := rwfs.OpenFile(tmp, O_WRONLY|O_CREATE|O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err1 := f.Close(); err1 != nil && err == nil {
		err = err1
	}
	if err != nil {
		_ = rwfs.RemoveAll(tmp)
		return n, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := rwfs.Rename(tmp, name); err != nil {
		return n, err
	}
	return n, nil
}
