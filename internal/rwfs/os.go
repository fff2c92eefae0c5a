package rwfs

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// OSFS implements RWFS on the os filesystem below dir
type OSFS struct {
	dir string
}

// OSFile is a pass through to os.File
type OSFile struct {
	*os.File
}

// OSNew returns an OSFS rooted at base
func OSNew(base string) *OSFS {
	if base == "" || base == "." {
		return &OSFS{dir: base}
	}
	return &OSFS{
		dir: filepath.Clean(base),
	}
}

// Dir returns the root directory in os form
func (o *OSFS) Dir() string {
	if o.dir == "" {
		return "."
	}
	return o.dir
}

// Path converts a relative name to an os path below the root
func (o *OSFS) Path(name string) (string, error) {
	return o.join("path", name)
}

// Create creates or truncates a file
func (o *OSFS) Create(name string) (WFile, error) {
	file, err := o.join("create", name)
	if err != nil {
		return nil, err
	}
	fh, err := os.Create(file)
	if err != nil {
		return nil, err
	}
	return &OSFile{File: fh}, nil
}

// Mkdir creates a single directory
func (o *OSFS) Mkdir(name string, perm fs.FileMode) error {
	if name == "." {
		return fs.ErrExist
	}
	dir, err := o.join("mkdir", name)
	if err != nil {
		return err
	}
	return os.Mkdir(dir, perm)
}

// OpenFile opens name with the os flags and perm
func (o *OSFS) OpenFile(name string, flag int, perm fs.FileMode) (RWFile, error) {
	file, err := o.join("open", name)
	if err != nil {
		return nil, err
	}
	fh, err := os.OpenFile(file, flag, perm)
	if err != nil {
		return nil, err
	}
	return &OSFile{File: fh}, nil
}

// Open opens name for reading
func (o *OSFS) Open(name string) (fs.File, error) {
	file, err := o.join("open", name)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	return &OSFile{File: fh}, nil
}

// Rename moves oldname to newname, replacing it
func (o *OSFS) Rename(oldname, newname string) error {
	oldfile, err := o.join("rename", oldname)
	if err != nil {
		return err
	}
	newfile, err := o.join("rename", newname)
	if err != nil {
		return err
	}
	return os.Rename(oldfile, newfile)
}

// RemoveAll deletes name and any children
func (o *OSFS) RemoveAll(name string) error {
	file, err := o.join("remove", name)
	if err != nil {
		return err
	}
	return os.RemoveAll(file)
}

// Sub returns an OSFS rooted at the directory name
func (o *OSFS) Sub(name string) (*OSFS, error) {
	if name == "." {
		return o, nil
	}
	full, err := o.join("sub", name)
	if err != nil {
		return nil, err
	}
	return &OSFS{dir: full}, nil
}

func (o *OSFS) join(op, name string) (string, error) {
	if name == "" || name == "." {
		return o.Dir(), nil
	}
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return filepath.Join(o.Dir(), filepath.FromSlash(path.Clean(name))), nil
}
