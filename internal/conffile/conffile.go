// Package conffile locates, reads and writes a configuration file.
// Options are applied in order, each option that finds a name replaces the previous one.
package conffile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// File is a located configuration file, it may not exist yet
type File struct {
	perms    fs.FileMode
	fullname string
}

// Opt configures New
type Opt func(*File)

// New returns a File or nil when no option resolved a name
func New(opts ...Opt) *File {
	f := File{perms: 0o600}
	for _, fn := range opts {
		fn(&f)
	}
	if f.fullname == "" {
		return nil
	}
	return &f
}

// WithAppDir uses the user config directory, e.g. $XDG_CONFIG_HOME/<dir>/<filename>
// or %AppData%\<dir>\<filename>. Unless always is set the file must exist.
func WithAppDir(dir, filename string, always bool) Opt {
	return func(f *File) {
		name := filepath.Join(appDir(), dir, filename)
		if always || fileExists(name) {
			f.fullname = name
		}
	}
}

// WithEnvDir uses filename inside the directory named by the env variable
func WithEnvDir(envDir, filename string) Opt {
	return func(f *File) {
		if dir := os.Getenv(envDir); dir != "" {
			f.fullname = filepath.Join(dir, filename)
		}
	}
}

// WithEnvFile uses the file named by the env variable
func WithEnvFile(envFile string) Opt {
	return func(f *File) {
		if name := os.Getenv(envFile); name != "" {
			f.fullname = name
		}
	}
}

// WithFullname sets the file name, empty names are ignored
func WithFullname(fullname string) Opt {
	return func(f *File) {
		if fullname != "" {
			f.fullname = fullname
		}
	}
}

// WithHomeDir uses a directory under the user home, e.g. ~/<dir>/<filename>.
// Unless always is set the file must exist.
func WithHomeDir(dir, filename string, always bool) Opt {
	return func(f *File) {
		name := filepath.Join(homeDir(), dir, filename)
		if always || fileExists(name) {
			f.fullname = name
		}
	}
}

// WithPerms sets the mode of newly written files
func WithPerms(perms fs.FileMode) Opt {
	return func(f *File) {
		f.perms = perms
	}
}

// Name returns the full path of the file
func (f *File) Name() string {
	return f.fullname
}

// Open returns a reader for the file
func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.fullname)
}

// Write replaces the file with the content of rdr, creating parent directories.
// The mode of an existing file is preserved.
func (f *File) Write(rdr io.Reader) error {
	dir := filepath.Dir(f.fullname)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	mode := f.perms
	if stat, err := os.Stat(f.fullname); err == nil {
		mode = stat.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.fullname)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := io.Copy(tmp, rdr); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", f.fullname, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, f.fullname)
}

func fileExists(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && !fi.IsDir()
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// appDir falls back to ~/.config when the platform has no config dir
func appDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(homeDir(), ".config")
	}
	return dir
}
