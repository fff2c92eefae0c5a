// Package archive packs and unpacks directory trees as zip files
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ZipOpts configures Zip
type ZipOpts func(*zipOpts)

type zipOpts struct {
	prefix  string
	modTime time.Time
	level   int
	skip    func(string) bool
}

// WithPrefix places every entry below dir inside the archive
func WithPrefix(dir string) ZipOpts {
	return func(zo *zipOpts) {
		zo.prefix = strings.Trim(filepath.ToSlash(dir), "/")
	}
}

// WithModTime overrides the modification time of every entry, making output reproducible
func WithModTime(t time.Time) ZipOpts {
	return func(zo *zipOpts) {
		zo.modTime = t
	}
}

// WithLevel sets the deflate level
func WithLevel(level int) ZipOpts {
	return func(zo *zipOpts) {
		zo.level = level
	}
}

// WithSkip excludes files for which fn returns true, fn receives the slash separated relative path
func WithSkip(fn func(string) bool) ZipOpts {
	return func(zo *zipOpts) {
		zo.skip = fn
	}
}

// extensions of content that is already compressed
var storeExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".jp2": true,
	".mp3": true, ".mp4": true, ".m4a": true, ".webm": true, ".ogg": true, ".zip": true,
}

// Zip writes the tree below dir to w.
// Entries are added in lexical order.
func Zip(ctx context.Context, dir string, w io.Writer, opts ...ZipOpts) error {
	zo := zipOpts{level: flate.DefaultCompression}
	for _, opt := range opts {
		opt(&zo)
	}
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, zo.level)
	})

	err := filepath.WalkDir(dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		relPath, err := filepath.Rel(dir, file)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if relPath == "." {
			relPath = ""
		}
		if relPath != "" && zo.skip != nil && zo.skip(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := path.Join(zo.prefix, relPath)
		if name == "" || name == "." {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		// TODO: follow symlinks once a bundle needs them
		if !fi.IsDir() && !fi.Mode().IsRegular() {
			return nil
		}
		header, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		header.Name = name
		header.Modified = fi.ModTime().Truncate(time.Second)
		if !zo.modTime.IsZero() {
			header.Modified = zo.modTime
		}
		if fi.IsDir() {
			header.Name += "/"
			header.Method = zip.Store
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate
		if storeExt[strings.ToLower(path.Ext(name))] {
			header.Method = zip.Store
		}
		hw, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		//#nosec G304 walking a directory selected by the caller
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		_, err = io.Copy(hw, f)
		if errC := f.Close(); errC != nil && err == nil {
			err = errC
		}
		return err
	})
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to zip %s: %w", dir, err)
	}
	return zw.Close()
}

// ZipFile creates dest and writes the tree below dir to it
func ZipFile(ctx context.Context, dir, dest string, opts ...ZipOpts) error {
	tmp := dest + ".partial"
	//#nosec G304 output selected by the caller
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = Zip(ctx, dir, f, opts...)
	if errC := f.Close(); errC != nil && err == nil {
		err = errC
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// Unzip extracts src into dir, returning the top level entry names.
// Entries with absolute paths or parent references fail with ErrUnsafePath before anything is written.
func Unzip(ctx context.Context, src, dir string) ([]string, error) {
	t, err := DetectFile(src)
	if err != nil {
		return nil, err
	}
	if t != TypeZip {
		return nil, fmt.Errorf("%s is %s: %w", src, t, ErrUnsupportedFormat)
	}
	zr, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("%s: %w: %w", src, ErrUnsupportedFormat, err)
		}
		return nil, err
	}
	defer zr.Close()

	// validate every entry first so a hostile archive leaves nothing behind
	for _, zf := range zr.File {
		if !safeName(zf.Name) {
			return nil, fmt.Errorf("%s: %w", zf.Name, ErrUnsafePath)
		}
	}
	top := []string{}
	seen := map[string]bool{}
	for _, zf := range zr.File {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := strings.TrimSuffix(zf.Name, "/")
		if first, _, _ := strings.Cut(name, "/"); !seen[first] {
			seen[first] = true
			top = append(top, first)
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if !zf.Mode().IsRegular() {
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return nil, err
		}
	}
	return top, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", zf.Name, err)
	}
	defer rc.Close()
	//#nosec G304 target validated by safeName
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, rc)
	if errC := f.Close(); errC != nil && err == nil {
		err = errC
	}
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", zf.Name, err)
	}
	return nil
}

func safeName(name string) bool {
	name = strings.TrimSuffix(name, "/")
	if name == "" || strings.Contains(name, "\\") {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(name))
}
