package iiifarchive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/iiif-archive/iiifarchive/internal/rwfs"
	"github.com/iiif-archive/iiifarchive/pkg/archive"
	"github.com/iiif-archive/iiifarchive/types"
	"github.com/iiif-archive/iiifarchive/types/imageservice"
	"github.com/iiif-archive/iiifarchive/types/manifest"
)

const (
	// digestLen is the number of hex characters of a digest used in local names
	digestLen = 12
	slugLen   = 40
)

// Archive mirrors the manifest at manifestURL and every asset it references into the scratch directory,
// rewrites the manifest to point at the local copies, and packages the result as a zip.
// The returned path is outputName with a ".zip" suffix.
// Files already present in the scratch directory are reused, so a failed run may be repeated to resume it.
func (c *Client) Archive(ctx context.Context, manifestURL, outputName string) (string, error) {
	if manifestURL == "" {
		return "", fmt.Errorf("manifest url: %w", types.ErrMissingInput)
	}
	name, zipPath, err := BundleName(outputName)
	if err != nil {
		return "", err
	}
	if err := c.conf.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.conf.ScratchDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	fsys := rwfs.OSNew(c.conf.ScratchDir)
	if err := rwfs.MkdirAll(fsys, name, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	log := c.log.WithFields(logrus.Fields{
		"manifest": manifestURL,
		"bundle":   name,
	})
	log.Info("Archiving manifest")

	manifestPath := path.Join(name, ManifestFile)
	raw, err := c.fetchJSON(ctx, fsys, manifestURL, manifestPath)
	if err != nil {
		return "", err
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", manifestURL, err)
	}
	containers, err := m.Containers()
	if err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{
		"version":    m.Version().String(),
		"containers": len(containers),
	}).Debug("Parsed manifest")

	// names claimed by earlier containers, the manifest is always reserved
	used := map[string]bool{ManifestFile: true}
	for i, cont := range containers {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", types.ErrCanceled, err)
		}
		dl, err := cont.IsDownloadable()
		if err != nil {
			return "", err
		}
		if dl {
			err = c.archiveAsset(ctx, fsys, name, cont, used)
		} else {
			err = c.archiveService(ctx, fsys, name, cont, used, i, len(containers))
		}
		if err != nil {
			return "", err
		}
		c.report(Progress{Canvas: i + 1, Canvases: len(containers)})
	}

	out, err := m.MarshalPretty()
	if err != nil {
		return "", fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := rwfs.WriteFile(fsys, manifestPath, out, 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}

	bundleDir, err := fsys.Path(name)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(zipPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	err = archive.ZipFile(ctx, bundleDir, zipPath,
		archive.WithPrefix(name),
		archive.WithSkip(func(p string) bool {
			return strings.HasSuffix(p, ".partial")
		}))
	if err != nil {
		return "", fmt.Errorf("failed to package %s: %w", name, err)
	}
	log.WithFields(logrus.Fields{
		"zip": zipPath,
	}).Info("Created bundle")

	if c.conf.DeleteScratch {
		if err := fsys.RemoveAll(name); err != nil {
			log.WithFields(logrus.Fields{
				"err": err,
			}).Warn("Failed to remove scratch directory")
		}
	}
	return zipPath, nil
}

// archiveAsset fetches a directly downloadable asset and points the container at the local file
func (c *Client) archiveAsset(ctx context.Context, fsys *rwfs.OSFS, name string, cont manifest.Container, used map[string]bool) error {
	u, err := cont.GetURL()
	if err != nil {
		return err
	}
	if !hasScheme(u) {
		// rewritten by an earlier run
		if !fs.ValidPath(u) || !rwfs.Exists(fsys, path.Join(name, u)) {
			return fmt.Errorf("container %s references local file %q: %w", cont.GetID(), u, types.ErrNotFound)
		}
		used[u] = true
		return nil
	}
	fname, err := cont.Filename()
	if err != nil {
		return err
	}
	fname = assetName(fname, u, used)
	used[fname] = true
	if _, err := c.fetchFile(ctx, fsys, u, path.Join(name, fname), true); err != nil {
		return err
	}
	return cont.SetURL(fname)
}

// archiveService fetches the descriptor and every planned tile of an image service
func (c *Client) archiveService(ctx context.Context, fsys *rwfs.OSFS, name string, cont manifest.Container, used map[string]bool, idx, total int) error {
	u, err := cont.GetURL()
	if err != nil {
		return err
	}
	if u == "" {
		return fmt.Errorf("container %s service id: %w", cont.GetID(), types.ErrMissingInput)
	}
	dir := u
	if hasScheme(u) {
		dir = serviceDir(cont.GetLabel(), u)
	} else if !fs.ValidPath(u) || strings.Contains(u, "/") {
		return fmt.Errorf("container %s references service directory %q: %w", cont.GetID(), u, types.ErrNotFound)
	}
	used[dir] = true
	raw, err := c.fetchJSON(ctx, fsys, infoURL(u), path.Join(name, dir, imageservice.InfoFile))
	if err != nil {
		return err
	}
	svc, err := imageservice.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", u, err)
	}
	reqs, err := imageservice.Plan(svc)
	if err != nil {
		return err
	}
	pace := !(c.conf.NoDelayLevel0 && svc.IsLevel0())
	log := c.log.WithFields(logrus.Fields{
		"service": svc.GetID(),
		"dir":     dir,
		"tiles":   len(reqs),
		"level0":  svc.IsLevel0(),
	})
	log.Debug("Fetching tiles")

	failed := 0
	for j, r := range reqs {
		tileURL := svc.RequestURL(r)
		_, err := c.fetchFile(ctx, fsys, tileURL, path.Join(name, dir, svc.RequestPath(r)), pace)
		if errors.Is(err, types.ErrCanceled) {
			return err
		} else if err != nil {
			failed++
			log.WithFields(logrus.Fields{
				"err": fmt.Errorf("%w: %w", types.ErrTileFetch, err),
			}).Warn("Skipping tile")
		}
		c.report(Progress{Canvas: idx + 1, Canvases: total, Tile: j + 1, Tiles: len(reqs)})
	}
	if failed > 0 {
		log.WithFields(logrus.Fields{
			"failed": failed,
		}).Warn("Image service archived with missing tiles")
	}
	return cont.SetURL(dir)
}

// BundleName returns the directory name inside the bundle and the zip path for outputName.
// A .zip suffix is matched without regard to case and added when missing.
func BundleName(outputName string) (string, string, error) {
	zipPath := outputName
	if !strings.HasSuffix(strings.ToLower(zipPath), ZipSuffix) {
		zipPath += ZipSuffix
	}
	base := filepath.Base(zipPath)
	name := base[:len(base)-len(ZipSuffix)]
	if outputName == "" || name == "" || name == "." || name == ".." {
		return "", "", fmt.Errorf("output name %q: %w", outputName, types.ErrMissingInput)
	}
	return name, zipPath, nil
}

func hasScheme(u string) bool {
	scheme, _, ok := strings.Cut(u, "://")
	return ok && scheme != "" && !strings.Contains(scheme, "/")
}

// serviceDir is a readable and stable directory name for an image service
func serviceDir(label, id string) string {
	hash := digest.FromString(id).Encoded()[:digestLen]
	if s := slug(label); s != "" {
		return s + "-" + hash
	}
	return hash
}

// assetName returns fname, prefixed with a digest of u when the name is unusable or already taken
func assetName(fname, u string, used map[string]bool) string {
	if fname != "" && fname != "." && fname != "/" && fs.ValidPath(fname) && !used[fname] {
		return fname
	}
	hash := digest.FromString(u).Encoded()[:digestLen]
	if fname == "" || fname == "." || fname == "/" || !fs.ValidPath(fname) {
		return hash
	}
	return hash + "-" + fname
}

// slug lowercases s, keeping letters and digits and collapsing everything else to a single dash
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
		if b.Len() >= slugLen {
			break
		}
	}
	return b.String()
}
