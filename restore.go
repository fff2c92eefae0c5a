package iiifarchive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iiif-archive/iiifarchive/pkg/archive"
	"github.com/iiif-archive/iiifarchive/types"
	"github.com/iiif-archive/iiifarchive/types/imageservice"
	"github.com/iiif-archive/iiifarchive/types/manifest"
)

// Restore extracts a bundle below destDir and rebases the manifest and image services onto baseURL.
// The manifest id becomes <baseURL>/<bundle>/manifest.json and every local reference is prefixed with <baseURL>/<bundle>/.
// The returned path is the extracted bundle directory. No network requests are made.
func (c *Client) Restore(ctx context.Context, bundlePath, destDir, baseURL string) (string, error) {
	switch {
	case bundlePath == "":
		return "", fmt.Errorf("bundle path: %w", types.ErrMissingInput)
	case destDir == "":
		return "", fmt.Errorf("destination: %w", types.ErrMissingInput)
	case strings.TrimRight(baseURL, "/") == "":
		return "", fmt.Errorf("base url: %w", types.ErrMissingInput)
	}
	base := strings.TrimRight(baseURL, "/")
	name, _, err := BundleName(bundlePath)
	if err != nil {
		return "", err
	}
	log := c.log.WithFields(logrus.Fields{
		"bundle": bundlePath,
		"dest":   destDir,
		"base":   base,
	})
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	top, err := archive.Unzip(ctx, bundlePath, destDir)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", bundlePath, err)
	}
	// a renamed zip still holds the directory it was created with
	dir := filepath.Join(destDir, name)
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil && len(top) == 1 {
		name = top[0]
		dir = filepath.Join(destDir, name)
	}
	prefix := base + "/" + name + "/"
	log.WithFields(logrus.Fields{
		"dir": dir,
	}).Debug("Extracted bundle")

	manifestPath := filepath.Join(dir, ManifestFile)
	//#nosec G304 path below the extraction directory
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("bundle %s has no manifest: %w", bundlePath, types.ErrNotFound)
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return "", err
	}
	if err := m.SetID(prefix + ManifestFile); err != nil {
		return "", err
	}
	containers, err := m.Containers()
	if err != nil {
		return "", err
	}
	for _, cont := range containers {
		u, err := cont.GetURL()
		if err != nil {
			return "", err
		}
		if hasScheme(u) {
			log.WithFields(logrus.Fields{
				"container": cont.GetID(),
				"url":       u,
			}).Warn("Container was not archived, leaving remote url")
			continue
		}
		if err := cont.SetURL(prefix + u); err != nil {
			return "", err
		}
	}
	out, err := m.MarshalPretty()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(manifestPath, out, 0o644); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", types.ErrCanceled, err)
		}
		infoPath := filepath.Join(dir, e.Name(), imageservice.InfoFile)
		//#nosec G304 path below the extraction directory
		raw, err := os.ReadFile(infoPath)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return "", err
		}
		svc, err := imageservice.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%s: %w", infoPath, err)
		}
		if err := svc.SetID(prefix + e.Name()); err != nil {
			return "", err
		}
		out, err := svc.MarshalPretty()
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(infoPath, out, 0o644); err != nil {
			return "", err
		}
	}
	log.WithFields(logrus.Fields{
		"dir":        dir,
		"containers": len(containers),
	}).Info("Restored bundle")
	return dir, nil
}
