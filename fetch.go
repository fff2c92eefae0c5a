package iiifarchive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iiif-archive/iiifarchive/internal/limitread"
	"github.com/iiif-archive/iiifarchive/internal/retryable"
	"github.com/iiif-archive/iiifarchive/internal/rwfs"
	"github.com/iiif-archive/iiifarchive/types"
	"github.com/iiif-archive/iiifarchive/types/imageservice"
	"github.com/iiif-archive/iiifarchive/types/manifest"
)

// maxDocSize limits manifest and descriptor bodies read into memory
const maxDocSize = 64 * 1024 * 1024

// fetchFile downloads u to name below fsys.
// An existing file is reused without a request or delay, returning false.
func (c *Client) fetchFile(ctx context.Context, fsys *rwfs.OSFS, u, name string, pace bool) (bool, error) {
	if rwfs.Exists(fsys, name) {
		c.log.WithFields(logrus.Fields{
			"url":  u,
			"path": name,
		}).Debug("Using existing file")
		return false, nil
	}
	if pace {
		if err := c.throttle.Wait(ctx); err != nil {
			return false, &types.FetchError{URL: u, Path: name, Err: err}
		}
	}
	resp, err := c.retry.Get(ctx, u)
	if err != nil {
		fe := &types.FetchError{}
		if errors.As(err, &fe) {
			fe.Path = name
			return false, fe
		}
		return false, &types.FetchError{URL: u, Path: name, Err: err}
	}
	defer resp.Close()
	n, err := rwfs.WriteStream(fsys, name, resp, 0o644)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", types.ErrCanceled, err)
		}
		return false, &types.FetchError{URL: u, Path: name, Attempts: resp.Attempts(), Err: err}
	}
	c.log.WithFields(logrus.Fields{
		"url":   u,
		"path":  name,
		"bytes": n,
	}).Debug("Downloaded")
	return true, nil
}

// fetchJSON downloads a json document to name and returns its content
func (c *Client) fetchJSON(ctx context.Context, fsys *rwfs.OSFS, u, name string) ([]byte, error) {
	if _, err := c.fetchFile(ctx, fsys, u, name, true); err != nil {
		return nil, err
	}
	raw, err := rwfs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return raw, nil
}

// fetchBody reads a document into memory without touching the scratch tree
func (c *Client) fetchBody(ctx context.Context, u string) ([]byte, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, &types.FetchError{URL: u, Err: err}
	}
	resp, err := c.retry.Get(ctx, u, retryable.WithHeader("Accept", []string{"application/ld+json", "application/json"}))
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	raw, err := io.ReadAll(&limitread.LimitRead{Reader: resp, Limit: maxDocSize})
	if err != nil {
		return nil, &types.FetchError{URL: u, Attempts: resp.Attempts(), Err: err}
	}
	return raw, nil
}

// FetchManifest retrieves and parses a manifest without writing it to disk
func (c *Client) FetchManifest(ctx context.Context, u string) (manifest.Manifest, error) {
	if u == "" {
		return nil, fmt.Errorf("manifest url: %w", types.ErrMissingInput)
	}
	raw, err := c.fetchBody(ctx, u)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}
	return m, nil
}

// FetchService retrieves and parses an image service descriptor.
// u may be the service id or the url of its info.json.
func (c *Client) FetchService(ctx context.Context, u string) (imageservice.Service, error) {
	if u == "" {
		return nil, fmt.Errorf("service url: %w", types.ErrMissingInput)
	}
	raw, err := c.fetchBody(ctx, infoURL(u))
	if err != nil {
		return nil, err
	}
	svc, err := imageservice.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u, err)
	}
	return svc, nil
}

func infoURL(id string) string {
	if strings.HasSuffix(id, "/"+imageservice.InfoFile) {
		return id
	}
	return strings.TrimRight(id, "/") + "/" + imageservice.InfoFile
}
