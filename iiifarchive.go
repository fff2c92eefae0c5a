// Package iiifarchive mirrors IIIF manifests and their images into portable zip bundles.
package iiifarchive

import (
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/internal/retryable"
	"github.com/iiif-archive/iiifarchive/internal/throttle"
	"github.com/iiif-archive/iiifarchive/internal/version"
)

const (
	// DefaultUserAgent sets the header on http requests
	DefaultUserAgent = "iiifarchive"
	// ManifestFile is the name of the manifest inside a bundle
	ManifestFile = "manifest.json"
	// ZipSuffix is forced onto bundle file names
	ZipSuffix = ".zip"
)

// Progress reports the position of an archive run.
// Tiles is zero while a direct asset is fetched.
type Progress struct {
	Canvas   int
	Canvases int
	Tile     int
	Tiles    int
}

// Client archives and restores bundles
type Client struct {
	conf       config.Config
	httpClient *http.Client
	log        *logrus.Logger
	progress   func(Progress)
	retry      retryable.Retryable
	throttle   *throttle.Throttle
	userAgent  string
}

// Opt functions are used to configure New
type Opt func(*Client)

// New returns a Client, the default config is used unless WithConfig is passed
func New(opts ...Opt) *Client {
	c := Client{
		conf:      config.Default(),
		userAgent: DefaultUserAgent,
		// logging is disabled by default
		log: &logrus.Logger{Out: io.Discard},
	}
	if v := version.GetInfo().Version; v != "" && v != "(devel)" {
		c.userAgent = fmt.Sprintf("%s (%s)", c.userAgent, v)
	}
	for _, opt := range opts {
		opt(&c)
	}

	retryOpts := []retryable.Opts{
		retryable.WithLimit(c.conf.RetryLimit),
		retryable.WithDelay(c.conf.RetryDelay),
		retryable.WithLog(c.log),
		retryable.WithUserAgent(c.userAgent),
	}
	if c.httpClient != nil {
		retryOpts = append(retryOpts, retryable.WithHTTPClient(c.httpClient))
	}
	c.retry = retryable.New(retryOpts...)
	c.throttle = throttle.New(c.conf.Delay)

	c.log.WithFields(logrus.Fields{
		"scratch":       c.conf.ScratchDir,
		"delay":         c.conf.Delay.String(),
		"retryDelay":    c.conf.RetryDelay.String(),
		"retryLimit":    c.conf.RetryLimit,
		"noDelayLevel0": c.conf.NoDelayLevel0,
	}).Debug("iiifarchive initialized")

	return &c
}

// WithConfig sets the download settings
func WithConfig(conf config.Config) Opt {
	return func(c *Client) {
		c.conf = conf
	}
}

// WithHTTPClient uses a specific http client for all requests
func WithHTTPClient(h *http.Client) Opt {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLog injects a logrus Logger
func WithLog(log *logrus.Logger) Opt {
	return func(c *Client) {
		c.log = log
	}
}

// WithProgress registers a callback run after each canvas and tile
func WithProgress(fn func(Progress)) Opt {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Opt {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Config returns the settings in use
func (c *Client) Config() config.Config {
	return c.conf
}

func (c *Client) report(p Progress) {
	if c.progress != nil {
		c.progress(p)
	}
}
