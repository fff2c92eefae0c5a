// Package config resolves the download settings for archive runs.
// Values come from call time overrides, then an ini file, then built in defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/iiif-archive/iiifarchive/internal/conffile"
	"github.com/iiif-archive/iiifarchive/types"
)

const (
	// EnvConfig names a config file to load
	EnvConfig = "IIIFARCHIVE_CONFIG"
	// Section is the ini section holding download settings
	Section  = "download"
	appDir   = "iiifarchive"
	homeDir  = ".iiifarchive"
	filename = "config.ini"
)

// ini keys
const (
	keyScratchDir    = "scratch_dir"
	keyDelay         = "delay"
	keyRetryDelay    = "retry_delay"
	keyRetryLimit    = "retry_limit"
	keyNoDelayLevel0 = "no_delay_level0"
	keyDeleteScratch = "delete_scratch"
)

// Config is the resolved set of settings, it is passed by value and never modified after loading
type Config struct {
	ScratchDir    string        `json:"scratchDir" yaml:"scratchDir"`
	Delay         time.Duration `json:"delay" yaml:"delay"`
	RetryDelay    time.Duration `json:"retryDelay" yaml:"retryDelay"`
	RetryLimit    int           `json:"retryLimit" yaml:"retryLimit"`
	NoDelayLevel0 bool          `json:"noDelayLevel0" yaml:"noDelayLevel0"`
	DeleteScratch bool          `json:"deleteScratch" yaml:"deleteScratch"`
}

// Override holds call time values, nil fields leave the lower precedence value in place
type Override struct {
	ScratchDir    *string
	Delay         *time.Duration
	RetryDelay    *time.Duration
	RetryLimit    *int
	NoDelayLevel0 *bool
	DeleteScratch *bool
}

// Default returns the built in settings
func Default() Config {
	return Config{
		ScratchDir:    "downloads",
		Delay:         time.Second,
		RetryDelay:    5 * time.Second,
		RetryLimit:    3,
		NoDelayLevel0: true,
		DeleteScratch: false,
	}
}

// Opts configures Load
type Opts func(*loadOpts)

type loadOpts struct {
	log *logrus.Logger
}

// WithLog injects a logrus Logger
func WithLog(log *logrus.Logger) Opts {
	return func(lo *loadOpts) {
		lo.log = log
	}
}

// File locates the config file.
// An explicit name wins over the IIIFARCHIVE_CONFIG variable, then the app config dir and the home dir.
// Returns nil when nothing was found.
func File(explicit string) *conffile.File {
	return conffile.New(
		conffile.WithHomeDir(homeDir, filename, false),
		conffile.WithAppDir(appDir, filename, false),
		conffile.WithEnvFile(EnvConfig),
		conffile.WithFullname(explicit),
	)
}

// DefaultFile is the location used when writing a new config
func DefaultFile() *conffile.File {
	return conffile.New(conffile.WithAppDir(appDir, filename, true))
}

// Load resolves the config from defaults, the file when cf is not nil, and ov
func Load(cf *conffile.File, ov Override, opts ...Opts) (Config, error) {
	lo := loadOpts{log: &logrus.Logger{Out: io.Discard}}
	for _, opt := range opts {
		opt(&lo)
	}
	c := Default()
	if cf != nil {
		rc, err := cf.Open()
		if err != nil {
			return c, fmt.Errorf("failed to open config %s: %w", cf.Name(), err)
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return c, fmt.Errorf("failed to read config %s: %w", cf.Name(), err)
		}
		c, err = c.parse(raw)
		if err != nil {
			return c, fmt.Errorf("config %s: %w", cf.Name(), err)
		}
		lo.log.WithFields(logrus.Fields{
			"file": cf.Name(),
		}).Debug("Loaded config")
	}
	c = c.Merge(ov, lo.log)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// LoadDefault loads the located config file.
// A file named explicitly or by IIIFARCHIVE_CONFIG must exist, otherwise defaults apply when none is found.
func LoadDefault(explicit string, ov Override, opts ...Opts) (Config, error) {
	return Load(File(explicit), ov, opts...)
}

// Parse reads ini content on top of the defaults
func Parse(raw []byte) (Config, error) {
	return Default().parse(raw)
}

func (c Config) parse(raw []byte) (Config, error) {
	f, err := ini.Load(raw)
	if err != nil {
		return c, fmt.Errorf("failed to parse ini: %w", err)
	}
	sec := f.Section(Section)
	if sec.HasKey(keyScratchDir) {
		c.ScratchDir = sec.Key(keyScratchDir).String()
	}
	for key, dp := range map[string]*time.Duration{keyDelay: &c.Delay, keyRetryDelay: &c.RetryDelay} {
		if !sec.HasKey(key) {
			continue
		}
		d, err := ParseDuration(sec.Key(key).String())
		if err != nil {
			return c, fmt.Errorf("%s: %w", key, err)
		}
		*dp = d
	}
	if sec.HasKey(keyRetryLimit) {
		c.RetryLimit, err = sec.Key(keyRetryLimit).Int()
		if err != nil {
			return c, fmt.Errorf("%s: %w", keyRetryLimit, err)
		}
	}
	for key, bp := range map[string]*bool{keyNoDelayLevel0: &c.NoDelayLevel0, keyDeleteScratch: &c.DeleteScratch} {
		if !sec.HasKey(key) {
			continue
		}
		b, err := sec.Key(key).Bool()
		if err != nil {
			return c, fmt.Errorf("%s: %w", key, err)
		}
		*bp = b
	}
	return c, nil
}

// Merge returns c with every set field of ov applied
func (c Config) Merge(ov Override, log *logrus.Logger) Config {
	if log == nil {
		log = &logrus.Logger{Out: io.Discard}
	}
	changed := func(key string, orig, val interface{}) {
		log.WithFields(logrus.Fields{
			"key":  key,
			"orig": orig,
			"new":  val,
		}).Debug("Overriding config")
	}
	if ov.ScratchDir != nil {
		changed(keyScratchDir, c.ScratchDir, *ov.ScratchDir)
		c.ScratchDir = *ov.ScratchDir
	}
	if ov.Delay != nil {
		changed(keyDelay, c.Delay, *ov.Delay)
		c.Delay = *ov.Delay
	}
	if ov.RetryDelay != nil {
		changed(keyRetryDelay, c.RetryDelay, *ov.RetryDelay)
		c.RetryDelay = *ov.RetryDelay
	}
	if ov.RetryLimit != nil {
		changed(keyRetryLimit, c.RetryLimit, *ov.RetryLimit)
		c.RetryLimit = *ov.RetryLimit
	}
	if ov.NoDelayLevel0 != nil {
		changed(keyNoDelayLevel0, c.NoDelayLevel0, *ov.NoDelayLevel0)
		c.NoDelayLevel0 = *ov.NoDelayLevel0
	}
	if ov.DeleteScratch != nil {
		changed(keyDeleteScratch, c.DeleteScratch, *ov.DeleteScratch)
		c.DeleteScratch = *ov.DeleteScratch
	}
	return c
}

// Validate checks for values the pipeline cannot run with
func (c Config) Validate() error {
	if c.ScratchDir == "" {
		return fmt.Errorf("%s: %w", keyScratchDir, types.ErrMissingInput)
	}
	if c.Delay < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("delays must not be negative: %w", types.ErrInvalidConfig)
	}
	if c.RetryLimit < 1 {
		return fmt.Errorf("%s %d must be at least 1: %w", keyRetryLimit, c.RetryLimit, types.ErrInvalidConfig)
	}
	return nil
}

// MarshalINI encodes c in the file format read by Load
func (c Config) MarshalINI() ([]byte, error) {
	f := ini.Empty()
	sec, err := f.NewSection(Section)
	if err != nil {
		return nil, err
	}
	for _, kv := range [][2]string{
		{keyScratchDir, c.ScratchDir},
		{keyDelay, FormatDuration(c.Delay)},
		{keyRetryDelay, FormatDuration(c.RetryDelay)},
		{keyRetryLimit, strconv.Itoa(c.RetryLimit)},
		{keyNoDelayLevel0, strconv.FormatBool(c.NoDelayLevel0)},
		{keyDeleteScratch, strconv.FormatBool(c.DeleteScratch)},
	} {
		if _, err := sec.NewKey(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	buf := &bytes.Buffer{}
	if _, err := f.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalPretty is used by the printPretty template function
func (c Config) MarshalPretty() ([]byte, error) {
	return c.MarshalINI()
}

// ParseDuration accepts a number of seconds or a Go duration string
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration: %w", types.ErrInvalidConfig)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, types.ErrInvalidConfig)
	}
	return d, nil
}

// FormatDuration writes whole seconds as a plain number
func FormatDuration(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10)
	}
	return d.String()
}
