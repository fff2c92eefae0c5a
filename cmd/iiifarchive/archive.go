package main

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iiif-archive/iiifarchive"
	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/internal/ascii"
)

type archiveOpts struct {
	rootOpts      *rootOpts
	output        string
	scratch       string
	delay         string
	retryDelay    string
	retryLimit    int
	noDelayLevel0 bool
	deleteScratch bool
	progress      bool
}

func newArchiveCmd(rOpts *rootOpts) *cobra.Command {
	opts := archiveOpts{
		rootOpts: rOpts,
	}
	cmd := &cobra.Command{
		Use:   "archive <manifest-url>",
		Short: "Archive a manifest and its images",
		Long: `Download a manifest with every image it references into the scratch directory,
rewrite the manifest to point at the local copies, and package the result as a zip.
Files already in the scratch directory are reused, rerun a failed archive to resume it.`,
		Example: `
# archive into book.zip
iiifarchive archive https://example.org/iiif/book/manifest.json --output book

# archive quickly from a static level 0 server
iiifarchive archive https://example.org/iiif/book/manifest.json --delay 0

# remove the scratch copy after packaging
iiifarchive archive https://example.org/iiif/book/manifest.json --delete-scratch`,
		Args: cobra.ExactArgs(1),
		RunE: opts.runArchive,
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Bundle name, defaults to a name derived from the manifest url")
	cmd.Flags().StringVarP(&opts.scratch, "scratch", "", "", "Scratch directory for downloads")
	_ = cmd.MarkFlagDirname("scratch")
	cmd.Flags().StringVarP(&opts.delay, "delay", "", "", "Delay between requests, seconds or a duration")
	_ = cmd.RegisterFlagCompletionFunc("delay", completeArgNone)
	cmd.Flags().StringVarP(&opts.retryDelay, "retry-delay", "", "", "Delay before retrying a busy server, seconds or a duration")
	_ = cmd.RegisterFlagCompletionFunc("retry-delay", completeArgNone)
	cmd.Flags().IntVarP(&opts.retryLimit, "retry-limit", "", 0, "Attempts per request")
	_ = cmd.RegisterFlagCompletionFunc("retry-limit", completeArgNone)
	cmd.Flags().BoolVarP(&opts.noDelayLevel0, "no-delay-level0", "", false, "Skip the delay for tiles of level 0 image services")
	cmd.Flags().BoolVarP(&opts.deleteScratch, "delete-scratch", "", false, "Remove the scratch copy after packaging")
	cmd.Flags().BoolVarP(&opts.progress, "progress", "", true, "Show progress on a terminal")
	return cmd
}

func (opts *archiveOpts) runArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ov, err := opts.override(cmd)
	if err != nil {
		return err
	}
	conf, err := opts.rootOpts.loadConfig(ov)
	if err != nil {
		return err
	}
	output := opts.output
	if output == "" {
		output = defaultOutput(args[0])
	}
	name, _, err := iiifarchive.BundleName(output)
	if err != nil {
		return err
	}

	// concurrent runs on one bundle would corrupt the scratch tree
	if err := os.MkdirAll(conf.ScratchDir, 0o755); err != nil {
		return err
	}
	lockPath := filepath.Join(conf.ScratchDir, "."+name+".lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return fmt.Errorf("bundle %s is being archived by another process, lock %s", name, lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			opts.rootOpts.log.WithFields(logrus.Fields{
				"lock": lockPath,
				"err":  err,
			}).Warn("Failed to release lock")
		}
		_ = os.Remove(lockPath)
	}()

	iaOpts := []iiifarchive.Opt{}
	var pb *ascii.Progress
	canvases := 0
	if opts.progress && ascii.IsWriterTerminal(cmd.ErrOrStderr()) {
		pb = ascii.NewProgress(cmd.ErrOrStderr())
		iaOpts = append(iaOpts, iiifarchive.WithProgress(func(p iiifarchive.Progress) {
			canvases = p.Canvases
			pb.Update(p.Canvas, p.Canvases, p.Tile, p.Tiles)
		}))
	}
	c := opts.rootOpts.newClient(conf, iaOpts...)
	start := time.Now()
	zipPath, err := c.Archive(ctx, args[0], output)
	if err != nil {
		return err
	}
	if pb != nil {
		pb.Finish(canvases)
	}

	fi, err := os.Stat(zipPath)
	if err != nil {
		return err
	}
	//#nosec G304 file created by this command
	f, err := os.Open(zipPath)
	if err != nil {
		return err
	}
	dig, err := digest.Canonical.FromReader(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	opts.rootOpts.log.WithFields(logrus.Fields{
		"zip":     zipPath,
		"size":    fi.Size(),
		"digest":  dig.String(),
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Archive complete")
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", zipPath, humanize.Bytes(uint64(fi.Size())))
	return nil
}

// override collects the flags that were set on the command line
func (opts *archiveOpts) override(cmd *cobra.Command) (config.Override, error) {
	ov := config.Override{}
	if flagChanged(cmd, "scratch") {
		ov.ScratchDir = &opts.scratch
	}
	if flagChanged(cmd, "delay") {
		d, err := config.ParseDuration(opts.delay)
		if err != nil {
			return ov, fmt.Errorf("--delay: %w", err)
		}
		ov.Delay = &d
	}
	if flagChanged(cmd, "retry-delay") {
		d, err := config.ParseDuration(opts.retryDelay)
		if err != nil {
			return ov, fmt.Errorf("--retry-delay: %w", err)
		}
		ov.RetryDelay = &d
	}
	if flagChanged(cmd, "retry-limit") {
		ov.RetryLimit = &opts.retryLimit
	}
	if flagChanged(cmd, "no-delay-level0") {
		ov.NoDelayLevel0 = &opts.noDelayLevel0
	}
	if flagChanged(cmd, "delete-scratch") {
		ov.DeleteScratch = &opts.deleteScratch
	}
	return ov, nil
}

// defaultOutput names a bundle after the manifest url, skipping a trailing "manifest" segment
func defaultOutput(u string) string {
	p := u
	if pu, err := url.Parse(u); err == nil && pu.Path != "" {
		p = pu.Path
	}
	p = strings.TrimRight(p, "/")
	base := path.Base(p)
	if b := strings.TrimSuffix(base, path.Ext(base)); b == "manifest" || b == "" {
		base = path.Base(path.Dir(p))
	} else {
		base = b
	}
	if base == "" || base == "." || base == "/" {
		return "bundle"
	}
	return base
}
