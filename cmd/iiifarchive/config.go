package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/internal/conffile"
	"github.com/iiif-archive/iiifarchive/pkg/template"
)

type configOpts struct {
	rootOpts *rootOpts
	format   string
	write    bool
}

func newConfigCmd(rOpts *rootOpts) *cobra.Command {
	opts := configOpts{
		rootOpts: rOpts,
	}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the config",
		Long: `Show the resolved download settings.
Settings come from --conf, $` + config.EnvConfig + `, or config.ini in the user config directory, on top of built in defaults.`,
		Example: `
# show the settings
iiifarchive config

# show the scratch directory
iiifarchive config --format '{{.ScratchDir}}'

# save the current settings as an ini file in the user config directory
iiifarchive config --write`,
		Args: cobra.ExactArgs(0),
		RunE: opts.runConfig,
	}
	cmd.Flags().StringVarP(&opts.format, "format", "", "{{printPretty .}}", "Format output with go template syntax")
	_ = cmd.RegisterFlagCompletionFunc("format", completeArgNone)
	cmd.Flags().BoolVarP(&opts.write, "write", "", false, "Write the settings to the config file")
	return cmd
}

func (opts *configOpts) runConfig(cmd *cobra.Command, args []string) error {
	var conf config.Config
	var err error
	if opts.write && opts.rootOpts.confFile != "" && !fileExists(opts.rootOpts.confFile) {
		// a new file starts from the defaults
		conf = config.Default()
	} else if conf, err = opts.rootOpts.loadConfig(config.Override{}); err != nil {
		return err
	}
	if !opts.write {
		return template.Writer(cmd.OutOrStdout(), opts.format, conf)
	}
	var cf *conffile.File
	if opts.rootOpts.confFile != "" {
		cf = conffile.New(conffile.WithFullname(opts.rootOpts.confFile), conffile.WithPerms(0o644))
	} else if cf = config.File(""); cf == nil {
		cf = config.DefaultFile()
	}
	if cf == nil {
		return fmt.Errorf("no config file location available")
	}
	raw, err := conf.MarshalINI()
	if err != nil {
		return err
	}
	if err := cf.Write(bytes.NewReader(raw)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", cf.Name())
	return nil
}

func fileExists(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && !fi.IsDir()
}
