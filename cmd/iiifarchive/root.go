package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iiif-archive/iiifarchive"
	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/internal/cobradoc"
	"github.com/iiif-archive/iiifarchive/internal/version"
	"github.com/iiif-archive/iiifarchive/pkg/template"
)

// UserAgent sets the header on http requests
const UserAgent = "iiifarchive/cli"

type rootOpts struct {
	name      string
	confFile  string
	logopts   []string
	log       *logrus.Logger
	iaOpts    []iiifarchive.Opt
	userAgent string
	verbosity string
}

type versionOpts struct {
	rootOpts *rootOpts
	format   string
}

func NewRootCmd() (*cobra.Command, *rootOpts) {
	rOpts := &rootOpts{}
	cmd := &cobra.Command{
		Use:   "iiifarchive <cmd>",
		Short: "Archive IIIF manifests and their images",
		Long: `Archive IIIF manifests and their images into portable zip bundles,
and restore those bundles onto a new host.`,
		Example: `
# archive a manifest into book.zip
iiifarchive archive https://example.org/iiif/book/manifest.json --output book

# publish the bundle below a web root
iiifarchive restore book.zip /var/www/iiif https://static.example.org/iiif

# show the tile requests for an image service
iiifarchive plan https://example.org/iiif/page1/info.json

# show debugging output from a command
iiifarchive archive https://example.org/iiif/book/manifest.json -v debug`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rOpts.name = cmd.Name()
	rOpts.log = &logrus.Logger{
		Out:       os.Stderr,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.WarnLevel,
	}

	cmd.PersistentFlags().StringVarP(&rOpts.confFile, "conf", "", "", "Config file, defaults to $"+config.EnvConfig+" or the user config dir")
	cmd.PersistentFlags().StringVarP(&rOpts.verbosity, "verbosity", "v", logrus.WarnLevel.String(), "Log level (trace, debug, info, warn, error)")
	_ = cmd.RegisterFlagCompletionFunc("verbosity", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"trace", "debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
	cmd.PersistentFlags().StringArrayVar(&rOpts.logopts, "logopt", []string{}, "Log options (json)")
	_ = cmd.RegisterFlagCompletionFunc("logopt", completeArgNone)
	cmd.PersistentFlags().StringVarP(&rOpts.userAgent, "user-agent", "", "", "Override user agent")
	_ = cmd.RegisterFlagCompletionFunc("user-agent", completeArgNone)

	cmd.PersistentPreRunE = rOpts.rootPreRun
	cmd.AddCommand(cobradoc.NewCmd(rOpts.name, "cli-doc"))
	cmd.AddCommand(
		newArchiveCmd(rOpts),
		newConfigCmd(rOpts),
		newInspectCmd(rOpts),
		newPlanCmd(rOpts),
		newRestoreCmd(rOpts),
		newVersionCmd(rOpts),
	)
	return cmd, rOpts
}

func newVersionCmd(rOpts *rootOpts) *cobra.Command {
	opts := versionOpts{
		rootOpts: rOpts,
	}
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version",
		Long:  fmt.Sprintf(`Show the version of %s.`, opts.rootOpts.name),
		Example: fmt.Sprintf(`
# display full version details
%[1]s version

# retrieve the commit
%[1]s version --format '{{.VCSRef}}'`, opts.rootOpts.name),
		Args: cobra.ExactArgs(0),
		RunE: opts.runVersion,
	}
	cmd.Flags().StringVarP(&opts.format, "format", "", "{{printPretty .}}", "Format output with go template syntax")
	_ = cmd.RegisterFlagCompletionFunc("format", completeArgNone)
	return cmd
}

func (opts *rootOpts) rootPreRun(cmd *cobra.Command, args []string) error {
	lvl, err := logrus.ParseLevel(opts.verbosity)
	if err != nil {
		return fmt.Errorf("unable to parse verbosity %s: %v", opts.verbosity, err)
	}
	opts.log.SetOutput(cmd.ErrOrStderr())
	opts.log.SetLevel(lvl)
	formatJSON := false
	for _, opt := range opts.logopts {
		if opt == "json" {
			formatJSON = true
		}
	}
	if formatJSON {
		opts.log.SetFormatter(new(logrus.JSONFormatter))
	} else {
		opts.log.SetFormatter(&logrus.TextFormatter{
			DisableColors: !isTerminal(cmd.ErrOrStderr()),
		})
	}
	return nil
}

// loadConfig resolves the config file and applies the flag overrides
func (opts *rootOpts) loadConfig(ov config.Override) (config.Config, error) {
	return config.LoadDefault(opts.confFile, ov, config.WithLog(opts.log))
}

func (opts *rootOpts) newClient(conf config.Config, extra ...iiifarchive.Opt) *iiifarchive.Client {
	iaOpts := []iiifarchive.Opt{
		iiifarchive.WithConfig(conf),
		iiifarchive.WithLog(opts.log),
	}
	if opts.userAgent != "" {
		iaOpts = append(iaOpts, iiifarchive.WithUserAgent(opts.userAgent))
	} else {
		info := version.GetInfo()
		if info.Version != "" && info.Version != "(devel)" {
			iaOpts = append(iaOpts, iiifarchive.WithUserAgent(UserAgent+" ("+info.Version+")"))
		} else if info.VCSRef != "" {
			iaOpts = append(iaOpts, iiifarchive.WithUserAgent(UserAgent+" ("+info.VCSRef+")"))
		} else {
			iaOpts = append(iaOpts, iiifarchive.WithUserAgent(UserAgent))
		}
	}
	iaOpts = append(iaOpts, opts.iaOpts...)
	iaOpts = append(iaOpts, extra...)
	return iiifarchive.New(iaOpts...)
}

func (opts *versionOpts) runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	return template.Writer(cmd.OutOrStdout(), opts.format, info)
}

func completeArgNone(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func flagChanged(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return false
	}
	return flag.Changed
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// formatNames lists the shorthand formats, anything else is a go template
var formatNames = []string{"table", template.FormatJSON, template.FormatYAML}

func completeFormat(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	out := []string{}
	for _, f := range formatNames {
		if strings.HasPrefix(f, toComplete) {
			out = append(out, f)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
