package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iiif-archive/iiifarchive/config"
)

type restoreOpts struct {
	rootOpts *rootOpts
}

func newRestoreCmd(rOpts *rootOpts) *cobra.Command {
	opts := restoreOpts{
		rootOpts: rOpts,
	}
	cmd := &cobra.Command{
		Use:   "restore <bundle.zip> <dest-dir> <base-url>",
		Short: "Extract a bundle for a new host",
		Long: `Extract a bundle below the destination directory and rewrite the manifest and image services
so every reference starts with <base-url>/<bundle>/. No network requests are made.`,
		Example: `
# serve the bundle from https://static.example.org/iiif/book/manifest.json
iiifarchive restore book.zip /var/www/iiif https://static.example.org/iiif`,
		Args: cobra.ExactArgs(3),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			switch len(args) {
			case 0:
				return []string{"zip"}, cobra.ShellCompDirectiveFilterFileExt
			case 1:
				return nil, cobra.ShellCompDirectiveFilterDirs
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: opts.runRestore,
	}
	return cmd
}

func (opts *restoreOpts) runRestore(cmd *cobra.Command, args []string) error {
	conf, err := opts.rootOpts.loadConfig(config.Override{})
	if err != nil {
		return err
	}
	c := opts.rootOpts.newClient(conf)
	dir, err := c.Restore(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Inflated to: %s\n", dir)
	return nil
}
