package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/pkg/template"
)

type inspectOpts struct {
	rootOpts *rootOpts
	format   string
}

type inspectOut struct {
	ID         string         `json:"id" yaml:"id"`
	Label      string         `json:"label" yaml:"label"`
	Version    string         `json:"version" yaml:"version"`
	Containers []containerOut `json:"containers" yaml:"containers"`
}

type containerOut struct {
	ID           string `json:"id" yaml:"id"`
	Label        string `json:"label" yaml:"label"`
	URL          string `json:"url" yaml:"url"`
	Downloadable bool   `json:"downloadable" yaml:"downloadable"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newInspectCmd(rOpts *rootOpts) *cobra.Command {
	opts := inspectOpts{
		rootOpts: rOpts,
	}
	cmd := &cobra.Command{
		Use:   "inspect <manifest-url>",
		Short: "List the canvases of a manifest",
		Long: `Fetch a manifest and list each canvas with the asset or image service it references.
Canvases that cannot be archived are listed with their error.`,
		Example: `
# list canvases
iiifarchive inspect https://example.org/iiif/book/manifest.json

# output json
iiifarchive inspect https://example.org/iiif/book/manifest.json --format json`,
		Args: cobra.ExactArgs(1),
		RunE: opts.runInspect,
	}
	cmd.Flags().StringVarP(&opts.format, "format", "", "table", "Output format (table, json, yaml) or a go template")
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormat)
	return cmd
}

func (opts *inspectOpts) runInspect(cmd *cobra.Command, args []string) error {
	conf, err := opts.rootOpts.loadConfig(config.Override{})
	if err != nil {
		return err
	}
	c := opts.rootOpts.newClient(conf)
	m, err := c.FetchManifest(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cl, err := m.Containers()
	if err != nil {
		return err
	}
	out := inspectOut{
		ID:         m.GetID(),
		Label:      m.GetLabel(),
		Version:    m.Version().String(),
		Containers: make([]containerOut, 0, len(cl)),
	}
	for _, cont := range cl {
		co := containerOut{
			ID:    cont.GetID(),
			Label: cont.GetLabel(),
		}
		dl, err := cont.IsDownloadable()
		if err == nil {
			co.Downloadable = dl
			co.URL, err = cont.GetURL()
		}
		if err != nil {
			co.Error = err.Error()
		}
		out.Containers = append(out.Containers, co)
	}
	if opts.format != "table" {
		return template.Writer(cmd.OutOrStdout(), opts.format, out)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("%s (presentation api %s)", out.Label, out.Version))
	tw.AppendHeader(table.Row{"#", "Label", "Type", "URL"})
	for i, co := range out.Containers {
		kind := "service"
		switch {
		case co.Error != "":
			kind, co.URL = "error", co.Error
		case co.Downloadable:
			kind = "asset"
		}
		tw.AppendRow(table.Row{strconv.Itoa(i + 1), co.Label, kind, co.URL})
	}
	tw.Render()
	return nil
}
