package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/iiif-archive/iiifarchive/config"
	"github.com/iiif-archive/iiifarchive/pkg/template"
	"github.com/iiif-archive/iiifarchive/types/imageservice"
)

type planOpts struct {
	rootOpts *rootOpts
	format   string
}

// planOut is the data passed to --format templates
type planOut struct {
	ID       string                 `json:"id" yaml:"id"`
	Version  string                 `json:"version" yaml:"version"`
	Width    int                    `json:"width" yaml:"width"`
	Height   int                    `json:"height" yaml:"height"`
	Level0   bool                   `json:"level0" yaml:"level0"`
	Tiles    *imageservice.TileSpec `json:"tiles,omitempty" yaml:"tiles,omitempty"`
	Requests []planRequest          `json:"requests" yaml:"requests"`
}

type planRequest struct {
	ScaleFactor int    `json:"scaleFactor" yaml:"scaleFactor"`
	Region      string `json:"region" yaml:"region"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	Path        string `json:"path" yaml:"path"`
	URL         string `json:"url" yaml:"url"`
}

func newPlanCmd(rOpts *rootOpts) *cobra.Command {
	opts := planOpts{
		rootOpts: rOpts,
	}
	cmd := &cobra.Command{
		Use:   "plan <info-url>",
		Short: "List the tile requests for an image service",
		Long: `Fetch an image service descriptor and list every request an archive run makes for it.
The url may be the service id or its info.json.`,
		Example: `
# show the requests as a table
iiifarchive plan https://example.org/iiif/page1/info.json

# count the requests
iiifarchive plan https://example.org/iiif/page1 --format '{{len .Requests}}'

# output yaml
iiifarchive plan https://example.org/iiif/page1 --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: opts.runPlan,
	}
	cmd.Flags().StringVarP(&opts.format, "format", "", "table", "Output format (table, json, yaml) or a go template")
	_ = cmd.RegisterFlagCompletionFunc("format", completeFormat)
	return cmd
}

func (opts *planOpts) runPlan(cmd *cobra.Command, args []string) error {
	conf, err := opts.rootOpts.loadConfig(config.Override{})
	if err != nil {
		return err
	}
	c := opts.rootOpts.newClient(conf)
	svc, err := c.FetchService(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	reqs, err := imageservice.Plan(svc)
	if err != nil {
		return err
	}
	out := planOut{
		ID:       svc.GetID(),
		Version:  svc.Version().String(),
		Width:    svc.Width(),
		Height:   svc.Height(),
		Level0:   svc.IsLevel0(),
		Requests: make([]planRequest, 0, len(reqs)),
	}
	if ts, ok := svc.Tiles(); ok {
		out.Tiles = &ts
	}
	for _, r := range reqs {
		out.Requests = append(out.Requests, planRequest{
			ScaleFactor: r.ScaleFactor,
			Region:      r.Region.String(),
			Width:       r.Width,
			Height:      r.Height,
			Path:        svc.RequestPath(r),
			URL:         svc.RequestURL(r),
		})
	}
	if opts.format != "table" {
		return template.Writer(cmd.OutOrStdout(), opts.format, out)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("%s (%dx%d, image api %s)", out.ID, out.Width, out.Height, out.Version))
	tw.AppendHeader(table.Row{"Scale", "Region", "Size", "Path"})
	for _, r := range out.Requests {
		tw.AppendRow(table.Row{r.ScaleFactor, r.Region, strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height), r.Path})
	}
	tw.AppendFooter(table.Row{"", "", "Requests", len(out.Requests)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	tw.Render()
	return nil
}
