package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/always-cache/media-edge/core"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		edgeURL    string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the cache namespaces of a running edge",
		Long: `Show the cache namespaces of a running edge and their entry counts.

Examples:
  mediaedge status
  mediaedge status --edge http://edge.internal:8080 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st core.Status
			if err := newEdgeClient(edgeURL).do(cmd.Context(), http.MethodGet, "/status", &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			return renderStatus(out, st)
		},
	}
	cmd.Flags().StringVar(&edgeURL, "edge", defaultEdgeURL, "URL of the edge server")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func renderStatus(w io.Writer, st core.Status) error {
	fmt.Fprintf(w, "Manager: %s\nMedia entries: %d/%d\n\n", st.State, st.MediaEntries, st.MaxMedia)

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header([]string{"Namespace", "Entries", "Current"})
	rows := make([][]string, 0, len(st.Namespaces))
	for _, ns := range st.Namespaces {
		current := "no"
		if ns.Current {
			current = "yes"
		}
		rows = append(rows, []string{ns.Name, strconv.Itoa(ns.Entries), current})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
