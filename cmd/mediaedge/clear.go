package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var edgeURL string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache namespace of a running edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Deleted int `json:"deleted"`
			}
			if err := newEdgeClient(edgeURL).do(cmd.Context(), http.MethodDelete, "/caches", &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d cache(s)\n", res.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&edgeURL, "edge", defaultEdgeURL, "URL of the edge server")
	return cmd
}
