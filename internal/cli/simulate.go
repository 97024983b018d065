package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"alphafeed/internal/app"
)

var (
	simulateFrame string
	simulateFile  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one upstream frame through the pipeline and the configured rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := getApp().Simulate(cmd.Context(), app.SimulateOptions{Frame: simulateFrame, Path: simulateFile})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !res.Accepted {
			fmt.Fprintln(out, "frame rejected: a JSON object with non-empty _id and title is required")
			return nil
		}
		fmt.Fprintf(out, "accepted: %s\ntickers: %s\nalerts: %d\n", res.NewsID, strings.Join(res.Tickers, ","), res.Alerts)
		for _, q := range res.Quotes {
			fmt.Fprintf(out, "first print: %s %s\n", q.Symbol, q.Price.String())
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFrame, "frame", "", "Raw upstream frame (JSON)")
	simulateCmd.Flags().StringVar(&simulateFile, "file", "", "Path to a file holding one upstream frame")
}
