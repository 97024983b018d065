package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"alphafeed/internal/app"
)

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the most recent stored news",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 || showLimit > 100 {
			return fmt.Errorf("--limit must be between 1 and 100")
		}
		return getApp().Show(cmd.Context(), app.ShowOptions{Limit: showLimit})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of news items to display")
}
