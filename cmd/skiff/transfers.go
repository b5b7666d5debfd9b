package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mhollis/skiff/internal/models"
)

var transfersLimit int

var transfersCmd = &cobra.Command{
	Use:     "transfers",
	Short:   "Show recent transfer history",
	Example: `  skiff transfers -n 20`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		if core.Journal == nil {
			return errors.New("transfer history is disabled; enable history in skiff.yaml")
		}

		items, err := core.Journal.Recent(transfersLimit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No transfers recorded.")
			return nil
		}

		okStyle := color.New(color.FgGreen)
		errStyle := color.New(color.FgRed)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, item := range items {
			status := okStyle.Sprint(item.Status)
			if item.Status == models.StatusError {
				status = errStyle.Sprint(item.Status)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				item.FinishedAt.Local().Format("2006-01-02 15:04"),
				status, humanSize(item.Size), item.TargetPath, item.Error)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(transfersCmd)
	transfersCmd.Flags().IntVarP(&transfersLimit, "limit", "n", 20,
		"Maximum number of entries to show")
}
