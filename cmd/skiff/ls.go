package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a remote directory",
	Example: `  skiff ls
  skiff ls /photos/2026 -l`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false,
		"Show sizes and modification times")
}

func runLs(cmd *cobra.Command, args []string) error {
	if err := requireBackend(); err != nil {
		return err
	}

	path := "/"
	if len(args) == 1 {
		path = args[0]
	}

	listing := core.Listing.List(cmd.Context(), path, "")
	if listing.Err != "" {
		return errors.New(listing.Err)
	}

	dirStyle := color.New(color.FgBlue, color.Bold)

	if !lsLong {
		for _, d := range listing.Directories {
			dirStyle.Printf("%s/\n", d.Name)
		}
		for _, f := range listing.Files {
			fmt.Println(f.Name)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, d := range listing.Directories {
		fmt.Fprintf(w, "%s\t%s\t%s/\n", "-", d.Modified, dirStyle.Sprint(d.Name))
	}
	for _, f := range listing.Files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", humanSize(f.Size), f.Modified, f.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d dirs, %d files, %s total\n",
		len(listing.Directories), len(listing.Files), humanSize(listing.TotalBytes))
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
