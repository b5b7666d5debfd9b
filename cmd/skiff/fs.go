package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mhollis/skiff/internal/vpath"
)

var rmCmd = &cobra.Command{
	Use:     "rm <path>",
	Short:   "Delete a remote file or directory",
	Example: `  skiff rm /docs/old-report.csv`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		if err := core.Mutation.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", vpath.Normalize(args[0]))
		return nil
	},
}

var mvCmd = &cobra.Command{
	Use:     "mv <path> <dest-dir>",
	Short:   "Move a remote file or directory into another directory",
	Example: `  skiff mv /inbox/report.csv /reports/2026`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		if err := core.Mutation.Move(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Moved %s to %s\n", vpath.Normalize(args[0]), vpath.Normalize(args[1]))
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:     "rename <path> <new-name>",
	Short:   "Rename a remote file or directory in place",
	Example: `  skiff rename /docs/draft.md final.md`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		if err := core.Mutation.Rename(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %s\n", vpath.Normalize(args[0]), args[1])
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:     "mkdir <path>",
	Short:   "Create a remote directory",
	Example: `  skiff mkdir /reports/2026`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}

		path := vpath.Normalize(args[0])
		name, ok := vpath.LeafName(path)
		if !ok {
			return fmt.Errorf("cannot create the root directory")
		}
		parent, _ := vpath.Parent(path)

		if err := core.Mutation.Mkdir(cmd.Context(), parent, name); err != nil {
			return err
		}
		fmt.Printf("Created %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd, mvCmd, renameCmd, mkdirCmd)
}
