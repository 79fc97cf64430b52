package main

import (
	"fmt"
	"os"

	"github.com/samber/do"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "drift",
		Short:         "Tools for the drift scripting engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInspectCmd())
	return root
}

func newInspectCmd() *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "inspect <checkpoint-file>",
		Short: "Show the continuation chain inside a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			injector := do.New()
			do.Provide(injector, newLoader)
			do.Provide(injector, newRenderer)

			loader := do.MustInvoke[*loader](injector)
			summary, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			if interactive {
				return browse(args[0], summary)
			}
			fmt.Print(do.MustInvoke[*renderer](injector).Render(args[0], summary))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false,
		"browse frames in a terminal UI")
	return cmd
}
