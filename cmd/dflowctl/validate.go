package main

import (
	"fmt"
	"os"

	"github.com/cuemby/dflow/pkg/graphdesc"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a graph descriptor file without building it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()

		g, err := graphdesc.Decode(f)
		if err != nil {
			return err
		}

		fmt.Printf("✓ %q is valid: %d nodes\n", g.Name, len(g.Nodes))
		return nil
	},
}
