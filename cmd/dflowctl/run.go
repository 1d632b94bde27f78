package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/dflow/pkg/app"
	"github.com/cuemby/dflow/pkg/graphdesc"
	"github.com/cuemby/dflow/pkg/runtime"
	"github.com/cuemby/dflow/pkg/types"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Build a graph descriptor and run it to completion",
	Long: `run builds every node in FILE, wires its declared edges, seeds any
initialData into its producers, and waits for every containerProcess
node to finish. It does not support the bare "barrier" kind, whose
Runner is supplied by embedding code, not a descriptor.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		socket, _ := cmd.Flags().GetString("containerd-socket")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		g, err := graphdesc.Decode(f)
		f.Close()
		if err != nil {
			return err
		}

		var rt runtime.Runtime
		if socket != "" {
			cd, err := runtime.NewContainerdRuntime(socket)
			if err != nil {
				return fmt.Errorf("connect to containerd at %s: %w", socket, err)
			}
			defer cd.Close()
			rt = cd
		}

		built, err := graphdesc.Build(g, graphdesc.BuildOptions{Runtime: rt})
		if err != nil {
			return err
		}

		var containerApps []*app.ContainerProcessApplication
		for _, n := range built {
			if cpa, ok := n.(*app.ContainerProcessApplication); ok {
				containerApps = append(containerApps, cpa)
			}
		}

		fmt.Printf("✓ built %q: %d nodes, %d container-process applications\n", g.Name, len(built), len(containerApps))

		deadline := time.Now().Add(timeout)
		for _, cpa := range containerApps {
			for cpa.ExecStatus() == types.ExecNotRun || cpa.ExecStatus() == types.ExecRunning {
				if timeout > 0 && time.Now().After(deadline) {
					return fmt.Errorf("timed out waiting for %s to finish", cpa.UID())
				}
				time.Sleep(50 * time.Millisecond)
			}
			fmt.Printf("  %s: %s\n", cpa.UID(), cpa.ExecStatus())
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("containerd-socket", "", "containerd socket path (required if the graph has containerProcess nodes)")
	runCmd.Flags().Duration("timeout", 0, "maximum time to wait for completion; 0 waits indefinitely")
}
