package main

import (
	"fmt"
	"os"

	"github.com/cuemby/dflow/pkg/graphdesc"
	"github.com/spf13/cobra"
)

var repositoryCmd = &cobra.Command{
	Use:   "repository",
	Short: "Store and retrieve graph descriptors in a local bbolt file",
}

var repoPutCmd = &cobra.Command{
	Use:   "put FILE",
	Short: "Load a graph descriptor from FILE and store it under its name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		g, err := graphdesc.Decode(f)
		f.Close()
		if err != nil {
			return err
		}

		repo, err := graphdesc.OpenRepository(db)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Put(g); err != nil {
			return err
		}
		fmt.Printf("✓ stored %q (%d nodes)\n", g.Name, len(g.Nodes))
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored graph names",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")

		repo, err := graphdesc.OpenRepository(db)
		if err != nil {
			return err
		}
		defer repo.Close()

		names, err := repo.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No graphs found")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var repoDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a stored graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")

		repo, err := graphdesc.OpenRepository(db)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ deleted %q\n", args[0])
		return nil
	},
}

func init() {
	repositoryCmd.AddCommand(repoPutCmd)
	repositoryCmd.AddCommand(repoListCmd)
	repositoryCmd.AddCommand(repoDeleteCmd)

	for _, cmd := range []*cobra.Command{repoPutCmd, repoListCmd, repoDeleteCmd} {
		cmd.Flags().String("db", "./dflow-graphs.db", "path to the bbolt repository file")
	}
}
