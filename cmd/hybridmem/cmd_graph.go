package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/hybridmem/pkg/config"
)

var (
	neighborsDirection string
	neighborsHops      int
	searchType         string
	searchLimit        int
	initForce          bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Writes the default configuration to --config. The format follows the file
extension (.json, .yaml or .yml). API keys are sealed when secrets.encrypt
is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.SaveConfig(configPath, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [records.json]",
	Short: "Index schematic records into the knowledge graph",
	Long: `Loads a JSON array of schematic records and indexes them: schematic,
status, category, model, component and tag entities plus compatible_with
edges between records of the same model. Defaults to indexer.records_path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.RecordsPath()
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no records file given and indexer.records_path is not set")
		}

		rt, err := newRuntime(cfg, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.graph.IndexFile(cmd.Context(), path)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge graph statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, "graph_stats", nil)
	},
}

var entityCmd = &cobra.Command{
	Use:   "entity <id>",
	Short: "Show an entity and its relationships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, "graph_entity", map[string]interface{}{"id": args[0]})
	},
}

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <id>",
	Short: "List entities connected to an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, "graph_neighbors", map[string]interface{}{
			"id":        args[0],
			"direction": neighborsDirection,
			"hops":      float64(neighborsHops),
		})
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <source> <target>",
	Short: "Find the shortest connection between two entities",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTool(cmd, "graph_path", map[string]interface{}{
			"source": args[0],
			"target": args[1],
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search entities by id or name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs := map[string]interface{}{
			"entity_type": searchType,
			"limit":       float64(searchLimit),
		}
		if len(args) == 1 {
			toolArgs["query"] = args[0]
		}
		return runTool(cmd, "graph_search", toolArgs)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file.md>",
	Short: "Write a markdown snapshot of the graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cfg, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.graph.ExportSnapshot(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", args[0])
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
	neighborsCmd.Flags().StringVarP(&neighborsDirection, "direction", "d", "both", "outgoing, incoming or both")
	neighborsCmd.Flags().IntVar(&neighborsHops, "hops", 1, "neighborhood radius (max 3)")
	searchCmd.Flags().StringVarP(&searchType, "type", "t", "", "restrict to an entity type")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "maximum results")
}

// runTool executes a graph tool against a fresh runtime and prints its output.
func runTool(cmd *cobra.Command, name string, args map[string]interface{}) error {
	rt, err := newRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	out, err := rt.registry.Execute(cmd.Context(), name, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
