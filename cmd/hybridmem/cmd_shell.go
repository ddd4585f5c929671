package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sipeed/hybridmem/pkg/tools"
)

var shellSession string

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive tool shell",
	Long: `Opens a prompt for calling tools directly. Type a tool name followed by
optional JSON arguments, for example:

  graph_entity {"id": "WRN-00001"}
  scratchpad_write {"subject": "WRN-00001", "predicate": "observed", "object": "seal", "content": "leaking"}
  context why is WRN-00001 overheating

"tools" lists tools, "exit" quits.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	shellCmd.Flags().StringVar(&shellSession, "session", "cli:shell", "working memory session key")
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hybridmem", "shell_history")
}

func runShell(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hybridmem> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(rt.registry),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %q. Type \"tools\" for a list, \"exit\" to quit.\n", shellSession)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		result, err := shellEval(cmd.Context(), rt.registry, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, result)
	}
}

// shellEval runs one shell line: "tools", "context <query>" or
// "<tool> [json args]".
func shellEval(ctx context.Context, reg *tools.ToolRegistry, line string) (string, error) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "tools", "help":
		return strings.Join(reg.GetSummaries(), "\n"), nil
	case "context":
		if rest == "" {
			return "", fmt.Errorf("usage: context <query>")
		}
		return reg.ExecuteWithContext(ctx, "memory_context", map[string]interface{}{"query": rest}, shellSession)
	}

	args := map[string]interface{}{}
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return "", fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	return reg.ExecuteWithContext(ctx, name, args, shellSession)
}

func completer(reg *tools.ToolRegistry) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("tools"),
		readline.PcItem("context"),
		readline.PcItem("exit"),
	}
	for _, name := range reg.List() {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}
