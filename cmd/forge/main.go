// GenForge CLI: drives the multi-agent pipeline that turns a prompt into a
// requirements document, a task queue, and generated tests, and answers
// one-off questions through the RAG middleware.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"genforge/internal/config"
	"genforge/internal/logging"
	"genforge/internal/team"
	"genforge/internal/types"
)

var (
	verbose    bool
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "GenForge - multi-agent code generation pipeline",
	Long: `GenForge orchestrates a team of LLM agents: an architect that drafts
requirements and tasks, a tester that generates and runs tests, and a RAG
middleware that routes their questions to retrieval delegates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(verbose, true); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		var err error
		cfg, err = config.Load(configPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var runDir string

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run the full pipeline for a project prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		tm, err := team.New(cfg)
		if err != nil {
			return err
		}
		defer tm.Close()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		if err := tm.Watch(ctx); err != nil {
			return err
		}

		result, err := tm.Run(ctx, prompt, runDir)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Project: " + result.ProjectName))
		fmt.Println("Requirements document: " + result.DocumentPath)
		fmt.Println(renderTasks(result.Tasks))
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Route one question through the RAG middleware",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		tm, err := team.New(cfg)
		if err != nil {
			return err
		}
		defer tm.Close()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		state, err := tm.Query(ctx, "cli", uuid.NewString(), question)
		if err != nil {
			return err
		}

		switch state.ResponseType {
		case types.ResponseAnswered, types.ResponseFromCache:
			fmt.Println(renderMarkdown(state.Response))
		default:
			fmt.Println(warnStyle.Render(fmt.Sprintf("[%s] %s", state.ResponseType, state.Response)))
		}
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the registered retrieval delegates",
	RunE: func(cmd *cobra.Command, args []string) error {
		tm, err := team.New(cfg)
		if err != nil {
			return err
		}
		defer tm.Close()

		entries := tm.Registry().Agents()
		if len(entries) == 0 {
			fmt.Println(warnStyle.Render("no retrieval delegates registered"))
			return nil
		}

		rows := make([]string, 0, len(entries)+1)
		rows = append(rows, headerStyle.Render(fmt.Sprintf("%-20s %s", "ID", "DESCRIPTION")))
		for _, e := range entries {
			rows = append(rows, fmt.Sprintf("%-20s %s", e.ID, e.Description))
		}
		fmt.Println(tableStyle.Render(strings.Join(rows, "\n")))
		return nil
	},
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tableStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func renderTasks(tasks []types.Task) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks:"))
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n  [%s] %s", t.Status, t.Description)
	}
	return b.String()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "path to the config file")
	runCmd.Flags().StringVar(&runDir, "dir", ".", "project directory the agents write into")

	rootCmd.AddCommand(runCmd, queryCmd, agentsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
