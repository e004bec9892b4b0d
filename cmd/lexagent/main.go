package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lexdesk/lexagent"
	"github.com/lexdesk/lexagent/internal/model"
	"github.com/lexdesk/lexagent/internal/service/dispatch"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lexagent",
		Short:         "Per-org legal AI agents: configuration, dispatch and usage metering",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedCmd(), callCmd(), agentsCmd(), usageCmd())
	return root
}

// newLogger builds the process logger. Level comes from LEXAGENT_LOG_LEVEL.
func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LEXAGENT_LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openApp builds an App for one-shot commands. Logs go to stderr so stdout
// carries only command output.
func openApp(opts ...lexagent.Option) (*lexagent.App, error) {
	logger := newLogger(os.Stderr)
	return lexagent.New(append([]lexagent.Option{
		lexagent.WithLogger(logger),
		lexagent.WithVersion(version),
		lexagent.WithoutServer(),
	}, opts...)...)
}

func serveCmd() *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdio {
				app, err := openApp()
				if err != nil {
					return err
				}
				defer app.Close()
				return app.ServeStdio(cmd.Context())
			}
			app, err := lexagent.New(
				lexagent.WithLogger(newLogger(os.Stdout)),
				lexagent.WithVersion(version),
			)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			app.Close()
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert missing agent catalog entries",
		Long:  "Insert catalog entries from a YAML file, or the built-in catalog when --file is omitted. Existing keys are never modified.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()
			n, err := app.SeedCatalog(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Printf("%d catalog entries added\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file")
	return cmd
}

func callCmd() *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p map[string]any
			if params != "" {
				dec := json.NewDecoder(strings.NewReader(params))
				dec.UseNumber()
				if err := dec.Decode(&p); err != nil {
					return fmt.Errorf("--params must be a JSON object: %w", err)
				}
			}
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.Dispatch(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "", `tool params as a JSON object, e.g. '{"orgId":"..."}'`)
	return cmd
}

func agentsCmd() *cobra.Command {
	agents := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and toggle agents for an org",
	}

	var org string
	list := &cobra.Command{
		Use:   "list",
		Short: "List effective agent configs for an org",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.Dispatch(cmd.Context(), dispatch.ToolAgentsList, map[string]any{"orgId": org})
			if err != nil {
				return err
			}
			cfgs, _ := out.([]model.AgentConfig)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Key", "Name", "Enabled", "Model", "Temperature", "Max Tokens"})
			for _, c := range cfgs {
				maxTokens := "-"
				if c.MaxTokens != nil {
					maxTokens = fmt.Sprint(*c.MaxTokens)
				}
				tw.AppendRow(table.Row{c.Key, c.Name, c.Enabled, c.Model, c.Temperature, maxTokens})
			}
			tw.Render()
			return nil
		},
	}
	list.Flags().StringVar(&org, "org", "", "org id")
	_ = list.MarkFlagRequired("org")

	var toggleOrg string
	toggle := &cobra.Command{
		Use:       "toggle <agent-key> <on|off>",
		Short:     "Enable or disable an agent for an org",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[1] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("state must be on or off, got %q", args[1])
			}
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.Dispatch(cmd.Context(), dispatch.ToolAgentsToggle, map[string]any{
				"orgId": toggleOrg, "agentKey": args[0], "enabled": enabled,
			})
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	toggle.Flags().StringVar(&toggleOrg, "org", "", "org id")
	_ = toggle.MarkFlagRequired("org")

	agents.AddCommand(list, toggle)
	return agents
}

func usageCmd() *cobra.Command {
	var org, period string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show monthly usage for an org",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()
			p := map[string]any{"orgId": org}
			if period != "" {
				p["period"] = period
			}
			out, err := app.Dispatch(cmd.Context(), dispatch.ToolUsageGet, p)
			if err != nil {
				return err
			}
			s, ok := out.(model.UsageSummary)
			if !ok {
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Period", "Runs", "Tokens In", "Tokens Out", "Cost (cents)"})
			tw.AppendRow(table.Row{s.Period, s.TotalRuns, s.TokensIn, s.TokensOut, s.CostCents})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "org id")
	cmd.Flags().StringVar(&period, "period", "", "YYYY-MM (defaults to the current month)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
