// Scout is a conversational research assistant.
//
// It answers questions with an LLM that can search the web, do
// arithmetic, look up stock quotes, and check the weather. Every
// conversation is a durable thread with an automatically maintained
// title. Scout exposes an HTTP API with SSE streaming, a browser chat
// UI over websockets, and a CLI for one-shot questions.
//
// Usage:
//
//	scout serve              Start the API server
//	scout ask <question>     Ask a single question (for testing)
//	scout init [dir]         Write a starter config file
//	scout version            Print version and build information
//	scout -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nugget/scout/internal/agent"
	"github.com/nugget/scout/internal/api"
	"github.com/nugget/scout/internal/buildinfo"
	"github.com/nugget/scout/internal/config"
	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/markets"
	"github.com/nugget/scout/internal/research"
	"github.com/nugget/scout/internal/summarize"
	"github.com/nugget/scout/internal/thread"
	"github.com/nugget/scout/internal/title"
	"github.com/nugget/scout/internal/tools"
	"github.com/nugget/scout/internal/weather"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small enough that manual parsing stays clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: scout ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Scout - Conversational Research Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: scout [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server and web UI")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  init [dir]   Write a starter config file (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./scout.yaml, ~/.config/scout/config.yaml, /etc/scout/config.yaml")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// starterConfig is written by "scout init". Environment variable
// references are expanded at load time.
const starterConfig = `# Scout configuration
listen:
  address: ""
  port: 8080

models:
  base_url: https://api.groq.com/openai/v1
  api_key: ${GROQ_API_KEY}
  chat: meta-llama/llama-4-scout-17b-16e-instruct
  summary: openai/gpt-oss-120b
  title: openai/gpt-oss-120b

search:
  provider: tavily
  api_key: ${TAVILY_API_KEY}

markets:
  api_key: ${ALPHAVANTAGE_API_KEY}

weather:
  api_key: ${WEATHERSTACK_API_KEY}

agent:
  max_tool_iterations: 10

data_dir: .
log_level: info
`

// runInit writes a starter config into dir, refusing to overwrite an
// existing one.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	path := filepath.Join(dir, "scout.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	fmt.Fprintln(stdout, "Set GROQ_API_KEY (and optionally TAVILY_API_KEY, ALPHAVANTAGE_API_KEY,")
	fmt.Fprintln(stdout, "WEATHERSTACK_API_KEY) in the environment, then run: scout serve")
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", fmt.Errorf("%w (run 'scout init' to create one)", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger creates a structured logger writing to w. All log output
// goes through slog; this helper standardizes handler configuration
// across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// buildAgent wires the full toolchain from configuration: the LLM
// client, the thread store at dbPath, the summarizer and title
// maintainer, and every tool whose provider has an API key configured.
func buildAgent(cfg *config.Config, dbPath string, logger *slog.Logger) (*agent.Agent, *thread.Store, error) {
	client := llm.NewOpenAIClient(cfg.Models.BaseURL, cfg.Models.APIKey, logger.With("component", "llm"))

	store, err := thread.NewStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open thread store: %w", err)
	}

	summarizer := summarize.New(client, cfg.Models.Summary, logger.With("component", "summarize"))
	titler := summarize.New(client, cfg.Models.Title, logger.With("component", "title"))
	generator := title.NewGenerator(titler, logger.With("component", "title"))
	maintainer := title.NewMaintainer(store, generator, logger.With("component", "title"))

	registry := tools.NewRegistry()
	if cfg.Search.APIKey != "" {
		registry.Register(research.Tool(
			research.NewTavily(cfg.Search.APIKey),
			summarizer,
			logger.With("component", "research"),
		))
	} else {
		logger.Info("web research disabled (no search API key)")
	}
	if cfg.Markets.APIKey != "" {
		registry.Register(markets.NewClient(cfg.Markets.APIKey, logger.With("component", "markets")).Tool())
	} else {
		logger.Info("stock quotes disabled (no markets API key)")
	}
	if cfg.Weather.APIKey != "" {
		registry.Register(weather.NewClient(cfg.Weather.APIKey, logger.With("component", "weather")).Tool())
	} else {
		logger.Info("weather disabled (no weather API key)")
	}

	a := agent.New(
		logger.With("component", "agent"),
		client,
		cfg.Models.Chat,
		registry,
		store,
		maintainer,
		cfg.Agent.MaxToolIterations,
	)
	return a, store, nil
}

// runAsk boots a throwaway agent against an in-memory thread store and
// answers a single question on stdout. Useful for smoke tests without
// starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	a, store, err := buildAgent(cfg, ":memory:", logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := a.Run(ctx, "", question, func(ev llm.StreamEvent) {
		if ev.Kind == llm.KindToken {
			fmt.Fprint(stdout, ev.Token)
		}
	}); err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout)
	return nil
}

// runServe starts the API server and blocks until shutdown.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info("config loaded", "path", cfgPath)
	logger.Info(buildinfo.String())

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	a, store, err := buildAgent(cfg, filepath.Join(dataDir, "scout.db"), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := llmPing(ctx, cfg, logger); err != nil {
		logger.Warn("model endpoint unreachable at startup", "error", err)
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a, store, logger)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Scout stopped")
	return nil
}

// llmPing verifies the configured model endpoint responds. Failures are
// reported but not fatal: the endpoint may come up after Scout does.
func llmPing(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client := llm.NewOpenAIClient(cfg.Models.BaseURL, cfg.Models.APIKey, logger)
	return client.Ping(ctx)
}
