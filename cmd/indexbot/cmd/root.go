// Package cmd provides the CLI commands for indexbot.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aissist/indexbot/internal/config"
	apperrors "github.com/aissist/indexbot/internal/errors"
	"github.com/aissist/indexbot/internal/logging"
	"github.com/aissist/indexbot/internal/profiling"
	"github.com/aissist/indexbot/internal/project"
	"github.com/aissist/indexbot/internal/ui"
	"github.com/aissist/indexbot/pkg/version"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configFile string
	debug      bool
	offline    bool
	profile    profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the indexbot CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalFlags{})
}

func newRootCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexbot",
		Short: "Answer questions from a folder of documents",
		Long: `indexbot indexes the documents in a project's input/ directory
(PDF, Word, OpenDocument, Excel, PowerPoint, HTML, Markdown and text) into a
vector index, and answers questions by retrieving the most relevant passages
and asking a local language model served by Ollama.

Drop files into <base>/<project>/input and run 'indexbot build', or keep
'indexbot watch' running to rebuild whenever documents change.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := g.startLogging(); err != nil {
				return err
			}
			return g.startProfiling()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return g.finish()
		},
	}
	cmd.SetVersionTemplate("indexbot version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "Path to the project config file (default ./"+config.ProjectConfigFile+")")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.indexbot/logs/")
	cmd.PersistentFlags().BoolVar(&g.offline, "offline", false, "Use static embeddings (no embedding server)")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newBuildCmd(g))
	cmd.AddCommand(newAskCmd(g))
	cmd.AddCommand(newChatCmd(g))
	cmd.AddCommand(newDocsCmd(g))
	cmd.AddCommand(newAddCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := &globalFlags{}
	root := newRootCmd(g)
	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when the command fails.
	if ferr := g.finish(); ferr != nil {
		_, _ = fmt.Fprintf(root.ErrOrStderr(), "Warning: %v\n", ferr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		_, _ = fmt.Fprint(root.ErrOrStderr(), apperrors.FormatForCLI(err))
		return 1
	}
	return 0
}

// startLogging sends warnings to stderr, or everything to the debug log
// file with --debug.
func (g *globalFlags) startLogging() error {
	cfg := logging.DefaultConfig()
	cfg.Level = "warn"
	if g.debug {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	if g.debug {
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}
	return nil
}

// applyConfigLogging honours logging.level and logging.file once the
// configuration is known. --debug wins.
func (g *globalFlags) applyConfigLogging(cfg *config.Config) error {
	if g.debug {
		return nil
	}

	level := strings.ToLower(cfg.Logging.Level)
	lc := logging.DefaultConfig()
	switch {
	case cfg.Logging.File != "":
		lc.Level = level
		lc.FilePath = cfg.Logging.File
		lc.WriteToStderr = false
	case level == "debug" || level == "error":
		lc.Level = level
	default:
		// The terminal only shows warnings at info and warn.
		return nil
	}

	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	g.stopLogging()
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func (g *globalFlags) startProfiling() error {
	if !g.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(g.profile)
	if err != nil {
		return err
	}
	g.profiler = s
	slog.Debug("profiling_started",
		slog.String("cpu", g.profile.CPU),
		slog.String("heap", g.profile.Heap),
		slog.String("trace", g.profile.Trace))
	return nil
}

// finish flushes profiles and closes the log file. Safe to call twice.
func (g *globalFlags) finish() error {
	err := g.profiler.Stop()
	g.profiler = nil
	g.stopLogging()
	return err
}

func (g *globalFlags) stopLogging() {
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

// loadConfig loads the configuration for the working directory.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: g.configFile})
	if err != nil {
		return nil, apperrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Check " + configPath(g) + " or run 'indexbot config init'")
	}
	if err := g.applyConfigLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openProject loads the configuration and opens the project. The caller
// must Close it.
func (g *globalFlags) openProject(renderer ui.Renderer) (*project.Project, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return project.Open(cfg, project.Options{Offline: g.offline, Renderer: renderer})
}

func configPath(g *globalFlags) string {
	if g.configFile != "" {
		return g.configFile
	}
	return config.ProjectConfigFile
}
