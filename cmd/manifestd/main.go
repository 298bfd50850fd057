package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/manifestd/internal/config"
	"git.home.luguber.info/inful/manifestd/internal/daemon"
	"git.home.luguber.info/inful/manifestd/internal/eventstore"
	"git.home.luguber.info/inful/manifestd/internal/generator"
	"git.home.luguber.info/inful/manifestd/internal/git"
	"git.home.luguber.info/inful/manifestd/internal/refresher"
	"git.home.luguber.info/inful/manifestd/internal/version"
	"git.home.luguber.info/inful/manifestd/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"manifestd.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Revision string `help:"Revision to verify in the snapshot (as a push trigger would carry)"`
		Branch   string `help:"Branch to refresh (defaults to the configured branch)"`
	} `cmd:"" help:"Perform one refresh run and exit (exit code 0 on NoChange/Published, 1 on generation failure, 2 on publish failure)"`

	Generate struct {
		Path   string `arg:"" optional:"" help:"Repository checkout to generate from (defaults to a fresh clone)"`
		Output string `short:"o" help:"Write the artifact to a file instead of stdout"`
	} `cmd:"" help:"Generate the artifact without committing or pushing"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Daemon struct{} `cmd:"" help:"Run continuously: webhook server, schedule and config watcher"`

	History struct {
		Limit int `short:"n" help:"Number of runs to show" default:"20"`
	} `cmd:"" help:"Show recent refresh runs from the daemon state directory"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	switch ctx.Command() {
	case "init":
		setupLogging(nil)
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", CLI.Config)
		return
	case "version":
		fmt.Printf("manifestd %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		return
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		setupLogging(nil)
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	switch ctx.Command() {
	case "run":
		os.Exit(runOnce(cfg))
	case "generate", "generate <path>":
		if err := runGenerate(cfg, CLI.Generate.Path, CLI.Generate.Output); err != nil {
			slog.Error("Generate failed", "error", err)
			os.Exit(1)
		}
	case "daemon":
		if err := runDaemon(cfg, CLI.Config); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "history":
		if err := runHistory(cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	}
}

// setupLogging configures the default slog handler from config (nil config
// means defaults). The --verbose flag always wins.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	format := config.LogFormatText
	if cfg != nil {
		level = cfg.Logging.Level.SlogLevel()
		format = cfg.Logging.Format
	}
	if CLI.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// runOnce performs a single refresh in an ephemeral workspace and returns the
// process exit code.
func runOnce(cfg *config.Config) int {
	wsManager := workspace.NewManager("")
	if err := wsManager.Create(); err != nil {
		slog.Error("Failed to create workspace", "error", err)
		return 1
	}
	defer func() {
		if err := wsManager.Cleanup(); err != nil {
			slog.Warn("Failed to cleanup workspace", "error", err)
		}
	}()

	trig := refresher.ManualTrigger()
	if CLI.Run.Revision != "" {
		trig = refresher.PushTrigger(CLI.Run.Revision, CLI.Run.Branch)
	} else if CLI.Run.Branch != "" {
		trig.Branch = CLI.Run.Branch
	}

	out := refresher.New(cfg, wsManager.GetPath()).Run(context.Background(), trig)
	return out.Result.ExitCode()
}

// runGenerate produces the artifact from a checkout (cloning one when no path
// is given) without touching version control.
func runGenerate(cfg *config.Config, path, output string) error {
	root := path
	if root == "" {
		wsManager := workspace.NewManager("")
		if err := wsManager.Create(); err != nil {
			return err
		}
		defer func() {
			if err := wsManager.Cleanup(); err != nil {
				slog.Warn("Failed to cleanup workspace", "error", err)
			}
		}()

		gitClient := git.NewClient(wsManager.GetPath()).WithBuildConfig(&cfg.Build)
		cloned, err := gitClient.CloneRepository(cfg.Repository)
		if err != nil {
			return err
		}
		root = cloned
	}

	artifact, err := generator.NewInventory(cfg.Generator).Generate(context.Background(), root)
	if err != nil {
		return err
	}

	if output != "" {
		return os.WriteFile(output, artifact, 0o644)
	}
	_, err = os.Stdout.Write(artifact)
	return err
}

func runDaemon(cfg *config.Config, configPath string) error {
	if cfg.Daemon == nil {
		return fmt.Errorf("config has no daemon section (run 'manifestd init' for an example)")
	}

	d, err := daemon.New(cfg, configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return d.Stop(shutdownCtx)
}

func runHistory(cfg *config.Config, limit int) error {
	if cfg.Daemon == nil {
		return fmt.Errorf("config has no daemon section, no run history available")
	}

	store, err := eventstore.NewSQLiteStore(filepath.Join(cfg.Daemon.StateDir, "runs.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	for _, run := range runs {
		line := fmt.Sprintf("%s  %-8s  %-17s  %s",
			run.StartedAt.Format(time.RFC3339), run.Trigger, run.Result, run.RunID)
		if run.CommitSHA != "" {
			line += fmt.Sprintf("  commit=%s", run.CommitSHA[:8])
		}
		if run.ErrorText != "" {
			line += fmt.Sprintf("  error=%q", run.ErrorText)
		}
		fmt.Println(line)
	}
	return nil
}
