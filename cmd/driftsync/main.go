package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftlab/driftsync/internal/config"
	"github.com/driftlab/driftsync/internal/rclone"
	"github.com/driftlab/driftsync/internal/sync"
	"github.com/driftlab/driftsync/internal/version"
)

var red = color.New(color.FgHiRed, color.Bold).SprintFunc()

var rootCmd = &cobra.Command{
	Use:     "driftsync <path_1> <path_2>",
	Short:   "Bidirectional sync for rclone paths",
	Long:    "DriftSync synchronizes two locations (local or rclone remotes) in both directions,\ndetecting changes against the last observed state and surfacing conflicts instead of resolving them.",
	Version: version.Detailed(),
	Args:    cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Path1:        args[0],
			Path2:        args[1],
			RclonePath:   viper.GetString("rclone_path"),
			RcloneConfig: viper.GetString("rclone_config"),
			Retries:      viper.GetInt("retries"),
			WorkDir:      viper.GetString("work_dir"),
			Excludes:     viper.GetStringSlice("excludes"),
			Checksum:     viper.GetBool("checksum"),
		}
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
		if err := cfg.Validate(); err != nil {
			return err
		}

		cmd.SilenceUsage = true
		return runPass(cmd.Context(), cfg)
	},
}

func runPass(ctx context.Context, cfg *config.Config) error {
	client := rclone.New(
		rclone.WithBinary(cfg.RclonePath),
		rclone.WithConfigFile(cfg.RcloneConfig),
		rclone.WithRetries(cfg.Retries),
		rclone.WithChecksum(cfg.Checksum),
	)

	// Pre-pass checks: each fatal condition maps to its own exit code and
	// aborts before any mutation.
	if _, err := client.Locate(); err != nil {
		return sync.Exit(sync.ExitRcloneMissing, err)
	}
	if _, err := client.ConfigFile(ctx); err != nil {
		return sync.Exit(sync.ExitRcloneConfig, err)
	}

	path1, err := client.ResolvePath(ctx, cfg.Path1)
	if err != nil {
		return sync.Exit(sync.ExitPath1Invalid, err)
	}
	path2, err := client.ResolvePath(ctx, cfg.Path2)
	if err != nil {
		return sync.Exit(sync.ExitPath2Invalid, err)
	}
	if path1 == path2 {
		return sync.Exit(sync.ExitPathsIdentical, fmt.Errorf("the two paths resolve to the same location: %s", path1))
	}

	if err := cfg.ResolveWorkDir(); err != nil {
		return sync.Exit(sync.ExitWorkDir, err)
	}

	engine := sync.NewEngine(sync.EngineConfig{
		Backend: client,
		WorkDir: cfg.WorkDir,
		Path1:   path1,
		Path2:   path2,
		Ignore:  sync.NewIgnoreList(cfg.WorkDir, cfg.Excludes),
		DryRun:  cfg.DryRun,
	})

	report, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	report.Print(os.Stdout)
	return nil
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("rclone", "r", "", "rclone executable file")
	rootCmd.Flags().String("rclone-config", "", "rclone configuration file")
	rootCmd.Flags().Int("retries", 1, "number of listing attempts")
	rootCmd.Flags().StringP("workdir", "w", config.DefaultWorkDir, "directory for state databases and lock files")
	rootCmd.Flags().StringSlice("exclude", nil, "glob patterns to exclude from sync")
	rootCmd.Flags().Bool("checksum", false, "use content hashes to detect changes")
	rootCmd.Flags().Bool("dry-run", false, "plan only, transfer and commit nothing")
	rootCmd.PersistentFlags().StringP("config", "c", "", "driftsync config file")
}

func main() {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))

		var exitErr *sync.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(filepath.Join(home, ".driftsync"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("rclone_path", cmd.Flags().Lookup("rclone"))
	viper.BindPFlag("rclone_config", cmd.Flags().Lookup("rclone-config"))
	viper.BindPFlag("retries", cmd.Flags().Lookup("retries"))
	viper.BindPFlag("work_dir", cmd.Flags().Lookup("workdir"))
	viper.BindPFlag("excludes", cmd.Flags().Lookup("exclude"))
	viper.BindPFlag("checksum", cmd.Flags().Lookup("checksum"))

	viper.SetEnvPrefix("DRIFTSYNC")
	viper.AutomaticEnv()

	return nil
}
