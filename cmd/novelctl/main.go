// Package main 命令行工具：在终端创建、推进与导出小说项目
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"

	"z-novel-forge/internal/config"
	"z-novel-forge/internal/infrastructure/eino/callback"
	"z-novel-forge/internal/wire"
	"z-novel-forge/pkg/logger"
)

// Version 版本信息，构建时注入
var Version = "dev"

func main() {
	_ = godotenv.Load()

	app := &cli.Command{
		Name:    "novelctl",
		Usage:   "Drive novel generation projects from the terminal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: config.DefaultDir, Usage: "Directory containing config.yaml"},
			&cli.StringFlag{Name: "storage", Usage: "Override storage driver (postgres|memory)"},
		},
		Commands: []*cli.Command{
			listCmd(),
			createCmd(),
			showCmd(),
			opCmd(),
			stepCmd(),
			runCmd(),
			exportCmd(),
			importCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withCore 加载配置并初始化编排核心
func withCore(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, core *wire.Core) error) error {
	cfg, err := config.LoadFrom(cmd.String("config-dir"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if driver := cmd.String("storage"); driver != "" {
		cfg.Storage.Driver = driver
	}
	logger.InitWithWriter(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	core, cleanup, err := wire.InitializeCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	callback.Init(core.Recorder)
	return fn(ctx, core)
}
