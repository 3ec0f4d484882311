// Package main 合成训练数据工具的命令行入口
//
// 基本用法:
//
//	next-datakit run --config configs/config.yaml
//	next-datakit create docs/paper.pdf --type qa --num-pairs 20
//	next-datakit serve
//
// 配置文件路径依次取 --config、NEXT_DATAKIT_CONFIG、./configs/config.yaml，
// 都不存在时只使用默认值与 NEXT_DATAKIT_* 环境变量。
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// 构建信息，由 ldflags 注入
var (
	version = "dev"
	commit  = "none"
)

// 全局参数
var (
	configPath string
	debug      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "next-datakit",
		Short: "Generate curated synthetic training data from documents",
		Long: `next-datakit turns a folder of documents into a fine-tuning dataset:
question/answer pairs, chain-of-thought examples and tool-use conversations,
each rated by an LLM judge and filtered by a quality threshold.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildIngestCmd(),
		buildCreateCmd(),
		buildCurateCmd(),
		buildToolUseCmd(),
		buildServeCmd(),
		buildWatchCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
