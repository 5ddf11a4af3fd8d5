package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"archvault/pkg/app"
	"archvault/pkg/config"
	"archvault/pkg/storage"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	AV *app.App
)

var rootCmd = &cobra.Command{
	Use:           "av",
	Short:         "ArchVault: content-addressed, deduplicating archive storage",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 测试可能已经注入了 AV
		if AV != nil {
			return nil
		}
		var err error
		AV, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize archvault: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	defer func() {
		if AV != nil {
			AV.Close()
		}
	}()
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.av/config.yaml)")

	// 2. 常用配置项也可以用参数覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Directory to store objects (disk backend)")
	rootCmd.PersistentFlags().String("log-level", "", "debug|info|warn|error")
	mustBind("storage.path", "storage-path")
	mustBind("log.level", "log-level")
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}

// runE 包装子命令：统一计时并记录一条结果日志
func runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		err := fn(cmd, args)
		logCommand(cmd.Context(), cmd.Name(), time.Since(start), err)
		return err
	}
}

func logCommand(ctx context.Context, command string, duration time.Duration, err error) {
	level := slog.LevelDebug
	if err != nil {
		// 找不到东西算用户错误，其他算系统错误
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAmbiguousHash) {
			level = slog.LevelWarn
		} else {
			level = slog.LevelError
		}
	}

	slog.Log(ctx, level, "command finished",
		slog.String("kind", "cli"),
		slog.String("command", command),
		slog.Duration("dur", duration),
		slog.String("err", errToString(err)),
	)
}

func errToString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
