package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀，例如 AV_STORAGE_TYPE 对应 storage.type
const EnvPrefix = "AV"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录 -> ./.av -> ~/.av
		viper.AddConfigPath(".")
		viper.AddConfigPath(".av")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".av"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (AV_STORAGE_S3_BUCKET 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，还有默认值和环境变量
		// 但如果是配置文件格式错，那就是错
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		slog.Debug("no config file found, using defaults/env vars")
	} else {
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 存储
	wd, _ := os.Getwd()
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(wd, ".av", "store"))
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.sql.driver", "sqlite")
	viper.SetDefault("storage.redis.ttl", "24h")

	// 写入管线
	viper.SetDefault("compression", "none")
	viper.SetDefault("chunker.type", "rolling")
	viper.SetDefault("digest.fanout", 128)

	// 读取缓存 (字节)
	viper.SetDefault("cache.bytes", 64<<20)

	viper.SetDefault("journal.driver", "sqlite")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
