package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"restricted-promotion/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig 从多个源加载配置：.env 文件、config.yaml、以及 config/promotion.json。
// 配置加载顺序:
// 1. .env 文件 (用于环境变量)
// 2. config.yaml (基础配置)
// 3. config/promotion.json (合并到主配置)
// 环境变量会覆盖配置文件中的同名设置。
func LoadConfig() (*models.AppConfig, error) {
	// 1. 从 .env 文件加载环境变量，如果文件不存在则忽略。
	if err := godotenv.Load(); err != nil {
		log.Printf("未找到 .env 文件，将跳过加载。")
	}

	v := viper.New()
	setDefaults(v)

	// 2. 设置并读取基础配置文件 (config.yaml)。
	v.SetConfigName("config")                          // 配置文件名 (无扩展名)
	v.SetConfigType("yaml")                            // 配置文件类型
	v.AddConfigPath(".")                               // 在当前工作目录中查找
	v.AutomaticEnv()                                   // 自动读取匹配的环境变量
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将配置键中的'.'替换为'_'以匹配环境变量

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("未找到基础配置文件 (config.yaml)，将仅使用环境变量和后续合并的配置。")
		} else {
			return nil, fmt.Errorf("解析基础配置文件时发生致命错误: %w", err)
		}
	}

	// 3. 合并宣传频道配置文件 (config/promotion.json)。
	v.SetConfigName("promotion")
	v.SetConfigType("json")
	v.AddConfigPath("./config")

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("未找到宣传频道配置文件 (config/promotion.json)，将跳过合并。")
		} else {
			return nil, fmt.Errorf("合并宣传频道配置文件时发生致命错误: %w", err)
		}
	}

	return FromViper(v)
}

// setDefaults 为每个键注册默认值，即使配置文件缺少该键，AutomaticEnv 也能用环境变量覆盖它。
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot_token", "")
	v.SetDefault("bot.adminChannelId", "")
	v.SetDefault("discord.channels", []string{})
	v.SetDefault("discord.alert_sec", 10)
	v.SetDefault("discord.alert_emoji", "⚠️")
	v.SetDefault("discord.required_message_length", 20)
	v.SetDefault("discord.ignore_roles", []string{})
	v.SetDefault("discord.resolve_timeout_sec", 10)
	v.SetDefault("ban_period.day", 1)
	v.SetDefault("ban_period.day_per_user", 3)
	v.SetDefault("ban_period.min_per_user_start", 30)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "data/history_log.db")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("invite_cache.size", 1024)
	v.SetDefault("invite_cache.ttl_sec", 300)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("grpc.listen", "")
}

// FromViper 解码并校验一个已加载好的 viper 实例。
func FromViper(v *viper.Viper) (*models.AppConfig, error) {
	var fc models.FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// 令牌通常只存在于环境变量中。
	if fc.BotToken == "" {
		fc.BotToken = v.GetString("BOT_TOKEN")
	}
	return Build(fc)
}

// Build 校验解码后的 FileConfig 并转换为 AppConfig。
func Build(fc models.FileConfig) (*models.AppConfig, error) {
	if fc.BotToken == "" {
		return nil, fmt.Errorf("no bot token provided")
	}
	if fc.Discord.RequiredMessageLength < 0 {
		return nil, fmt.Errorf("discord.required_message_length must not be negative, got %d", fc.Discord.RequiredMessageLength)
	}
	if fc.Discord.AlertSec < 0 {
		return nil, fmt.Errorf("discord.alert_sec must not be negative, got %d", fc.Discord.AlertSec)
	}
	bp := fc.BanPeriod
	if bp.Day < 0 || bp.DayPerUser < 0 || bp.MinPerUserStart < 0 {
		return nil, fmt.Errorf("ban_period values must not be negative: %+v", bp)
	}
	switch fc.Storage.Driver {
	case "sqlite", "memory":
	case "redis":
		if fc.Storage.RedisURL == "" {
			return nil, fmt.Errorf("storage.redis_url is required for the redis driver")
		}
	default:
		return nil, fmt.Errorf("unknown storage.driver %q", fc.Storage.Driver)
	}

	cfg := &models.AppConfig{
		BotToken:              fc.BotToken,
		AdminChannelID:        fc.Bot.AdminChannelID,
		Channels:              toSet(fc.Discord.Channels),
		IgnoreRoles:           toSet(fc.Discord.IgnoreRoles),
		AlertSec:              time.Duration(fc.Discord.AlertSec) * time.Second,
		AlertEmoji:            fc.Discord.AlertEmoji,
		RequiredMessageLength: fc.Discord.RequiredMessageLength,
		ResolveTimeout:        time.Duration(fc.Discord.ResolveTimeoutSec) * time.Second,
		BanPeriod: models.BanPeriod{
			Day:             time.Duration(bp.Day) * 24 * time.Hour,
			DayPerUser:      time.Duration(bp.DayPerUser) * 24 * time.Hour,
			MinPerUserStart: time.Duration(bp.MinPerUserStart) * time.Minute,
		},
		Storage:     fc.Storage,
		InviteCache: fc.InviteCache,
		Metrics:     fc.Metrics,
		GRPC:        fc.GRPC,
		Commands:    fc.Commands,
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	if len(cfg.Channels) == 0 {
		log.Printf("Warning: discord.channels is empty, no channel will be moderated.")
	}
	return cfg, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = true
		}
	}
	return set
}
