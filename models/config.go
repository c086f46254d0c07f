package models

import "time"

// FileConfig mirrors config.yaml (and the merged config/promotion.json).
// Day and minute counts are converted into durations by config.LoadConfig.
type FileConfig struct {
	BotToken    string            `mapstructure:"bot_token"`
	Bot         BotFileConfig     `mapstructure:"bot"`
	Discord     DiscordFileConfig `mapstructure:"discord"`
	BanPeriod   BanPeriodConfig   `mapstructure:"ban_period"`
	Storage     StorageConfig     `mapstructure:"storage"`
	InviteCache InviteCacheConfig `mapstructure:"invite_cache"`
	Metrics     ListenConfig      `mapstructure:"metrics"`
	GRPC        ListenConfig      `mapstructure:"grpc"`
	Commands    CommandsConfig    `mapstructure:"commands"`
}

type BotFileConfig struct {
	AdminChannelID string `mapstructure:"adminchannelid"`
}

// DiscordFileConfig holds the moderation settings of the promotion channels.
type DiscordFileConfig struct {
	Channels              []string `mapstructure:"channels"`
	AlertSec              int      `mapstructure:"alert_sec"`
	AlertEmoji            string   `mapstructure:"alert_emoji"`
	RequiredMessageLength int      `mapstructure:"required_message_length"`
	IgnoreRoles           []string `mapstructure:"ignore_roles"`
	ResolveTimeoutSec     int      `mapstructure:"resolve_timeout_sec"`
}

// BanPeriodConfig is expressed in days, except MinPerUserStart which is in minutes.
type BanPeriodConfig struct {
	Day             int `mapstructure:"day"`
	DayPerUser      int `mapstructure:"day_per_user"`
	MinPerUserStart int `mapstructure:"min_per_user_start"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, memory or redis
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
}

type InviteCacheConfig struct {
	Size   int `mapstructure:"size"`
	TTLSec int `mapstructure:"ttl_sec"`
}

// TTL returns how long a resolved invite stays cached.
func (c InviteCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

type ListenConfig struct {
	Listen string `mapstructure:"listen"`
}

// CommandsConfig holds the permission lists of the slash commands.
type CommandsConfig struct {
	Auth struct {
		Developers  []string `mapstructure:"developers"`
		AdminsRoles []string `mapstructure:"admins_roles"`
		Guest       []string `mapstructure:"guest"`
	} `mapstructure:"auth"`
}

// AppConfig is the validated, immutable runtime configuration. It is built
// once at startup and passed by pointer; nothing mutates it afterwards.
type AppConfig struct {
	BotToken       string
	AdminChannelID string

	Channels              map[string]bool
	IgnoreRoles           map[string]bool
	AlertSec              time.Duration
	AlertEmoji            string
	RequiredMessageLength int
	ResolveTimeout        time.Duration

	BanPeriod BanPeriod

	Storage     StorageConfig
	InviteCache InviteCacheConfig
	Metrics     ListenConfig
	GRPC        ListenConfig
	Commands    CommandsConfig
}

// BanPeriod holds the cooldown windows as durations.
type BanPeriod struct {
	Day             time.Duration // server-level cooldown
	DayPerUser      time.Duration // author-level cooldown
	MinPerUserStart time.Duration // author grace window
}

// Retention is the age after which a cooldown timestamp can no longer
// influence any verdict.
func (b BanPeriod) Retention() time.Duration {
	r := b.Day
	if b.DayPerUser > r {
		r = b.DayPerUser
	}
	if b.MinPerUserStart > r {
		r = b.MinPerUserStart
	}
	return r
}

// IsPromotionChannel reports whether messages in channelID are moderated.
func (c *AppConfig) IsPromotionChannel(channelID string) bool {
	return c.Channels[channelID]
}
