package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Leaderboard  LeaderboardConfig  `mapstructure:"leaderboard"`
	ASR          ASRConfig          `mapstructure:"asr"`
	RateLimit    RateLimitConfig    `mapstructure:"rateLimit"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode         string     `mapstructure:"mode"`
	Address      string     `mapstructure:"address"`
	Cors         CorsConfig `mapstructure:"cors"`
	CookieSecret string     `mapstructure:"cookieSecret"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// SqliteConfig 定义了SQLite的配置
type SqliteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig 定义了PostgreSQL的配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GamificationConfig 定义了经验值与日期计算相关的配置
type GamificationConfig struct {
	Timezone       string `mapstructure:"timezone"`
	XPPerRecording int    `mapstructure:"xpPerRecording"`
}

// LeaderboardConfig 定义了排行榜聚合相关的配置
type LeaderboardConfig struct {
	UserPageSize        int           `mapstructure:"userPageSize"`
	RecordPageSize      int           `mapstructure:"recordPageSize"`
	TotalLimit          int           `mapstructure:"totalLimit"`
	TodayLimit          int           `mapstructure:"todayLimit"`
	LevelLimit          int           `mapstructure:"levelLimit"`
	AutoRefreshInterval time.Duration `mapstructure:"autoRefreshInterval"`
}

// ASRConfig 定义了语音识别服务的配置
type ASRConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig 定义了按IP滑动窗口限流的配置
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"maxRequests"`
}

// AuthConfig 定义了身份相关的配置
type AuthConfig struct {
	AdminUserIDs []string `mapstructure:"adminUserIDs"`
}

// LogConfig 定义了日志的配置
type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// Location 解析参考时区。所有"同一天"的判断都以它为准。
func (g GamificationConfig) Location() (*time.Location, error) {
	if g.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无法加载时区 '%s': %w", g.Timezone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:5173"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "dialect.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("gamification.timezone", "Asia/Shanghai")
	v.SetDefault("gamification.xpPerRecording", 10)
	v.SetDefault("leaderboard.userPageSize", 500)
	v.SetDefault("leaderboard.recordPageSize", 1000)
	v.SetDefault("leaderboard.totalLimit", 50)
	v.SetDefault("leaderboard.todayLimit", 20)
	v.SetDefault("leaderboard.levelLimit", 30)
	v.SetDefault("leaderboard.autoRefreshInterval", 30*time.Second)
	v.SetDefault("asr.timeout", 60*time.Second)
	v.SetDefault("rateLimit.window", time.Minute)
	v.SetDefault("rateLimit.maxRequests", 30)
	v.SetDefault("log.mode", "development")
}

// Load 负责查找、加载和解析配置文件。
// path 为空时依次在 ./config 和 . 中查找 config.yaml；找不到配置文件时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	// 1. 预加载 .env (可选)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("无法加载 .env 文件: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 2. 设置配置文件
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 3. 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:9090
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	// 5. 反序列化并校验
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("配置错误: server.mode 必须是 debug、release 或 test，当前为 '%s'", c.Server.Mode)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Sqlite.Path == "" {
			return errors.New("配置错误: database.sqlite.path 不能为空")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			return errors.New("配置错误: database.postgres.dsn 不能为空")
		}
	default:
		return fmt.Errorf("配置错误: 不支持的数据库驱动 '%s'", c.Database.Driver)
	}
	if _, err := c.Gamification.Location(); err != nil {
		return err
	}
	if c.Gamification.XPPerRecording <= 0 {
		return errors.New("配置错误: gamification.xpPerRecording 必须大于0")
	}
	lb := c.Leaderboard
	if lb.UserPageSize <= 0 || lb.RecordPageSize <= 0 || lb.TotalLimit <= 0 || lb.TodayLimit <= 0 || lb.LevelLimit <= 0 {
		return errors.New("配置错误: leaderboard 的分页与上榜数量必须大于0")
	}
	if lb.AutoRefreshInterval <= 0 {
		return errors.New("配置错误: leaderboard.autoRefreshInterval 必须大于0")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		return errors.New("配置错误: rateLimit 的窗口与次数必须大于0")
	}
	return nil
}

// ResolvePath 把相对路径解析为相对于工作目录的绝对路径，便于日志输出。
func ResolvePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
