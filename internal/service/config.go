// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全部配置
type Config struct {
	Server     ServerConfig    `mapstructure:"Server"`
	Channel    ChannelConfig   `mapstructure:"Channel"`
	Drag       DragConfig      `mapstructure:"Drag"`
	Indicators IndicatorConfig `mapstructure:"Indicators"`
	Alerts     AlertConfig     `mapstructure:"Alerts"`
	Log        LogConfig       `mapstructure:"Log"`
	Watchlist  []string        `mapstructure:"Watchlist"` // 启动时请求服务端跟踪的 ticker
}

// ServerConfig 定义了推送服务的连接信息
type ServerConfig struct {
	WSURL   string // 推送通道，例如 ws://localhost:3000/api/ws
	RESTURL string // 请求/响应通道前缀，例如 http://localhost:3000/api
}

// ChannelConfig 推送通道的重连与心跳策略
type ChannelConfig struct {
	ReconnectDelay   time.Duration // 异常断开后固定等待时间，无退避
	HeartbeatTimeout time.Duration // 超过该时间未收到任何消息即视为僵尸连接
	HandshakeTimeout time.Duration
	ReadLimit        int64 // 单帧最大字节数，0 表示不限制
}

// DragConfig 价格线拖拽参数
type DragConfig struct {
	Threshold    float64 // 命中阈值 (像素)
	TickSize     float64 // 价格最小变动单位，0 表示不取整
	LimitEpsilon float64 // 比较价格线集合时的容差
}

// IndicatorConfig 客户端补算指标
type IndicatorConfig struct {
	Backfill  bool
	RSIPeriod int
	MAPeriod  int
	BBPeriod  int
	ATRPeriod int
}

type AlertConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level       string
	Development bool
}

// DefaultConfig 返回全部默认值 (5s 重连 / 15s 心跳)
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			WSURL:   "ws://localhost:3000/api/ws",
			RESTURL: "http://localhost:3000/api",
		},
		Channel: ChannelConfig{
			ReconnectDelay:   5 * time.Second,
			HeartbeatTimeout: 15 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Drag: DragConfig{
			Threshold:    5,
			LimitEpsilon: 0.01,
		},
		Indicators: IndicatorConfig{
			Backfill:  true,
			RSIPeriod: 14,
			MAPeriod:  20,
			BBPeriod:  20,
			ATRPeriod: 14,
		},
		Alerts: AlertConfig{Enabled: true},
		Log:    LogConfig{Level: "info"},
	}
}

// LoadConfig 读取 .env、config.yaml 与环境变量并解析
// 配置文件不存在时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 只是可选项
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	// Server.WSURL -> SERVER_WSURL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("Server.WSURL", d.Server.WSURL)
	v.SetDefault("Server.RESTURL", d.Server.RESTURL)

	v.SetDefault("Channel.ReconnectDelay", d.Channel.ReconnectDelay)
	v.SetDefault("Channel.HeartbeatTimeout", d.Channel.HeartbeatTimeout)
	v.SetDefault("Channel.HandshakeTimeout", d.Channel.HandshakeTimeout)
	v.SetDefault("Channel.ReadLimit", d.Channel.ReadLimit)

	v.SetDefault("Drag.Threshold", d.Drag.Threshold)
	v.SetDefault("Drag.TickSize", d.Drag.TickSize)
	v.SetDefault("Drag.LimitEpsilon", d.Drag.LimitEpsilon)

	v.SetDefault("Indicators.Backfill", d.Indicators.Backfill)
	v.SetDefault("Indicators.RSIPeriod", d.Indicators.RSIPeriod)
	v.SetDefault("Indicators.MAPeriod", d.Indicators.MAPeriod)
	v.SetDefault("Indicators.BBPeriod", d.Indicators.BBPeriod)
	v.SetDefault("Indicators.ATRPeriod", d.Indicators.ATRPeriod)

	v.SetDefault("Alerts.Enabled", d.Alerts.Enabled)

	v.SetDefault("Log.Level", d.Log.Level)
	v.SetDefault("Log.Development", d.Log.Development)

	v.SetDefault("Watchlist", d.Watchlist)
}

// Validate 基础校验
func (c *Config) Validate() error {
	if c.Server.WSURL == "" {
		return fmt.Errorf("server websocket url cannot be empty")
	}
	if c.Server.RESTURL == "" {
		return fmt.Errorf("server rest url cannot be empty")
	}
	if c.Channel.ReconnectDelay <= 0 {
		return fmt.Errorf("invalid reconnect delay: %s", c.Channel.ReconnectDelay)
	}
	if c.Channel.HeartbeatTimeout <= 0 {
		return fmt.Errorf("invalid heartbeat timeout: %s", c.Channel.HeartbeatTimeout)
	}
	if c.Channel.HandshakeTimeout <= 0 {
		return fmt.Errorf("invalid handshake timeout: %s", c.Channel.HandshakeTimeout)
	}
	if c.Drag.Threshold < 0 || c.Drag.TickSize < 0 || c.Drag.LimitEpsilon < 0 {
		return fmt.Errorf("drag settings cannot be negative")
	}
	ind := c.Indicators
	if ind.Backfill && (ind.RSIPeriod < 2 || ind.MAPeriod < 2 || ind.BBPeriod < 2 || ind.ATRPeriod < 1) {
		return fmt.Errorf("invalid indicator periods: rsi=%d ma=%d bb=%d atr=%d",
			ind.RSIPeriod, ind.MAPeriod, ind.BBPeriod, ind.ATRPeriod)
	}
	return nil
}
