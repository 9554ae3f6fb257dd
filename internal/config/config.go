package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mbeoliero/smsdesk/pkg/constant"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SMSDESK_CARRIER_AUTH_TOKEN
const EnvPrefix = "SMSDESK"

// Config holds all configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Carrier   CarrierConfig   `mapstructure:"carrier"`
	Relay     RelayConfig     `mapstructure:"relay"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RedisConfig holds the optional presence mirror configuration
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PushChannelSize  int           `mapstructure:"push_channel_size"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// CarrierConfig holds SMS carrier configuration
type CarrierConfig struct {
	Driver            string        `mapstructure:"driver"` // twilio | loopback
	BaseURL           string        `mapstructure:"base_url"`
	AccountSid        string        `mapstructure:"account_sid"`
	AuthToken         string        `mapstructure:"auth_token"`
	From              string        `mapstructure:"from"`
	StatusCallbackURL string        `mapstructure:"status_callback_url"`
	DefaultRegion     string        `mapstructure:"default_region"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	RateBurst         int           `mapstructure:"rate_burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerOpenFor    time.Duration `mapstructure:"breaker_open_for"`
	MachineId         uint16        `mapstructure:"machine_id"`
}

// RelayConfig holds message relay configuration
type RelayConfig struct {
	DeliveryPolicy string `mapstructure:"delivery_policy"` // broadcast | targeted
}

// Load loads configuration from file; SMSDESK_* environment variables override file values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with defaults
func ApplyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "smsdesk:"
	}
	if cfg.Redis.PresenceTTL == 0 {
		cfg.Redis.PresenceTTL = 60 * time.Second
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = (cfg.WebSocket.PongWait * 9) / 10
	}
	if cfg.WebSocket.PushChannelSize == 0 {
		cfg.WebSocket.PushChannelSize = 10000
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.Carrier.Driver == "" {
		cfg.Carrier.Driver = constant.CarrierLoopback
	}
	if cfg.Carrier.BaseURL == "" {
		cfg.Carrier.BaseURL = "https://api.twilio.com"
	}
	if cfg.Carrier.DefaultRegion == "" {
		cfg.Carrier.DefaultRegion = "US"
	}
	if cfg.Carrier.SubmitTimeout == 0 {
		cfg.Carrier.SubmitTimeout = 10 * time.Second
	}
	if cfg.Carrier.RatePerSecond == 0 {
		cfg.Carrier.RatePerSecond = 10
	}
	if cfg.Carrier.RateBurst == 0 {
		cfg.Carrier.RateBurst = 20
	}
	if cfg.Carrier.BreakerFailures == 0 {
		cfg.Carrier.BreakerFailures = 5
	}
	if cfg.Carrier.BreakerOpenFor == 0 {
		cfg.Carrier.BreakerOpenFor = 30 * time.Second
	}
	if cfg.Carrier.MachineId == 0 {
		cfg.Carrier.MachineId = 1
	}
	if cfg.Relay.DeliveryPolicy == "" {
		cfg.Relay.DeliveryPolicy = constant.DeliveryBroadcast
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	switch c.Relay.DeliveryPolicy {
	case constant.DeliveryBroadcast, constant.DeliveryTargeted:
	default:
		return fmt.Errorf("unknown relay.delivery_policy %q", c.Relay.DeliveryPolicy)
	}

	switch c.Carrier.Driver {
	case constant.CarrierLoopback:
	case constant.CarrierTwilio:
		if c.Carrier.AccountSid == "" || c.Carrier.AuthToken == "" {
			return fmt.Errorf("carrier.account_sid and carrier.auth_token are required for driver %q", c.Carrier.Driver)
		}
		if c.Carrier.From == "" {
			return fmt.Errorf("carrier.from is required for driver %q", c.Carrier.Driver)
		}
	default:
		return fmt.Errorf("unknown carrier.driver %q", c.Carrier.Driver)
	}

	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket.ping_period must be less than websocket.pong_wait")
	}
	return nil
}
