package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ENV_PREFIX    = "apsystems2mqtt"
	REDACTED      = "*redacted*"
	TASK_OVERHEAD = 1 * time.Second
)

// RECOVERY_ATTEMPTS is the first call plus the single retry after an expired
// session.
const RECOVERY_ATTEMPTS = 2

type Config struct {
	LogLevel      zapcore.Level
	APSystems     APSystemsConfig `mapstructure:"apsystems"`
	Retry         RetryConfig     `mapstructure:"retry"`
	MQTT          MQTTConfig      `mapstructure:"mqtt"`
	Influx        InfluxConfig    `mapstructure:"influx"`
	MonitorConfig MonitorConfig   `mapstructure:"monitor"`
	Port          uint            `mapstructure:"port"`
	HttpLog       bool            `mapstructure:"http_log"`
}

type APSystemsConfig struct {
	Username             string
	Password             string
	BaseURL              string `mapstructure:"base_url"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
}

// RetryConfig drives the recovery after an expired session. The number of
// attempts is fixed, only the pause before the refresh is tunable.
type RetryConfig struct {
	DelayMillis uint32 `mapstructure:"delay_millis"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type InfluxConfig struct {
	Enable bool
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.APSystems.RequestTimeoutMillis) * time.Millisecond
}

func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelayMillis) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.MonitorConfig.PollIntervalMillis) * time.Millisecond
}

// TaskTimeout bounds a single poll: the first call, the recovery delay, the
// session refresh and the retry.
func (c Config) TaskTimeout() time.Duration {
	attempts := RECOVERY_ATTEMPTS
	return time.Duration(attempts)*c.RequestTimeout() +
		time.Duration(attempts-1)*(c.RetryDelay()+c.RequestTimeout()) + TASK_OVERHEAD
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("apsystems.username", "")
	v.SetDefault("apsystems.password", "")
	v.SetDefault("apsystems.base_url", "https://api.apsystemsema.com:9282")
	v.SetDefault("apsystems.request_timeout_millis", 10000)
	v.SetDefault("retry.delay_millis", 3000)
	v.SetDefault("monitor.poll_interval_millis", 30000)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.base_topic", "apsystems")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("influx.enable", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "apsystems")
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
}

// Load reads the configuration from the environment and, when CONFIG_FILE is
// set, from a yaml file.
func Load(v *viper.Viper) (*Config, error) {

	// alias PORT => APSYSTEMS2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv(strings.ToUpper(ENV_PREFIX)+"_PORT", port)
	}

	SetDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			err = v.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// Validate checks bounds and normalizes the MQTT topics in place.
func (cfg *Config) Validate() error {
	if cfg.APSystems.Username == "" || cfg.APSystems.Password == "" {
		return errors.New("config params apsystems.username and apsystems.password are required")
	}
	if cfg.APSystems.RequestTimeoutMillis < 1000 {
		return errors.New("config param apsystems.request_timeout_millis should be >= 1000")
	}
	if cfg.MonitorConfig.PollIntervalMillis < 5000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 5000")
	}
	if cfg.Influx.Enable && (cfg.Influx.URL == "" || cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return errors.New("config params influx.url, influx.org and influx.bucket are required when influx is enabled")
	}

	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	return nil
}

// Redacted returns a copy safe to print.
func (cfg Config) Redacted() Config {
	cfg.APSystems.Username = REDACTED
	cfg.APSystems.Password = REDACTED
	cfg.MQTT.Username = REDACTED
	cfg.MQTT.Password = REDACTED
	if cfg.Influx.Token != "" {
		cfg.Influx.Token = REDACTED
	}
	return cfg
}

func (cfg Config) String() string {
	r := cfg.Redacted()
	return fmt.Sprintf("%+v", struct {
		LogLevel  string
		APSystems APSystemsConfig
		Retry     RetryConfig
		MQTT      MQTTConfig
		Influx    InfluxConfig
		Monitor   MonitorConfig
		Port      uint
		HttpLog   bool
	}{r.LogLevel.String(), r.APSystems, r.Retry, r.MQTT, r.Influx, r.MonitorConfig, r.Port, r.HttpLog})
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
