package util

import (
	"github.com/berfenger/apsystems2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		APSystems: config.APSystemsConfig{
			Username:             "test",
			Password:             "test",
			BaseURL:              "http://localhost:9282",
			RequestTimeoutMillis: 1000,
		},
		Retry: config.RetryConfig{
			DelayMillis: 10,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "apsystems",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		Port: 8080,
	}
}
