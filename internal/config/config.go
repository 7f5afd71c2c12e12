package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	RegistryURL string `mapstructure:"registry_url"`
	Token       string `mapstructure:"token"`
	SignalURL   string `mapstructure:"signal_url"`

	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`

	ReportInterval time.Duration `mapstructure:"report_interval"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`

	StatePath  string  `mapstructure:"state_path"`
	LocatorURL string  `mapstructure:"locator_url"`
	StaticLat  float64 `mapstructure:"static_lat"`
	StaticLon  float64 `mapstructure:"static_lon"`

	AudioRTPPort int `mapstructure:"audio_rtp_port"`
	VideoRTPPort int `mapstructure:"video_rtp_port"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8090)
	v.SetDefault("registry_url", "http://localhost:5500")
	v.SetDefault("signal_url", "ws://localhost:9000/ws")
	v.SetDefault("name", "anonymous")
	v.SetDefault("report_interval", "5s")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("state_path", "state/session.json")
	v.SetDefault("audio_rtp_port", 4000)
	v.SetDefault("video_rtp_port", 4002)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Registry: %s\n", cfg.Mode, cfg.Port, cfg.RegistryURL)
	return &cfg, nil
}
