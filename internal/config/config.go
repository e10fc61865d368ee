package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	// Client endpoints.
	ChatURL       string `mapstructure:"chat_url"`
	VoiceURL      string `mapstructure:"voice_url"`
	RendezvousURL string `mapstructure:"rendezvous_url"`
	MetadataURL   string `mapstructure:"metadata_url"`

	// Presentation.
	LocalName string `mapstructure:"local_name"`

	// Coordination knobs. Defaults match the production behavior; tests
	// shrink them.
	RosterCap         int           `mapstructure:"roster_cap"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
	RetryWait         time.Duration `mapstructure:"retry_wait"`
	CallGrace         time.Duration `mapstructure:"call_grace"`
	LeaveDelay        time.Duration `mapstructure:"leave_delay"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	ReadLimit         int64         `mapstructure:"read_limit"`

	// signald server.
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
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
	v.SetDefault("chat_url", "ws://localhost:8080/api/ws/chat")
	v.SetDefault("voice_url", "ws://localhost:8080/api/ws/voice")
	v.SetDefault("rendezvous_url", "ws://localhost:8080/api/ws/rendezvous")
	v.SetDefault("metadata_url", "http://localhost:8080/api")
	v.SetDefault("local_name", "Tú")
	v.SetDefault("roster_cap", 10)
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_delay", "1s")
	v.SetDefault("open_timeout", "20s")
	v.SetDefault("retry_wait", "10s")
	v.SetDefault("call_grace", "1200ms")
	v.SetDefault("leave_delay", "3s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "dev-secret")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
