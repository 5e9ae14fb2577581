package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	GizwitsCfg       *GizwitsConfig
	MqttCfg          *MqttConfig
	DatabaseURL      string `env:"DATABASE_URL"`
	MigrationsFolder string `env:"MIGRATIONS_FOLDER"`
	ListenAddress    string `env:"LISTEN_ADDRESS" envDefault:"0.0.0.0:8000"`
	APIToken         string `env:"API_TOKEN"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"INFO"`
}

type GizwitsConfig struct {
	Username string `env:"GIZWITS_USERNAME"`
	Password string `env:"GIZWITS_PASSWORD"`
	AppID    string `env:"GIZWITS_APP_ID"`
	// Region selects the api root: us, eu or default.
	Region string `env:"GIZWITS_REGION" envDefault:"default"`
	// Ssl selects wss over the device's TLS port for push connections.
	Ssl                  bool          `env:"GIZWITS_SSL" envDefault:"true"`
	InsecureSkipVerify   bool          `env:"GIZWITS_INSECURE_SKIP_VERIFY"`
	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	PollFailureThreshold int           `env:"POLL_FAILURE_THRESHOLD" envDefault:"3"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"180s"`
	// ProductTypes restricts discovered bindings to the named product types.
	// Empty means accept everything.
	ProductTypes []string `env:"GIZWITS_PRODUCT_TYPES" envSeparator:","`
}

type MqttConfig struct {
	Host        string `env:"MQTT_HOST"`
	Username    string `env:"MQTT_USER"`
	Password    string `env:"MQTT_PASS"`
	TopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"gizwits"`
}

// FromEnv builds a Config entirely from the environment, for deployments that
// bypass the CLI flags.
func FromEnv() (*Config, error) {
	cfg := &Config{
		GizwitsCfg: &GizwitsConfig{},
		MqttCfg:    &MqttConfig{},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg.GizwitsCfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg.MqttCfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
