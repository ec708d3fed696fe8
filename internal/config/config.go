// Package config loads runtime settings (viper) and the lab topology (yaml).
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Lab         LabConfig         `mapstructure:"lab"`
	Readiness   ReadinessConfig   `mapstructure:"readiness"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

type ServerConfig struct {
	BindAddr    string `mapstructure:"bind_addr"`
	// <container>.<proxy_domain> is forwarded to the container's dashboard.
	ProxyDomain string `mapstructure:"proxy_domain"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
}

type EngineConfig struct {
	Host string `mapstructure:"host"` // empty: DOCKER_HOST or socket discovery
}

type LabConfig struct {
	File    string `mapstructure:"file"`
	EnvFile string `mapstructure:"env_file"`
	Network string `mapstructure:"network"`
	Root    string `mapstructure:"root"`
}

type ReadinessConfig struct {
	Attempts    int           `mapstructure:"attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	InsecureTLS bool          `mapstructure:"insecure_tls"`
}

type CredentialsConfig struct {
	ElasticUser      string `mapstructure:"elastic_user"`
	ElasticPassword  string `mapstructure:"elastic_password"`
	AttackerUser     string `mapstructure:"attacker_user"`
	AttackerPassword string `mapstructure:"attacker_password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_addr", "0.0.0.0:5000")
	v.SetDefault("server.proxy_domain", "localhost")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("engine.host", "")
	v.SetDefault("lab.file", "lab.yml")
	v.SetDefault("lab.env_file", ".env")
	v.SetDefault("lab.network", "elk_net")
	v.SetDefault("lab.root", ".")
	v.SetDefault("readiness.attempts", 5)
	v.SetDefault("readiness.delay", "10s")
	v.SetDefault("readiness.timeout", "10s")
	v.SetDefault("readiness.insecure_tls", true)
	v.SetDefault("credentials.elastic_user", "elastic")
	v.SetDefault("credentials.elastic_password", "changeme")
	v.SetDefault("credentials.attacker_user", "kali")
	v.SetDefault("credentials.attacker_password", "kalilinux")
}

// Load reads rangectl.yml from the working directory (or path when set),
// applies RANGE_* environment overrides, then the lab's .env file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rangectl")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("RANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := applyEnvFile(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvFile reads ELASTIC_PASSWORD from the lab .env file when present.
func applyEnvFile(cfg *Config) error {
	if cfg.Lab.EnvFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Lab.EnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	env := viper.New()
	env.SetConfigFile(cfg.Lab.EnvFile)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return err
	}
	if pw := env.GetString("elastic_password"); pw != "" {
		cfg.Credentials.ElasticPassword = pw
	}
	return nil
}
