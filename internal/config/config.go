// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Tenant       TenantConfig       `yaml:"tenant"`
	Registry     RegistryConfig     `yaml:"registry"`
	Cluster      ClusterConfig      `yaml:"cluster"`
	Manifests    ManifestsConfig    `yaml:"manifests"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Redis        RedisConfig        `yaml:"redis"`
	RabbitMQ     RabbitMQConfig     `yaml:"rabbitmq"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	// RequestTimeout bounds registry reads. Provisioning uses Provisioning.Timeout.
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MySQLConfig is the admin connection used to create tenant databases.
type MySQLConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TenantConfig struct {
	AppImage string `yaml:"app_image"`
	// DBHost is the MySQL host the tenant workload connects to. Defaults to mysql.host.
	DBHost string `yaml:"db_host"`
}

type RegistryConfig struct {
	URL string `yaml:"url"`
}

type ClusterConfig struct {
	Kubeconfig string `yaml:"kubeconfig"`
	Context    string `yaml:"context"`
	Namespace  string `yaml:"namespace"`
}

// ManifestsConfig points at a template directory. Empty means the embedded templates.
type ManifestsConfig struct {
	Dir string `yaml:"dir"`
}

type ProvisioningConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RedisConfig enables the cross-replica tenant lock when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// RabbitMQConfig enables lifecycle events when URL is set.
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		MySQL: MySQLConfig{
			Host:    "localhost",
			Port:    3306,
			User:    "root",
			Timeout: 10 * time.Second,
		},
		Tenant: TenantConfig{
			AppImage: "cloudvault/tenant-service:poc",
		},
		Redis: RedisConfig{
			LockTTL: 10 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Queue: "tenant_lifecycle_events",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	if host := os.Getenv("MYSQL_HOST"); host != "" {
		cfg.MySQL.Host = host
	}
	if port := os.Getenv("MYSQL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.MySQL.Port = p
		}
	}
	if user := os.Getenv("MYSQL_USER"); user != "" {
		cfg.MySQL.User = user
	}
	if password := os.Getenv("MYSQL_PASSWORD"); password != "" {
		cfg.MySQL.Password = password
	}

	if image := os.Getenv("TENANT_APP_IMAGE"); image != "" {
		cfg.Tenant.AppImage = image
	}
	if host := os.Getenv("TENANT_DB_HOST"); host != "" {
		cfg.Tenant.DBHost = host
	}

	if url := os.Getenv("REGISTRY_URL"); url != "" {
		cfg.Registry.URL = url
	}

	if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" && cfg.Cluster.Kubeconfig == "" {
		cfg.Cluster.Kubeconfig = kubeconfig
	}
	if ns := os.Getenv("TENANT_NAMESPACE"); ns != "" {
		cfg.Cluster.Namespace = ns
	}

	if timeout := os.Getenv("PROVISIONING_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Provisioning.Timeout = d
		}
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		cfg.RabbitMQ.URL = url
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.MySQL.Host == "" {
		return errors.New("mysql.host is required")
	}
	if c.MySQL.Port <= 0 || c.MySQL.Port > 65535 {
		return errors.New("mysql.port must be between 1 and 65535")
	}
	if c.MySQL.User == "" {
		return errors.New("mysql.user is required")
	}
	if c.Tenant.AppImage == "" {
		return errors.New("tenant.app_image is required")
	}
	if c.Tenant.DBHost == "" {
		c.Tenant.DBHost = c.MySQL.Host
	}
	if c.Registry.URL == "" {
		return errors.New("registry.url is required")
	}
	if c.Provisioning.Timeout < 0 {
		return errors.New("provisioning.timeout must not be negative")
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return errors.New("redis.lock_ttl must be positive when redis.addr is set")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
