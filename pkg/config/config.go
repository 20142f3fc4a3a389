package config

import (
	"fmt"
	"net/url"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host          string        `yaml:"host" env:"HOST"`
	Port          int           `yaml:"port" env:"PORT"`
	User          string        `yaml:"user" env:"USER"`
	Password      string        `yaml:"password" env:"PASSWORD"`
	Name          string        `yaml:"name" env:"NAME"`
	SSLMode       string        `yaml:"sslmode" env:"SSLMODE"`
	MaxConns      int32         `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns      int32         `yaml:"min_conns" env:"MIN_CONNS"`
	SlowThreshold time.Duration `yaml:"slow_threshold" env:"SLOW_THRESHOLD"`
}

// DSN 生成 postgres 连接串
func (c DBConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=" + sslmode,
	}
	return u.String()
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url" env:"URL"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret     string        `yaml:"secret" env:"SECRET"`
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// OtelConfig OpenTelemetry 配置
type OtelConfig struct {
	Enabled        bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint       string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceVersion string `yaml:"service_version" env:"SERVICE_VERSION"`
	// 根 span 采样比例，0 或 1 表示全采
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// OutboxConfig outbox dispatcher 配置
type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval" env:"INTERVAL"`
	BatchSize  int           `yaml:"batch_size" env:"BATCH_SIZE"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}
