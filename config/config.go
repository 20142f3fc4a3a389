package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"clientportal/pkg/config"
	"clientportal/pkg/logger"
)

// DemoAccount 演示账号，首次登录失败时自动注册
type DemoAccount struct {
	Email       string `yaml:"email" validate:"required,email"`
	Password    string `yaml:"password" validate:"min=6"`
	FullName    string `yaml:"full_name" validate:"required"`
	Role        string `yaml:"role" validate:"oneof=admin client"`
	CompanyName string `yaml:"company_name"`
}

type AuthConfig struct {
	DemoAccounts []DemoAccount `yaml:"demo_accounts" validate:"dive"`
}

type RealtimeConfig struct {
	// SSE 心跳间隔
	Heartbeat time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
	// 去重 key 的过期时间
	DedupTTL time.Duration `yaml:"dedup_ttl" env:"DEDUP_TTL"`
	// portalctl 刷新合并窗口
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`
}

type WorkerConfig struct {
	// 健康检查和 /metrics
	HealthPort    string        `yaml:"health_port" env:"HEALTH_PORT"`
	Queue         string        `yaml:"queue" env:"QUEUE"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// 截止日前几天提醒
	ReminderDays int `yaml:"reminder_days" env:"REMINDER_DAYS" validate:"gte=0,lte=30"`
}

type PortalConfig struct {
	// ISO 4217 代码
	Currency string `yaml:"currency" env:"CURRENCY" validate:"len=3,uppercase"`
}

// Config 所有进程共用的配置
type Config struct {
	ServiceName string              `yaml:"service_name" env:"SERVICE_NAME"`
	Log         logger.Config       `yaml:"log" envPrefix:"LOG_"`
	DB          config.DBConfig     `yaml:"db" envPrefix:"DB_"`
	MQ          config.MQConfig     `yaml:"mq" envPrefix:"MQ_"`
	Redis       config.RedisConfig  `yaml:"redis" envPrefix:"REDIS_"`
	JWT         config.JWTConfig    `yaml:"jwt" envPrefix:"JWT_"`
	Server      config.ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	Otel        config.OtelConfig   `yaml:"otel" envPrefix:"OTEL_"`
	Outbox      config.OutboxConfig `yaml:"outbox" envPrefix:"OUTBOX_"`
	Realtime    RealtimeConfig      `yaml:"realtime" envPrefix:"REALTIME_"`
	Worker      WorkerConfig        `yaml:"worker" envPrefix:"WORKER_"`
	Auth        AuthConfig          `yaml:"auth"`
	Portal      PortalConfig        `yaml:"portal" envPrefix:"PORTAL_"`
}

// Load 按 CONFIG_ENV 加载 config 目录下的配置
func Load(dir string) (*Config, error) {
	var cfg Config
	if err := config.Load(config.GetConfigEnv(), dir, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clientportal"
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.JWT.SessionTTL == 0 {
		c.JWT.SessionTTL = 24 * time.Hour
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "clientportal"
	}
	if c.Realtime.Heartbeat == 0 {
		c.Realtime.Heartbeat = 25 * time.Second
	}
	if c.Realtime.DedupTTL == 0 {
		c.Realtime.DedupTTL = 10 * time.Minute
	}
	if c.Realtime.Debounce == 0 {
		c.Realtime.Debounce = 300 * time.Millisecond
	}
	if c.Worker.HealthPort == "" {
		c.Worker.HealthPort = ":8081"
	}
	if c.Worker.Queue == "" {
		c.Worker.Queue = "notifications.fanout.q"
	}
	if c.Worker.SweepInterval == 0 {
		c.Worker.SweepInterval = time.Minute
	}
	if c.Worker.ReminderDays == 0 {
		c.Worker.ReminderDays = 3
	}
	if c.Portal.Currency == "" {
		c.Portal.Currency = "USD"
	}
}
