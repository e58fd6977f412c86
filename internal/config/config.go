package config

import (
	"errors"
	"os"
	"strconv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int

	// 开关相关：默认静默期（秒）、后台扫描间隔（秒）。
	DefaultPeriodSeconds int64
	SweepIntervalSeconds int

	// 派发相关：单条消息最多尝试次数、单次尝试超时（秒）。
	DispatchMaxAttempts    int
	DispatchTimeoutSeconds int

	// SMTP 为空时 Email 渠道退化为日志输出（本地开发不需要真实邮箱）。
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getint 解析整型环境变量，非法或非正值回退到默认值。
func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func Load() Config {
	return Config{
		Port:                   getenv("APP_PORT", "8080"),
		DatabaseDSN:            getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=memento port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:              getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                    getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes:  getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:    getint("REFRESH_TOKEN_TTL_DAYS", 7),
		DefaultPeriodSeconds:   int64(getint("DEFAULT_PERIOD_SECONDS", 48*3600)),
		SweepIntervalSeconds:   getint("SWEEP_INTERVAL_SECONDS", 10),
		DispatchMaxAttempts:    getint("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchTimeoutSeconds: getint("DISPATCH_TIMEOUT_SECONDS", 10),
		SMTPHost:               getenv("SMTP_HOST", ""),
		SMTPPort:               getint("SMTP_PORT", 587),
		SMTPUser:               getenv("SMTP_USER", ""),
		SMTPPassword:           getenv("SMTP_PASSWORD", ""),
		SMTPFrom:               getenv("SMTP_FROM", ""),
	}
}

// Validate 启动前的基本校验，防止带着开发密钥上生产。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database DSN must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("config: default JWT secret is not allowed outside dev")
	}
	if cfg.DefaultPeriodSeconds <= 0 {
		return errors.New("config: default period must be positive")
	}
	return nil
}
