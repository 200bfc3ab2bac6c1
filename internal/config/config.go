// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Promise    PromiseConfig    `yaml:"promise"`
	Conflict   ConflictConfig   `yaml:"conflict"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	MasterData MasterDataConfig `yaml:"master_data"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SchedulerConfig 排产引擎配置
type SchedulerConfig struct {
	FrozenDays     int           `yaml:"frozen_days"`     // 冻结期天数
	HorizonDays    int           `yaml:"horizon_days"`    // 搜索视界天数
	DefaultTimeout time.Duration `yaml:"default_timeout"` // 单次排产超时
}

// PromiseConfig 承诺引擎配置
type PromiseConfig struct {
	VarianceHours  float64 `yaml:"variance_hours"`   // 置信度分母（历史波动）
	OvertimePerDay float64 `yaml:"overtime_per_day"` // CTP 每日可追加加班小时
}

// ConflictConfig 冲突检测配置
type ConflictConfig struct {
	SweepCron               string  `yaml:"sweep_cron"`                // 周期检测表达式
	OverlapCriticalFraction float64 `yaml:"overlap_critical_fraction"`
	OverloadWarnRatio       float64 `yaml:"overload_warn_ratio"`
	OverloadCriticalRatio   float64 `yaml:"overload_critical_ratio"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MasterDataConfig 主数据装载配置
type MasterDataConfig struct {
	ResourcesFile string `yaml:"resources_file"` // 资源清单 YAML
	RoutingsFile  string `yaml:"routings_file"`  // 工艺路线模板 YAML
	RulesFile     string `yaml:"rules_file"`     // 软规则库 YAML（可选）
	MaterialsFile string `yaml:"materials_file"` // 物料信号 YAML（可选）
}

// Load 从环境变量加载配置；APP_CONFIG_FILE 指定时先读 YAML 再以环境变量覆盖
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// defaults 返回默认配置
func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:     "flowiq",
			Env:      "development",
			Port:     7021,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "flowiq",
			User:            "flowiq",
			Password:        "flowiq123",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			FrozenDays:     1,
			HorizonDays:    30,
			DefaultTimeout: 30 * time.Second,
		},
		Promise: PromiseConfig{
			VarianceHours:  24,
			OvertimePerDay: 4,
		},
		Conflict: ConflictConfig{
			SweepCron:               "@every 5m",
			OverlapCriticalFraction: 0.25,
			OverloadWarnRatio:       1.0,
			OverloadCriticalRatio:   1.35,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		MasterData: MasterDataConfig{
			ResourcesFile: "configs/resources.yaml",
			RoutingsFile:  "configs/routings.yaml",
		},
	}
}

// applyEnv 用环境变量覆盖配置
func applyEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Port = getEnvInt("APP_PORT", cfg.App.Port)
	cfg.App.LogLevel = getEnv("APP_LOG_LEVEL", cfg.App.LogLevel)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)

	cfg.Scheduler.FrozenDays = getEnvInt("SCHED_FROZEN_DAYS", cfg.Scheduler.FrozenDays)
	cfg.Scheduler.HorizonDays = getEnvInt("SCHED_HORIZON_DAYS", cfg.Scheduler.HorizonDays)
	cfg.Scheduler.DefaultTimeout = getEnvDuration("SCHED_TIMEOUT", cfg.Scheduler.DefaultTimeout)

	cfg.Conflict.SweepCron = getEnv("CONFLICT_SWEEP_CRON", cfg.Conflict.SweepCron)

	cfg.MasterData.ResourcesFile = getEnv("MASTER_RESOURCES_FILE", cfg.MasterData.ResourcesFile)
	cfg.MasterData.RoutingsFile = getEnv("MASTER_ROUTINGS_FILE", cfg.MasterData.RoutingsFile)
	cfg.MasterData.RulesFile = getEnv("MASTER_RULES_FILE", cfg.MasterData.RulesFile)
	cfg.MasterData.MaterialsFile = getEnv("MASTER_MATERIALS_FILE", cfg.MasterData.MaterialsFile)
}

// getEnv 读取字符串环境变量
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt 读取整数环境变量
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration 读取时长环境变量
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
