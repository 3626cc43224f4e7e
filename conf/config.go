package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config 服务全部外部依赖的配置，从 yaml 读取，API key 走环境变量覆盖
type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"mysql"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	RabbitMQ struct {
		DSN string `yaml:"dsn"`
	} `yaml:"rabbitmq"`
	Generate struct {
		PrimaryModel  string `yaml:"primary_model"`
		PrimarySize   string `yaml:"primary_size"`
		FallbackModel string `yaml:"fallback_model"`
		FallbackSize  string `yaml:"fallback_size"`
		// yaml 里写 "45s" 这类时长字符串，Load 时解析
		BackendTimeoutStr  string `yaml:"backend_timeout"`
		StaggerIntervalStr string `yaml:"stagger_interval"`

		BackendTimeout  time.Duration `yaml:"-"`
		StaggerInterval time.Duration `yaml:"-"`
	} `yaml:"generate"`
	PublicDir string `yaml:"public_dir"`
}

// Load 读取 yaml 配置并填充默认值
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var cfg Config
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 32
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 16
	}
	cfg.Generate.BackendTimeout = 45 * time.Second
	if cfg.Generate.BackendTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.Generate.BackendTimeoutStr)
		if err != nil {
			return nil, fmt.Errorf("解析 backend_timeout 失败: %w", err)
		}
		cfg.Generate.BackendTimeout = d
	}
	cfg.Generate.StaggerInterval = time.Second
	if cfg.Generate.StaggerIntervalStr != "" {
		d, err := time.ParseDuration(cfg.Generate.StaggerIntervalStr)
		if err != nil {
			return nil, fmt.Errorf("解析 stagger_interval 失败: %w", err)
		}
		cfg.Generate.StaggerInterval = d
	}
	if cfg.Generate.PrimaryModel == "" {
		cfg.Generate.PrimaryModel = "doubao-seedream-4-0-250828"
	}
	if cfg.Generate.PrimarySize == "" {
		cfg.Generate.PrimarySize = "2K"
	}
	if cfg.Generate.FallbackModel == "" {
		cfg.Generate.FallbackModel = "gemini-2.5-flash-image"
	}
	if cfg.Generate.FallbackSize == "" {
		// 备用后端接受更小的工作尺寸
		cfg.Generate.FallbackSize = "1K"
	}
	if cfg.PublicDir == "" {
		cfg.PublicDir = "public/pic"
	}
	return &cfg, nil
}
