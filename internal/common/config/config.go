package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Anchor   AnchorConfig   `json:"anchor"`
	Registry RegistryConfig `json:"registry"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	GRPCPort int    `json:"grpc_port"` // gRPC端口（health / Consul check）
	HTTPPort int    `json:"http_port"` // HTTP API端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig 账号令牌配置（HTTP 身份中间件，HS256）。
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
}

// AnchorConfig 存证服务（模拟链上提交）配置。
type AnchorConfig struct {
	SuccessRate    float64 `json:"success_rate"`     // 成功概率 0.0-1.0
	MaxLatencyMS   int     `json:"max_latency_ms"`   // 单次提交最大延迟
	TimeoutMS      int     `json:"timeout_ms"`       // 调用方超时
	BreakerFailMax int     `json:"breaker_fail_max"` // 熔断阈值（连续失败次数）
	BreakerResetMS int     `json:"breaker_reset_ms"` // 熔断重置时间
}

// RegistryConfig 车辆登记/维保台账业务配置。
type RegistryConfig struct {
	RequireVerifiedAuthor bool `json:"require_verified_author"` // 写入是否必须认证作者
	SnapshotTTLSeconds    int  `json:"snapshot_ttl_seconds"`    // 详情快照有效期
	MaxDescriptionLen     int  `json:"max_description_len"`     // 维保描述最大长度
	WriteRatePerMinute    int  `json:"write_rate_per_minute"`   // 写接口限流（每客户端）
}

// AnchorTimeout 调用方超时；未配置时返回 0（不加超时）。
func (a AnchorConfig) AnchorTimeout() time.Duration {
	if a.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// SnapshotTTL 详情快照有效期（默认 60s，对齐静态页 revalidate 契约）。
func (r RegistryConfig) SnapshotTTL() time.Duration {
	if r.SnapshotTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(r.SnapshotTTLSeconds) * time.Second
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "registry-service",
			Host:     "0.0.0.0",
			GRPCPort: 50051,
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "autochainverify",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled:   true,
			JWTSecret: "dev-secret-change-me",
			Issuer:    "auto-chain-verify",
			Audience:  "auto-chain-verify",
		},
		Anchor: AnchorConfig{
			SuccessRate:    0.8,
			MaxLatencyMS:   1000,
			TimeoutMS:      3000,
			BreakerFailMax: 5,
			BreakerResetMS: 10000,
		},
		Registry: RegistryConfig{
			RequireVerifiedAuthor: true,
			SnapshotTTLSeconds:    60,
			MaxDescriptionLen:     1024,
			WriteRatePerMinute:    30,
		},
	}
}
