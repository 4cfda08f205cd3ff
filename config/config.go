// Package config 提供了统一的配置加载与管理能力：TOML 文件 + 环境变量覆盖 + 校验 + 热更新.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/wyfcoding/lattice/logging"
)

// EnvPrefix 环境变量前缀，如 LATTICE_SERVER_HTTP_ADDR 覆盖 server.http.addr。
const EnvPrefix = "LATTICE"

// Config 全局顶级配置结构.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	Cache     CacheConfig     `mapstructure:"cache"     toml:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
	Pricing   PricingConfig   `mapstructure:"pricing"   toml:"pricing"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string     `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string     `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	NodeID      int64      `mapstructure:"node_id"     toml:"node_id"     validate:"min=0,max=1023"` // 雪花算法节点号
	HTTP        HTTPConfig `mapstructure:"http"        toml:"http"`
}

// HTTPConfig HTTP 监听与超时参数.
type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"                toml:"addr"                validate:"required"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"    toml:"shutdown_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"     toml:"request_timeout"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"`        // 日志文件路径，为空输出到 stdout。
	Console    bool   `mapstructure:"console"     toml:"console"`     // 写文件时是否同时输出到 stdout。
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`    // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"` // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`     // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"    validate:"required,startswith=/"`
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig OpenTelemetry 链路追踪配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// CacheConfig 近似定价结果缓存参数.
type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"      toml:"ttl"      validate:"required_if=Enabled true"`
	MaxMB   int           `mapstructure:"max_mb"   toml:"max_mb"   validate:"min=0"`
	Shards  int           `mapstructure:"shards"   toml:"shards"   validate:"min=0"`
	Enabled bool          `mapstructure:"enabled"  toml:"enabled"`
}

// 限流模式.
const (
	RateLimitGlobal = "global" // 全进程共享一个令牌桶
	RateLimitPerIP  = "per_ip" // 每个客户端 IP 一个令牌桶
)

// RateLimitConfig 令牌桶限流参数.
type RateLimitConfig struct {
	Mode    string  `mapstructure:"mode"    toml:"mode"    validate:"oneof=global per_ip"`
	Rate    float64 `mapstructure:"rate"    toml:"rate"    validate:"min=0"`
	Burst   int     `mapstructure:"burst"   toml:"burst"   validate:"min=0"`
	Enabled bool    `mapstructure:"enabled" toml:"enabled"`
}

// PricingConfig 定价引擎参数.
type PricingConfig struct {
	MaxTimesteps  int   `mapstructure:"max_timesteps"  toml:"max_timesteps"  validate:"min=1"`
	DefaultSteps  []int `mapstructure:"default_steps"  toml:"default_steps"  validate:"dive,min=1"`
	MaxGoroutines int   `mapstructure:"max_goroutines" toml:"max_goroutines" validate:"min=0"` // 0 表示不限制
	QuotePlaces   int32 `mapstructure:"quote_places"   toml:"quote_places"   validate:"min=0,max=12"`
}

// Default 返回内置默认配置，未出现在配置文件中的键取这些值。
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:        "latticed",
			Environment: "dev",
			HTTP: HTTPConfig{
				Addr:              ":8080",
				ReadTimeout:       10 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
				ShutdownTimeout:   10 * time.Second,
				RequestTimeout:    20 * time.Second,
				MaxBodyBytes:      1 << 20,
			},
		},
		Log:     LogConfig{Level: "info", MaxSize: 100, MaxBackups: 5, MaxAge: 7},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Tracing: TracingConfig{ServiceName: "latticed", SamplerRatio: 1},
		Cache:   CacheConfig{Enabled: true, TTL: 10 * time.Minute, MaxMB: 64, Shards: 64},
		RateLimit: RateLimitConfig{
			Mode:  RateLimitPerIP,
			Rate:  100,
			Burst: 200,
		},
		Pricing: PricingConfig{
			MaxTimesteps:  5000,
			DefaultSteps:  []int{1, 10, 100, 1000},
			MaxGoroutines: 4,
			QuotePlaces:   4,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.name", d.Server.Name)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.node_id", d.Server.NodeID)
	v.SetDefault("server.http.addr", d.Server.HTTP.Addr)
	v.SetDefault("server.http.read_timeout", d.Server.HTTP.ReadTimeout)
	v.SetDefault("server.http.read_header_timeout", d.Server.HTTP.ReadHeaderTimeout)
	v.SetDefault("server.http.write_timeout", d.Server.HTTP.WriteTimeout)
	v.SetDefault("server.http.idle_timeout", d.Server.HTTP.IdleTimeout)
	v.SetDefault("server.http.shutdown_timeout", d.Server.HTTP.ShutdownTimeout)
	v.SetDefault("server.http.request_timeout", d.Server.HTTP.RequestTimeout)
	v.SetDefault("server.http.max_body_bytes", d.Server.HTTP.MaxBodyBytes)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sampler_ratio", d.Tracing.SamplerRatio)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_mb", d.Cache.MaxMB)
	v.SetDefault("cache.shards", d.Cache.Shards)

	v.SetDefault("ratelimit.mode", d.RateLimit.Mode)
	v.SetDefault("ratelimit.enabled", d.RateLimit.Enabled)
	v.SetDefault("ratelimit.rate", d.RateLimit.Rate)
	v.SetDefault("ratelimit.burst", d.RateLimit.Burst)

	v.SetDefault("pricing.max_timesteps", d.Pricing.MaxTimesteps)
	v.SetDefault("pricing.default_steps", d.Pricing.DefaultSteps)
	v.SetDefault("pricing.max_goroutines", d.Pricing.MaxGoroutines)
	v.SetDefault("pricing.quote_places", d.Pricing.QuotePlaces)
}

var (
	mu       sync.RWMutex
	current  *Config
	onReload []func(*Config)
	validate = validator.New()
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

// Current 返回最近一次成功加载的配置，未加载时为 nil。
func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	if err := validate.Struct(conf); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return conf, nil
}

// Load 读取 TOML 配置文件，应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	conf, err := decode(v)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	current = conf
	mu.Unlock()
	return conf, nil
}

// Watch 监听配置文件变更。新配置通过校验后才会替换当前配置、更新日志级别并触发回调；
// 校验失败时保留旧配置。
func Watch(path string) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Error("config watch disabled", "file", path, "error", err)
		return
	}
	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)

		if err := v.ReadInConfig(); err != nil {
			slog.Error("reload config read failed", "error", err)
			return
		}
		conf, err := decode(v)
		if err != nil {
			slog.Error("reload config rejected", "error", err)
			return
		}
		apply(conf)
		slog.Info("config hot-reloaded and validated successfully")
	})
	v.WatchConfig()
}

func apply(conf *Config) {
	logging.SetLevel(conf.Log.Level)

	mu.Lock()
	current = conf
	hooks := append([]func(*Config){}, onReload...)
	mu.Unlock()

	for _, hook := range hooks {
		hook(conf)
	}
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	data, err := json.Marshal(conf)
	if err != nil {
		slog.Error("failed to marshal config for printing", "error", err)
		return
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		slog.Error("failed to unmarshal config for masking", "error", err)
		return
	}

	mask(configMap)

	maskedJSON, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		slog.Error("failed to marshal masked config", "error", err)
		return
	}

	slog.Info("current effective configuration", "config", string(maskedJSON))
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}
			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}
