package quickpick

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// Config 生产环境配置结构
type Config struct {
	// 默认的选号参数
	Game *GameConfig `mapstructure:"game"`

	// Engine config
	Engine *EngineConfig `mapstructure:"engine"`

	// Redis 配置
	Redis *RedisConfig `mapstructure:"redis"`

	// 熔断器配置
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// Validate checks every section; the first failure is returned
func (c *Config) Validate() error {
	if c.Game == nil || c.Engine == nil || c.Redis == nil || c.CircuitBreaker == nil {
		return ErrConfigInvalid.WithDetails("missing configuration section")
	}

	if _, err := c.Game.TicketConfig(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	// 验证 Redis 配置
	if c.Redis.Addr == "" {
		return ErrConfigInvalid.WithDetails("redis address is required")
	}
	if c.Redis.PoolSize <= 0 {
		return ErrConfigInvalid.WithDetails("redis pool size must be positive")
	}

	if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
		return ErrConfigInvalid.WithDetails("circuit breaker failure ratio must be in (0, 1]")
	}
	return nil
}

// GameConfig holds the quick pick defaults used when the caller gives none
type GameConfig struct {
	Tickets int `mapstructure:"tickets"`
	Low     int `mapstructure:"low"`
	High    int `mapstructure:"high"`
	Pick    int `mapstructure:"pick"`
}

// DefaultGameConfig is one Mega-Sena ticket
func DefaultGameConfig() *GameConfig {
	return &GameConfig{
		Tickets: DefaultTickets,
		Low:     DefaultLow,
		High:    DefaultHigh,
		Pick:    DefaultPick,
	}
}

// TicketConfig validates the game and converts it
func (g *GameConfig) TicketConfig() (*TicketConfig, error) {
	return NewTicketConfig(g.Tickets, g.Low, g.High, g.Pick)
}

// EngineConfig 引擎配置
type EngineConfig struct {
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	LockCacheTTL  time.Duration `mapstructure:"lock_cache_ttl"`

	// 生成相关
	Workers           int     `mapstructure:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int     `mapstructure:"parallel_threshold"` // 超过该票数时并行生成
	RateLimit         float64 `mapstructure:"rate_limit"`         // 每秒批次数, 0 = 不限流
	RateBurst         int     `mapstructure:"rate_burst"`

	// 批次保存时间与压缩方式 (none, zstd, lz4)
	BatchTTL    time.Duration `mapstructure:"batch_ttl"`
	Compression string        `mapstructure:"compression"`
}

// DefaultEngineConfig returns the engine defaults
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		LockTimeout:       DefaultLockTimeout,
		RetryAttempts:     DefaultRetryAttempts,
		RetryInterval:     DefaultRetryInterval,
		LockCacheTTL:      DefaultLockCacheTTL,
		Workers:           DefaultWorkers,
		ParallelThreshold: DefaultParallelThreshold,
		RateLimit:         DefaultRateLimit,
		RateBurst:         DefaultRateBurst,
		BatchTTL:          DefaultBatchTTL,
		Compression:       DefaultBatchCompression,
	}
}

// Validate checks the lock, retry and generation settings
func (c *EngineConfig) Validate() error {
	// 验证锁配置
	if c.LockTimeout < MinLockTimeout || c.LockTimeout > MaxLockTimeout {
		return ErrInvalidLockTimeout.WithDetails("lock_timeout=%v", c.LockTimeout)
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > MaxRetryAttempts || c.RetryInterval < 0 {
		return ErrInvalidRetry.WithDetails("retry_attempts=%d retry_interval=%v", c.RetryAttempts, c.RetryInterval)
	}
	if c.LockCacheTTL < MinLockCacheTTL || c.LockCacheTTL > MaxLockCacheTTL {
		return ErrInvalidLockCache.WithDetails("lock_cache_ttl=%v", c.LockCacheTTL)
	}

	if c.Workers < 0 || c.ParallelThreshold < 0 {
		return ErrConfigInvalid.WithDetails("workers and parallel_threshold cannot be negative")
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst < 1) {
		return ErrConfigInvalid.WithDetails("rate_limit=%v rate_burst=%d", c.RateLimit, c.RateBurst)
	}
	if c.BatchTTL < 0 {
		return ErrConfigInvalid.WithDetails("batch_ttl cannot be negative")
	}
	if _, err := ParseCompression(c.Compression); err != nil {
		return err
	}
	return nil
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接配置
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 连接池配置
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	// 超时配置
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// DefaultRedisConfig 返回默认的Redis配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
	}
}

// NewRedisClient 从配置创建Redis客户端, nil 使用默认配置
func NewRedisClient(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// DefaultConfig returns a complete configuration built from the defaults
func DefaultConfig() *Config {
	return &Config{
		Game:           DefaultGameConfig(),
		Engine:         DefaultEngineConfig(),
		Redis:          DefaultRedisConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// ConfigManager 配置管理器
type ConfigManager struct {
	viper  *viper.Viper
	logger Logger

	mu     sync.RWMutex
	config *Config
}

// NewConfigManager 创建配置管理器
//
// quickpick.yaml is searched in ".", "./config", "/etc/quickpick" and
// "$HOME/.quickpick"; QUICKPICK_* environment variables override it.
func NewConfigManager() *ConfigManager {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName("quickpick")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/quickpick")
	v.AddConfigPath("$HOME/.quickpick")

	// 设置环境变量前缀
	v.SetEnvPrefix("QUICKPICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cm := &ConfigManager{viper: v, logger: NewSilentLogger()}
	cm.setDefaults()
	return cm
}

// NewDefaultConfigManager returns a manager already holding DefaultConfig
func NewDefaultConfigManager() *ConfigManager {
	cm := NewConfigManager()
	cm.config = DefaultConfig()
	return cm
}

// NewConfigManagerFromConfig wraps an existing configuration after validating it
func NewConfigManagerFromConfig(config *Config) (*ConfigManager, error) {
	if config == nil {
		return nil, ErrConfigInvalid.WithDetails("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cm := NewConfigManager()
	cm.config = config
	return cm, nil
}

// SetConfigFile loads path instead of searching for quickpick.yaml
func (cm *ConfigManager) SetConfigFile(path string) { cm.viper.SetConfigFile(path) }

// SetLogger sets the logger used for reload failures
func (cm *ConfigManager) SetLogger(logger Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// LoadConfig 加载配置
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	// 读取配置文件
	if err := cm.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, ErrConfigInvalid.WithDetails("failed to read config file").WithCause(err)
		}
		// 配置文件不存在时使用默认配置
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

// decode 解析并验证配置
func (cm *ConfigManager) decode() (*Config, error) {
	config := &Config{}
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, ErrConfigInvalid.WithDetails("failed to unmarshal config").WithCause(err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults 设置默认配置值
func (cm *ConfigManager) setDefaults() {
	d := DefaultConfig()
	v := cm.viper

	// 选号默认配置
	v.SetDefault("game.tickets", d.Game.Tickets)
	v.SetDefault("game.low", d.Game.Low)
	v.SetDefault("game.high", d.Game.High)
	v.SetDefault("game.pick", d.Game.Pick)

	// 引擎默认配置
	v.SetDefault("engine.lock_timeout", d.Engine.LockTimeout)
	v.SetDefault("engine.retry_attempts", d.Engine.RetryAttempts)
	v.SetDefault("engine.retry_interval", d.Engine.RetryInterval)
	v.SetDefault("engine.lock_cache_ttl", d.Engine.LockCacheTTL)
	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.parallel_threshold", d.Engine.ParallelThreshold)
	v.SetDefault("engine.rate_limit", d.Engine.RateLimit)
	v.SetDefault("engine.rate_burst", d.Engine.RateBurst)
	v.SetDefault("engine.batch_ttl", d.Engine.BatchTTL)
	v.SetDefault("engine.compression", d.Engine.Compression)

	// Redis 默认配置
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)
	v.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)
	v.SetDefault("redis.pool_timeout", d.Redis.PoolTimeout)

	// 熔断器默认配置
	v.SetDefault("circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	v.SetDefault("circuit_breaker.name", d.CircuitBreaker.Name)
	v.SetDefault("circuit_breaker.max_requests", d.CircuitBreaker.MaxRequests)
	v.SetDefault("circuit_breaker.interval", d.CircuitBreaker.Interval)
	v.SetDefault("circuit_breaker.timeout", d.CircuitBreaker.Timeout)
	v.SetDefault("circuit_breaker.failure_ratio", d.CircuitBreaker.FailureRatio)
	v.SetDefault("circuit_breaker.min_requests", d.CircuitBreaker.MinRequests)
	v.SetDefault("circuit_breaker.on_state_change", d.CircuitBreaker.OnStateChange)
}

// WatchConfig 监听配置变化; invalid edits are logged and ignored
func (cm *ConfigManager) WatchConfig(callback func(*Config)) {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config, err := cm.decode()
		if err != nil {
			// 记录错误但不中断服务
			cm.logger.Error("ignoring config change from %s: %v", e.Name, err)
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()

		cm.logger.Info("configuration reloaded from %s", e.Name)
		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.config
}

// setConfig replaces the current configuration
func (cm *ConfigManager) setConfig(config *Config) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.config = config
}

// ReloadConfig 重新加载配置
func (cm *ConfigManager) ReloadConfig() (*Config, error) { return cm.LoadConfig() }
