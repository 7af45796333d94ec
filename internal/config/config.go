package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrFileNotFound is returned when an explicit config path does not exist.
var ErrFileNotFound = errors.New("config file not found")

// legacyCooldownEnv is the cooldown knob the contact form shipped with, in whole seconds.
const legacyCooldownEnv = "CONTACT_COOLDOWN_SECONDS"

type Redis struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

type Limits struct {
	IPRequests    int           `mapstructure:"ip_requests"`
	IPWindow      time.Duration `mapstructure:"ip_window"`
	EmailCooldown time.Duration `mapstructure:"email_cooldown"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
	FailurePolicy string        `mapstructure:"failure_policy"` // closed | open
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Breaker struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

type Admin struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type Turnstile struct {
	Secret    string `mapstructure:"secret"`
	VerifyURL string `mapstructure:"verify_url"`
}

type Delivery struct {
	WebhookURL string  `mapstructure:"webhook_url"`
	Rate       float64 `mapstructure:"rate"` // messages per second
	Burst      int     `mapstructure:"burst"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// Config holds everything the contactd and contactctl binaries read at startup.
type Config struct {
	ListenAddr              string        `mapstructure:"listen_addr"`
	MaxBodyBytes            int64         `mapstructure:"max_body_bytes"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`

	Redis     Redis     `mapstructure:"redis"`
	Limits    Limits    `mapstructure:"limits"`
	Breaker   Breaker   `mapstructure:"breaker"`
	Admin     Admin     `mapstructure:"admin"`
	Turnstile Turnstile `mapstructure:"turnstile"`
	Delivery  Delivery  `mapstructure:"delivery"`
	Log       Log       `mapstructure:"log"`
}

// Every key needs a default, otherwise AutomaticEnv never sees it during decoding.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_body_bytes", 64<<10)
	v.SetDefault("graceful_shutdown_timeout", "15s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "500ms")
	v.SetDefault("redis.write_timeout", "500ms")
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("limits.ip_requests", 5)
	v.SetDefault("limits.ip_window", "60s")
	v.SetDefault("limits.email_cooldown", "60s")
	v.SetDefault("limits.store_timeout", "200ms")
	v.SetDefault("limits.failure_policy", "closed")
	v.SetDefault("limits.sweep_interval", "1m")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.reset_timeout", "10s")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.jwt_issuer", "")

	v.SetDefault("turnstile.secret", "")
	v.SetDefault("turnstile.verify_url", "https://challenges.cloudflare.com/turnstile/v0/siteverify")

	v.SetDefault("delivery.webhook_url", "")
	v.SetDefault("delivery.rate", 5)
	v.SetDefault("delivery.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads .env (if present), then defaults, the optional YAML file at path and the
// environment, later sources winning. Env names are the keys upper-cased with dots
// replaced by underscores, e.g. REDIS_ADDR or LIMITS_IP_WINDOW.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if s, ok := os.LookupEnv(legacyCooldownEnv); ok && s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("%s: want a positive integer, got %q", legacyCooldownEnv, s)
		}
		v.SetDefault("limits.email_cooldown", time.Duration(secs)*time.Second)
	}

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return Config{}, ErrFileNotFound
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the limiter cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Limits.IPRequests <= 0:
		return errors.New("limits.ip_requests must be positive")
	case c.Limits.IPWindow <= 0:
		return errors.New("limits.ip_window must be positive")
	case c.Limits.EmailCooldown <= 0:
		return errors.New("limits.email_cooldown must be positive")
	case c.Limits.StoreTimeout <= 0:
		return errors.New("limits.store_timeout must be positive")
	case c.MaxBodyBytes <= 0:
		return errors.New("max_body_bytes must be positive")
	}
	switch strings.ToLower(c.Limits.FailurePolicy) {
	case "open", "closed":
	default:
		return fmt.Errorf("limits.failure_policy: want open or closed, got %q", c.Limits.FailurePolicy)
	}
	return nil
}
