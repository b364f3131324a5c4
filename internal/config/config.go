package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. FUNDSCOPE_PG_DSN.
const EnvPrefix = "FUNDSCOPE"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	FundRepository  string
	ClaimRepository string
	PGDSN           string
	CallTimeout     time.Duration

	PlatformTokenSymbol string
	Tokens              []string
	TokenCacheSize      int
	TotalsCacheTTL      time.Duration
	TotalsCacheShards   int

	ProfileURL  string
	PriceURL    string
	HTTPTimeout time.Duration

	NotifyWorkers int
	LogLevel      string
	LogFile       string
	MetricsAddr   string

	Watch WatchConfig
}

// WatchConfig holds the Funded event watcher settings.
type WatchConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	PollInterval      time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("platform-token-symbol", "FND")
	v.SetDefault("token-cache-size", 1024)
	v.SetDefault("totals-cache-ttl", time.Duration(0))
	v.SetDefault("totals-cache-shards", 32)
	v.SetDefault("http-timeout", 10*time.Second)
	v.SetDefault("notify-workers", 4)
	v.SetDefault("log-level", "info")

	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("poll-interval", 15*time.Second)
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc"),
		FundRepository:      v.GetString("fund-repository"),
		ClaimRepository:     v.GetString("claim-repository"),
		PGDSN:               v.GetString("pg-dsn"),
		CallTimeout:         v.GetDuration("call-timeout"),
		PlatformTokenSymbol: v.GetString("platform-token-symbol"),
		Tokens:              getStringSlice(v, "tokens"),
		TokenCacheSize:      v.GetInt("token-cache-size"),
		TotalsCacheTTL:      v.GetDuration("totals-cache-ttl"),
		TotalsCacheShards:   v.GetInt("totals-cache-shards"),
		ProfileURL:          v.GetString("profile-url"),
		PriceURL:            v.GetString("price-url"),
		HTTPTimeout:         v.GetDuration("http-timeout"),
		NotifyWorkers:       v.GetInt("notify-workers"),
		LogLevel:            v.GetString("log-level"),
		LogFile:             v.GetString("log-file"),
		MetricsAddr:         v.GetString("metrics-addr"),
		Watch: WatchConfig{
			FromBlock:         v.GetUint64("from"),
			ToBlock:           v.GetUint64("to"),
			BatchSize:         v.GetUint64("batch-size"),
			Checkpoint:        v.GetString("checkpoint"),
			CheckpointEnabled: v.GetBool("checkpoint-enabled"),
			MaxRetries:        v.GetInt("max-retries"),
			RetryBackoff:      v.GetDuration("retry-backoff"),
			PollInterval:      v.GetDuration("poll-interval"),
		},
	}

	return cfg, nil
}

// RequireChain checks the settings needed to read on-chain state.
func (c Config) RequireChain() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if _, err := ParseAddress("fund-repository", c.FundRepository); err != nil {
		return err
	}
	if _, err := ParseAddress("claim-repository", c.ClaimRepository); err != nil {
		return err
	}
	return nil
}

// ParseAddress converts a configured hex address into common.Address.
func ParseAddress(key, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("%s is required", key)
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%s: invalid address %s", key, input)
	}
	return common.HexToAddress(input), nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
