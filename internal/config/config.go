package config

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Generator GeneratorConfig
	Chain     ChainConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type AuthConfig struct {
	SecretKeyHex string `mapstructure:"secret_key"`
}

type GeneratorConfig struct {
	AssetDir          string `mapstructure:"asset_dir"`
	CanvasSize        int    `mapstructure:"canvas_size"`
	RenderConcurrency int    `mapstructure:"render_concurrency"`
	RenderCacheTTLSec int64  `mapstructure:"render_cache_ttl_sec"`
	MetadataTTLSec    int64  `mapstructure:"metadata_ttl_sec"`
}

type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("generator.canvas_size", 512)
	v.SetDefault("generator.render_concurrency", runtime.NumCPU())
	v.SetDefault("generator.render_cache_ttl_sec", 21600)
	v.SetDefault("generator.metadata_ttl_sec", 300)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":                    "PORT",
		"redis.addr":                     "REDIS_ADDR",
		"redis.password":                 "REDIS_PASSWORD",
		"auth.secret_key":                "MINT_PASS_SECRET",
		"generator.asset_dir":            "ASSET_DIR",
		"generator.canvas_size":          "CANVAS_SIZE",
		"generator.render_concurrency":   "RENDER_CONCURRENCY",
		"generator.render_cache_ttl_sec": "RENDER_CACHE_TTL_SEC",
		"generator.metadata_ttl_sec":     "METADATA_TTL_SEC",
		"chain.rpc_url":                  "RPC_URL",
		"chain.contract_address":         "COLLECTION_CONTRACT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

// SecretKey decodes the hex-encoded mint-pass HMAC secret.
func (c *Config) SecretKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Auth.SecretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("MINT_PASS_SECRET is not hex: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("MINT_PASS_SECRET too short: %d bytes, need 32", len(key))
	}
	return key, nil
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Auth.SecretKeyHex, "MINT_PASS_SECRET"},
		{c.Generator.AssetDir, "ASSET_DIR"},
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.ContractAddress, "COLLECTION_CONTRACT"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if _, err := c.SecretKey(); err != nil {
		return err
	}
	if c.Generator.CanvasSize <= 0 {
		return fmt.Errorf("invalid CANVAS_SIZE: %d", c.Generator.CanvasSize)
	}
	if c.Generator.RenderConcurrency <= 0 {
		return fmt.Errorf("invalid RENDER_CONCURRENCY: %d", c.Generator.RenderConcurrency)
	}
	return nil
}
