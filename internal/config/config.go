package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"YieldKeeper/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "15s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StrategyEntry is one configured yield strategy.
type StrategyEntry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Config holds all keeper configuration. It is built once by Load and never
// mutated afterwards.
type Config struct {
	Chain struct {
		RPCURL        string   `yaml:"rpc_url"`
		PrivateKey    string   `yaml:"private_key"`
		VaultAddress  string   `yaml:"vault_address"`
		Confirmations uint64   `yaml:"confirmations"`
		ReadTimeout   Duration `yaml:"read_timeout"`
		TxTimeout     Duration `yaml:"tx_timeout"`
		GasLimit      uint64   `yaml:"gas_limit"`
		RPS           float64  `yaml:"rps"`
	} `yaml:"chain"`
	Advisory struct {
		URL     string   `yaml:"url"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"advisory"`
	Strategies []StrategyEntry `yaml:"strategies"`
	Schedule   struct {
		Interval Duration `yaml:"interval"`
		Cron     string   `yaml:"cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Chain.RPCURL, "RPC_URL")
	setString(&c.Chain.PrivateKey, "PRIVATE_KEY")
	setString(&c.Chain.VaultAddress, "VAULT_CONTRACT_ADDRESS")
	setString(&c.Advisory.URL, "ADVISOR_URL")
	setString(&c.Schedule.Cron, "REBALANCE_CRON")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Proxy, "HTTPS_PROXY")

	for env, dst := range map[string]*Duration{
		"CHAIN_READ_TIMEOUT": &c.Chain.ReadTimeout,
		"TX_TIMEOUT":         &c.Chain.TxTimeout,
		"ADVISORY_TIMEOUT":   &c.Advisory.Timeout,
		"REBALANCE_INTERVAL": &c.Schedule.Interval,
	} {
		if v := os.Getenv(env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", env, err)
			}
			*dst = Duration(d)
		}
	}

	for env, dst := range map[string]*uint64{
		"CONFIRMATIONS": &c.Chain.Confirmations,
		"GAS_LIMIT":     &c.Chain.GasLimit,
	} {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("parse %s: %w", env, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("CHAIN_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse CHAIN_RPS: %w", err)
		}
		c.Chain.RPS = rps
	}

	if v := os.Getenv("STRATEGIES"); v != "" {
		entries, err := ParseStrategies(v)
		if err != nil {
			return fmt.Errorf("parse STRATEGIES: %w", err)
		}
		c.Strategies = entries
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Chain.Confirmations == 0 {
		c.Chain.Confirmations = 1
	}
	if c.Chain.ReadTimeout == 0 {
		c.Chain.ReadTimeout = Duration(15 * time.Second)
	}
	if c.Chain.TxTimeout == 0 {
		c.Chain.TxTimeout = Duration(5 * time.Minute)
	}
	if c.Advisory.URL == "" {
		c.Advisory.URL = "http://localhost:3333/choose"
	}
	if c.Advisory.Timeout == 0 {
		c.Advisory.Timeout = Duration(5 * time.Second)
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = Duration(time.Hour)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// ParseStrategies parses "Name=0xAddr,Name2=0xAddr2".
func ParseStrategies(s string) ([]StrategyEntry, error) {
	var out []StrategyEntry
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, addr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q: want Name=0xAddress", part)
		}
		out = append(out, StrategyEntry{Name: strings.TrimSpace(name), Address: strings.TrimSpace(addr)})
	}
	return out, nil
}

// StrategySet returns the configured strategies in configuration order.
// Call after Validate.
func (c *Config) StrategySet() []model.Strategy {
	out := make([]model.Strategy, 0, len(c.Strategies))
	for _, st := range c.Strategies {
		out = append(out, model.Strategy{Name: st.Name, Address: common.HexToAddress(st.Address)})
	}
	return out
}

// ScheduleSpec returns the cron spec for the rebalance job. An explicit
// cron expression wins over the interval.
func (c *Config) ScheduleSpec() string {
	if c.Schedule.Cron != "" {
		return c.Schedule.Cron
	}
	return "@every " + c.Schedule.Interval.Std().String()
}

// TelegramEnabled reports whether both Telegram settings are present.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.PrivateKey == "" {
		return fmt.Errorf("chain.private_key is required")
	}
	if !common.IsHexAddress(c.Chain.VaultAddress) {
		return fmt.Errorf("chain.vault_address %q is not a valid address", c.Chain.VaultAddress)
	}
	if c.Chain.RPS < 0 {
		return fmt.Errorf("chain.rps must not be negative")
	}
	if c.Advisory.URL == "" {
		return fmt.Errorf("advisory.url is required")
	}
	if c.Schedule.Interval.Std() <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}

	names := make(map[string]struct{}, len(c.Strategies))
	var errs []error
	for i, st := range c.Strategies {
		if st.Name == "" {
			errs = append(errs, fmt.Errorf("strategies[%d]: name is required", i))
		}
		if _, dup := names[st.Name]; dup {
			errs = append(errs, fmt.Errorf("strategies[%d]: duplicate name %q", i, st.Name))
		}
		names[st.Name] = struct{}{}
		if !common.IsHexAddress(st.Address) {
			errs = append(errs, fmt.Errorf("strategies[%d] %q: invalid address %q", i, st.Name, st.Address))
		}
	}
	return errors.Join(errs...)
}
