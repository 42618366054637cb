package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// AssetConfig seeds the asset registry on first start. Re-registrations of an
// already known symbol are ignored at boot.
type AssetConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

type Config struct {
	RPCAddress        string        `toml:"RPCAddress"`
	DataDir           string        `toml:"DataDir"`
	Environment       string        `toml:"Environment"`
	LogLevel          string        `toml:"LogLevel"`
	RPCToken          string        `toml:"RPCToken"`
	BaseAsset         string        `toml:"BaseAsset"`
	QuoteAsset        string        `toml:"QuoteAsset"`
	OracleEndpoint    string        `toml:"OracleEndpoint"`
	OracleMaxAgeSecs  int64         `toml:"OracleMaxAgeSeconds"`
	OracleTimeoutSecs int64         `toml:"OracleTimeoutSeconds"`
	Assets            []AssetConfig `toml:"Assets"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./otcswap-data"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.OracleMaxAgeSecs <= 0 {
		cfg.OracleMaxAgeSecs = 60
	}
	if cfg.OracleTimeoutSecs <= 0 {
		cfg.OracleTimeoutSecs = 5
	}
	if cfg.Assets == nil {
		cfg.Assets = []AssetConfig{}
	}
}

func validate(cfg *Config) error {
	base := strings.TrimSpace(cfg.BaseAsset)
	quote := strings.TrimSpace(cfg.QuoteAsset)
	if (base == "") != (quote == "") {
		return fmt.Errorf("BaseAsset and QuoteAsset must be set together")
	}
	if base != "" && strings.EqualFold(base, quote) {
		return fmt.Errorf("BaseAsset and QuoteAsset must differ")
	}
	for _, asset := range cfg.Assets {
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("asset entry missing Symbol")
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:        ":8080",
		DataDir:           "./otcswap-data",
		Environment:       "local",
		LogLevel:          "info",
		BaseAsset:         "SOL",
		QuoteAsset:        "USDC",
		OracleMaxAgeSecs:  60,
		OracleTimeoutSecs: 5,
		Assets: []AssetConfig{
			{Symbol: "SOL", Name: "Wrapped SOL", Decimals: 9},
			{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
