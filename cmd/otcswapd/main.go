package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"otcswap/config"
	"otcswap/core/state"
	"otcswap/native/swap"
	"otcswap/observability"
	"otcswap/observability/logging"
	"otcswap/rpc"
	"otcswap/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("otcswapd", cfg.Environment, logging.ParseLevel(cfg.LogLevel))

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedAssets(manager, cfg.Assets); err != nil {
		logger.Error("Failed to seed asset registry", slog.Any("error", err))
		os.Exit(1)
	}

	engine := swap.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(observability.NewEventRecorder(logger))
	engine.SetMaxPriceAge(time.Duration(cfg.OracleMaxAgeSecs) * time.Second)

	if cfg.BaseAsset != "" && cfg.QuoteAsset != "" {
		if _, err := engine.InitConfig(cfg.BaseAsset, cfg.QuoteAsset); err != nil {
			logger.Error("Failed to initialise swap pair", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("swap pair configured", "base", cfg.BaseAsset, "quote", cfg.QuoteAsset)
	}

	var oracle swap.PriceOracle
	if cfg.OracleEndpoint != "" {
		client := &http.Client{Timeout: time.Duration(cfg.OracleTimeoutSecs) * time.Second}
		oracle = swap.NewHTTPOracle(client, cfg.OracleEndpoint)
		logger.Info("price oracle configured", "endpoint", cfg.OracleEndpoint)
	} else {
		logger.Warn("no oracle endpoint configured; settlement methods will fail")
	}

	server := rpc.NewServer(engine, manager, oracle, logger)
	if cfg.RPCToken != "" {
		server.SetAuthToken(cfg.RPCToken)
	}

	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedAssets registers configured assets, skipping symbols already present so
// restarts with the same config stay idempotent.
func seedAssets(manager *state.Manager, assets []config.AssetConfig) error {
	for _, asset := range assets {
		meta := state.AssetMetadata{Symbol: asset.Symbol, Name: asset.Name, Decimals: asset.Decimals}
		if _, ok, err := manager.AssetMetadata(asset.Symbol); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := manager.RegisterAsset(meta); err != nil {
			return err
		}
	}
	return nil
}
