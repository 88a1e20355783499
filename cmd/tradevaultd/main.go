package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tradevault/config"
	"tradevault/core/state"
	"tradevault/crypto"
	"tradevault/native/registry"
	"tradevault/native/trade"
	"tradevault/observability/logging"
	"tradevault/rpc"
	"tradevault/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TRADEVAULT_ENV"))
	logger := logging.Setup("tradevaultd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	custody, err := resolveCustody(cfg, logger)
	if err != nil {
		logger.Error("Failed to resolve custody address", slog.Any("error", err))
		os.Exit(1)
	}

	st := state.NewManager(db)
	// Local in-process registries; production deployments swap in clients
	// for the external registries here.
	registries := registry.NewSet()
	gateway := trade.NewGateway(registries, custody)
	engine := trade.NewEngine(gateway)
	engine.SetState(st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(engine, st, cfg.RPCAuthTokenEnv, logger)
	logger.Info("tradevault daemon ready",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("custody", crypto.NewAddress(crypto.TVPrefix, append([]byte(nil), custody[:]...)).String()),
	)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		db.Close()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// resolveCustody returns the configured custody address or derives one from a
// freshly generated key when the config leaves it unset.
func resolveCustody(cfg *config.Config, logger *slog.Logger) ([20]byte, error) {
	custody, ok, err := cfg.Custody()
	if err != nil {
		return [20]byte{}, err
	}
	if ok {
		return custody, nil
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return [20]byte{}, err
	}
	addr := key.PubKey().Address()
	logger.Warn("no custody address configured, derived ephemeral address",
		slog.String("address", addr.String()))
	return addr.Array(), nil
}
