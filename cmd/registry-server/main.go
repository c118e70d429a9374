package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/equipment-registry/cmd/flags"
	"github.com/ruteri/equipment-registry/config"
	"github.com/ruteri/equipment-registry/credentials"
	"github.com/ruteri/equipment-registry/equipment"
	"github.com/ruteri/equipment-registry/events"
	"github.com/ruteri/equipment-registry/governance"
	"github.com/ruteri/equipment-registry/hostenv"
	"github.com/ruteri/equipment-registry/httpserver"
	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/ruteri/equipment-registry/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		Usage:   "address to listen on for API",
		EnvVars: []string{"REGISTRY_LISTEN_ADDR"},
	},
	&cli.StringFlag{
		Name:    "config",
		Usage:   "deployment config file (yaml, json or toml)",
		EnvVars: []string{"REGISTRY_CONFIG"},
	},
	&cli.StringFlag{
		Name:  "owner",
		Usage: "contract owner address, overrides the deployment config",
	},
	&cli.StringFlag{
		Name:  "storage-uri",
		Usage: "state store URI (memory://, file://, sqlite://, redis://, s3://, vault://)",
	},
	&cli.StringSliceFlag{
		Name:  "replica-uri",
		Usage: "state store URI mirrored on every commit, may be repeated",
	},
	&cli.StringFlag{
		Name:  "clock-mode",
		Usage: "clock source: local, eth or wall",
	},
	&cli.StringFlag{
		Name:  "block-schedule",
		Usage: "cron schedule advancing the local clock",
	},
	&cli.StringSliceFlag{
		Name:  "certifier",
		Usage: "certifier authorized at first deployment, may be repeated",
	},
	&cli.StringFlag{
		Name:    "event-archive-ipfs",
		Usage:   "IPFS API address (host:port) committed events are archived to",
		EnvVars: []string{"REGISTRY_EVENT_ARCHIVE_IPFS"},
	},
	flags.RpcAddrFlag,
}

func main() {
	app := &cli.App{
		Name:   "registry-server",
		Usage:  "Serve the equipment and service-provider registry API",
		Flags:  append(serverFlags, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	deployment, err := loadDeployment(cCtx)
	if err != nil {
		logger.Error("Invalid deployment config", "err", err)
		return err
	}

	storeFactory := storage.NewStateStoreFactory(logger)
	store, err := storeFactory.CreateReplicatedStore(deployment.StorageURI, deployment.ReplicaURIs)
	if err != nil {
		logger.Error("Failed to open state store", "err", err)
		return err
	}
	defer store.Close()
	logger.Info("State store opened", "location", store.LocationURI())

	ctx := context.Background()
	clock, producer, err := setupClock(ctx, deployment.Clock, store, logger)
	if err != nil {
		logger.Error("Failed to set up clock", "err", err)
		return err
	}

	sinks := []interfaces.EventSink{events.NewLogSink(logger, slog.LevelInfo)}
	if addr := cCtx.String("event-archive-ipfs"); addr != "" {
		archive := events.NewIPFSArchive(addr, store, logger)
		if err := archive.Resume(ctx); err != nil {
			logger.Error("Failed to resume event archive", "err", err)
			return err
		}
		logger.Info("Archiving events to IPFS", "address", addr, "head", archive.Head())
		sinks = append(sinks, archive)
	}
	host := hostenv.NewHost(store, clock, logger, sinks...)
	ledger := governance.NewLedger()

	var deployed bool
	err = host.Execute(ctx, "bootstrap", deployment.Owner, func(env interfaces.Env) error {
		var err error
		deployed, err = ledger.Bootstrap(env, deployment.Owner, deployment.InitialCertifiers)
		return err
	})
	if err != nil {
		logger.Error("Failed to bootstrap registry", "err", err)
		return err
	}
	logger.Info("Registry ready", "owner", deployment.Owner.Hex(), "newlyDeployed", deployed)

	handler := httpserver.NewHandler(host, equipment.NewRegistry(), ledger, credentials.NewRegistry(ledger), logger)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	if producer != nil {
		producer.Start()
		defer producer.Stop()
	}
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// loadDeployment reads the deployment config and applies flag overrides.
func loadDeployment(cCtx *cli.Context) (*config.Deployment, error) {
	d, err := config.Load(cCtx.String("config"))
	if err != nil {
		return nil, err
	}

	if cCtx.IsSet("owner") {
		owner, err := interfaces.NewIdentityFromHex(cCtx.String("owner"))
		if err != nil {
			return nil, fmt.Errorf("%w: owner: %v", config.ErrInvalidConfig, err)
		}
		d.Owner = owner
	}
	if cCtx.IsSet("storage-uri") {
		d.StorageURI = cCtx.String("storage-uri")
	}
	if cCtx.IsSet("replica-uri") {
		d.ReplicaURIs = cCtx.StringSlice("replica-uri")
	}
	if cCtx.IsSet("clock-mode") {
		d.Clock.Mode = cCtx.String("clock-mode")
	}
	if cCtx.IsSet("block-schedule") {
		d.Clock.BlockSchedule = cCtx.String("block-schedule")
	}
	if cCtx.IsSet(flags.RpcAddrFlag.Name) {
		d.Clock.RPCAddr = cCtx.String(flags.RpcAddrFlag.Name)
	}
	if cCtx.IsSet("certifier") {
		d.InitialCertifiers = nil
		for _, c := range cCtx.StringSlice("certifier") {
			addr, err := interfaces.NewIdentityFromHex(c)
			if err != nil {
				return nil, fmt.Errorf("%w: certifier: %v", config.ErrInvalidConfig, err)
			}
			d.InitialCertifiers = append(d.InitialCertifiers, addr)
		}
	}

	return d, d.Validate()
}

// setupClock returns the clock for mode, and a block producer when the clock
// is local.
func setupClock(ctx context.Context, cfg config.ClockConfig, store interfaces.StateStore, logger *slog.Logger) (interfaces.Clock, *hostenv.BlockProducer, error) {
	switch cfg.Mode {
	case config.ClockEth:
		logger.Info("Connecting to Ethereum RPC", "address", cfg.RPCAddr)
		clock, err := hostenv.DialEthClock(ctx, cfg.RPCAddr, logger)
		return clock, nil, err
	case config.ClockWall:
		return hostenv.NewWallClock(), nil, nil
	default:
		clock := hostenv.NewLocalClock(store)
		producer, err := hostenv.NewBlockProducer(clock, cfg.BlockSchedule, logger)
		if err != nil {
			return nil, nil, err
		}
		return clock, producer, nil
	}
}
