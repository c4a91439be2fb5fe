package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goran-ethernal/ChainDispatch/internal/common"
	"github.com/goran-ethernal/ChainDispatch/internal/config"
	"github.com/goran-ethernal/ChainDispatch/internal/deadletter"
	"github.com/goran-ethernal/ChainDispatch/internal/dispatch"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/internal/metrics"
	"github.com/goran-ethernal/ChainDispatch/internal/rpc"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
	pkgrpc "github.com/goran-ethernal/ChainDispatch/pkg/rpc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║          ChainDispatch v%s              ║
║    Blockchain Event Callback Dispatcher   ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath  string
	networkName string
	fromBlock   string
	toBlock     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "ChainDispatch - blockchain event callback dispatcher",
	Long: `ChainDispatch binds contract events to callbacks. It fetches the logs of every
configured contract, decodes them with the contract ABI and delivers them in
batches per event, retrying failed deliveries with exponential backoff.`,
	Version: version,
	RunE:    runDispatcher,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.Flags().StringVarP(&networkName, "network", "n", "", "only dispatch this network (default: all)")
	rootCmd.Flags().StringVar(&fromBlock, "from", "", "first block, decimal or 0x hex (default: lowest start_block)")
	rootCmd.Flags().StringVar(&toBlock, "to", "", "last block, decimal or 0x hex (default: latest or finalized block)")

	rootCmd.AddCommand(listCmd, schemaCmd, deadLettersCmd)
}

func runDispatcher(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logger.NewComponentLoggerFromConfig(common.ComponentCLI, cfg.Logging)
	logger.SetDefaultLogger(log)

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics, logger.NewComponentLoggerFromConfig(common.ComponentMetrics, cfg.Logging))
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", metricsServer.Addr(), cfg.Metrics.Path)
	}

	providers := rpc.NewProviderCache(logger.NewComponentLoggerFromConfig(common.ComponentProvider, cfg.Logging))
	defer providers.Close()

	opts := []registry.Option{
		registry.WithLogger(logger.NewComponentLoggerFromConfig(common.ComponentRegistry, cfg.Logging)),
		registry.WithBackoff(dispatch.BackoffPolicy(cfg.Dispatch)),
		registry.WithMaxAttempts(cfg.Dispatch.MaxAttempts),
	}

	if cfg.DeadLetter != nil && cfg.DeadLetter.Enabled {
		store, err := deadletter.NewStore(cfg.DeadLetter.DB,
			logger.NewComponentLoggerFromConfig(common.ComponentDeadLetter, cfg.Logging))
		if err != nil {
			return fmt.Errorf("failed to open dead letter store: %w", err)
		}
		defer store.Close()

		opts = append(opts, registry.WithDeadLetterSink(store))
		log.Infof("Dead letters are stored in %s", cfg.DeadLetter.DB.Path)
	}

	log.Info("Connecting to networks and registering events...")
	reg, err := dispatch.BuildRegistry(ctx, cfg, providers, dispatch.LogCallbacks(log), opts...)
	if err != nil {
		return fmt.Errorf("failed to build registry: %w", err)
	}
	log.Infof("Registered %d event(s) on %d network(s)", reg.Len(), len(providers.Networks()))

	dispatcher := dispatch.NewDispatcher(reg, logger.NewComponentLoggerFromConfig(common.ComponentDispatcher, cfg.Logging))
	metrics.ComponentHealthSet(common.ComponentDispatcher, true)

	g, gctx := errgroup.WithContext(ctx)
	for _, network := range providers.Networks() {
		if networkName != "" && network != networkName {
			continue
		}

		provider, _ := providers.Get(network)
		g.Go(func() error {
			from, to, err := blockRange(gctx, dispatcher, network, provider)
			if err != nil {
				return err
			}

			if from > to {
				log.Warnf("Nothing to dispatch on %s: start block %d is past block %d", network, from, to)
				return nil
			}

			log.Infof("Dispatching %s blocks %d-%d", network, from, to)
			return dispatcher.Backfill(gctx, network, provider, from, to, cfg.Dispatch.ChunkSize)
		})
	}

	if err := g.Wait(); err != nil {
		metrics.ComponentHealthSet(common.ComponentDispatcher, false)
		return fmt.Errorf("dispatch failed: %w", err)
	}

	log.Info("ChainDispatch finished successfully")
	return nil
}

// blockRange resolves the --from and --to flags for network, falling back to the
// configured start blocks and the network head.
func blockRange(
	ctx context.Context,
	dispatcher *dispatch.Dispatcher,
	network string,
	provider pkgrpc.EthClient,
) (uint64, uint64, error) {
	var (
		from, to uint64
		err      error
	)

	if fromBlock != "" {
		if from, err = common.ParseUint64orHex(&fromBlock); err != nil {
			return 0, 0, fmt.Errorf("invalid --from: %w", err)
		}
	} else if from, err = dispatcher.StartBlock(network); err != nil {
		return 0, 0, err
	}

	if toBlock != "" {
		if to, err = common.ParseUint64orHex(&toBlock); err != nil {
			return 0, 0, fmt.Errorf("invalid --to: %w", err)
		}
	} else if to, err = dispatcher.SafeHead(ctx, network, provider); err != nil {
		return 0, 0, err
	}

	return from, to, nil
}
