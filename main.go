package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"example.com/socialwall/cmd/relay"
	"example.com/socialwall/cmd/server"
	"example.com/socialwall/internal/broker"
	config "example.com/socialwall/internal/init"
	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/storage"
	"example.com/socialwall/internal/store"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var logg = logger.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "socialwall",
		Short:        "Public wall, marketplace and messaging backend",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the change relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlag(cmd, "SERVER_ADDR", "addr")
			bindFlag(cmd, "STORE_DRIVER", "store")
			bindFlag(cmd, "CHANGES_DRIVER", "changes")

			// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Init())
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides SERVER_ADDR)")
	cmd.Flags().String("store", "", "table store: cassandra or postgres (overrides STORE_DRIVER)")
	cmd.Flags().String("changes", "", "change bus: kafka, nats or local (overrides CHANGES_DRIVER)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlag(cmd, "STORE_DRIVER", "store")
			cfg := config.Init()
			if err := store.Setup(cfg); err != nil {
				logg.Error("main", "Migration failed", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("store", "", "table store: cassandra or postgres (overrides STORE_DRIVER)")
	return cmd
}

// bindFlag lets a flag, when set, take precedence over the environment.
// Bound at run time: viper keeps one binding per key across commands.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		logg.Error("main", "Store connection failed", err)
		return err
	}
	defer st.Close()

	files, err := storage.NewS3(storage.S3Config{
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		PublicBaseURL:  cfg.S3PublicBaseURL,
		ForcePathStyle: cfg.S3ForcePath,
	})
	if err != nil {
		logg.Error("main", "Object storage init failed", err)
		return err
	}

	hub := broker.NewHub()
	pub, src, err := openChanges(cfg, hub)
	if err != nil {
		logg.Error("main", "Change bus init failed", err)
		return err
	}
	defer func() {
		if cerr := closeChanges(pub, src); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	srv := server.New(server.Deps{
		Store:         st,
		Publisher:     pub,
		Hub:           hub,
		Storage:       files,
		JWTSecret:     cfg.JWTSecret,
		ProfileBucket: cfg.ProfileBucket,
		PhotoBucket:   cfg.PhotoBucket,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.ServerAddr, cfg.TLSCert, cfg.TLSKey)
	})
	if src != nil {
		r := relay.New(src, hub)
		g.Go(func() error { return r.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logg.Info("main", "Shutdown completed")
	return nil
}

// openChanges connects the configured change bus. The source is nil when
// events never leave the process.
func openChanges(cfg *config.Config, hub *broker.Hub) (broker.Publisher, broker.Source, error) {
	switch cfg.ChangesDriver {
	case "kafka":
		// Configure Kafka client parameters
		kafkaCfg := broker.KafkaConfig{
			Brokers:      []string{cfg.KafkaBroker},
			Topic:        cfg.KafkaTopic,
			Partition:    cfg.KafkaPartition,
			WriteTimeout: cfg.KafkaWriteTO,
			ReadTimeout:  cfg.KafkaReadTO,
		}
		writer, err := broker.NewKafkaWriter(kafkaCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka writer: %w", err)
		}
		reader := broker.NewKafkaReader(kafkaCfg)
		return &broker.KafkaPublisher{Writer: writer}, &broker.KafkaSource{Reader: reader}, nil
	case "nats":
		bus, err := broker.NewNatsBus(cfg.NatsURL, cfg.NatsSubjectPrefix)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	case "local":
		return broker.LocalPublisher{Hub: hub}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown changes driver %q", cfg.ChangesDriver)
	}
}

func closeChanges(pub broker.Publisher, src broker.Source) error {
	var result error
	if err := pub.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close publisher: %w", err))
	}
	if src != nil && any(src) != any(pub) {
		if err := src.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close source: %w", err))
		}
	}
	return result
}
