package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const migrateTimeout = 30 * time.Second

// cli хранит состояние одного запуска: viper и загруженный конфиг.
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        app.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{v: app.NewViper()}

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront: catalog, users and order placement service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (yaml)")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	flags.String("storage", "", "storage driver: memory|postgres")
	flags.String("postgres-dsn", "", "PostgreSQL DSN")
	_ = c.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("storage_driver", flags.Lookup("storage"))
	_ = c.v.BindPFlag("postgres_dsn", flags.Lookup("postgres-dsn"))

	root.AddCommand(c.serveCmd(), c.migrateCmd(), c.seedCmd(), c.dlqCmd(), versionCmd())
	return root
}

// load собирает конфиг из флагов, окружения и файла. Пустой флаг не перекрывает остальные источники.
func (c *cli) load() error {
	cfg, err := app.LoadConfig(c.v, c.configFile)
	if err != nil {
		return err
	}
	if err := app.SetupLogger(cfg.LogLevel); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API, metrics and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := log.WithField("component", "app")
			app.WatchLogLevel(c.v, logger)

			logger.WithFields(log.Fields{
				"http_addr":    c.cfg.HTTPAddr,
				"metrics_addr": c.cfg.MetricsAddr,
				"grpc_addr":    c.cfg.GRPCAddr,
				"storage":      c.cfg.StorageDriver,
				"version":      version.Get().Version,
			}).Info("запускаем storefront")

			a, err := app.New(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if seedFile != "" {
				if err := applySeed(ctx, a, seedFile); err != nil {
					return err
				}
			}

			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("storefront остановлен")
			return nil
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed-file", "", "seed catalog and users from yaml before serving")
	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load products and users from a yaml file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.StorageDriver == app.StorageDriverMemory {
				log.Warn("seeding in-memory storage has no lasting effect; use serve --seed-file instead")
			}
			a, err := app.New(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return applySeed(cmd.Context(), a, file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (yaml)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func applySeed(ctx context.Context, a *app.App, file string) error {
	seed, err := app.LoadSeedFile(file)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	_, err = app.NewSeeder(a.Catalog, a.Users, nil).Apply(ctx, seed)
	return err
}

func (c *cli) migrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Apply, roll back or inspect PostgreSQL migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := strings.TrimSpace(c.cfg.PostgresDSN)
			if dsn == "" {
				return errors.New("postgres_dsn (STOREFRONT_POSTGRES_DSN or --postgres-dsn) is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			store, err := postgres.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			switch args[0] {
			case "up":
				err = store.MigrateUp(ctx, steps)
			case "down":
				if steps <= 0 {
					steps = 1
				}
				err = store.MigrateDown(ctx, steps)
			}
			if err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}

			ver, applied, err := store.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s ok: version=%d applied=%d\n", args[0], ver, applied)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	return cmd
}

func (c *cli) dlqCmd() *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay the dead letter topic",
	}

	replay := kafka.DefaultReplayConfig()
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Return dead-lettered order events to the main topic (dry-run by default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("source-topic") {
				replay.SourceTopic = c.cfg.KafkaDLQTopic
			}
			if !cmd.Flags().Changed("target-topic") {
				replay.TargetTopic = c.cfg.KafkaTopic
			}
			if err := replay.Validate(); err != nil {
				return err
			}

			r, err := kafka.NewReplayer(c.cfg.KafkaBrokers, replay.Execute, log.WithField("component", "dlq-replay"))
			if err != nil {
				return err
			}
			defer r.Close()

			stats, err := r.Run(cmd.Context(), replay)
			if err != nil {
				return fmt.Errorf("dlq replay: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dlq replay: processed=%d replayed=%d skipped=%d execute=%t\n",
				stats.Processed, stats.Replayed, stats.Skipped, replay.Execute)
			return nil
		},
	}
	f := replayCmd.Flags()
	f.StringVar(&replay.SourceTopic, "source-topic", replay.SourceTopic, "DLQ topic (default: kafka_dlq_topic)")
	f.StringVar(&replay.TargetTopic, "target-topic", replay.TargetTopic, "replay target (default: kafka_topic)")
	f.IntVar(&replay.Limit, "limit", replay.Limit, "max messages to scan")
	f.BoolVar(&replay.Execute, "execute", false, "publish instead of dry-run")
	f.BoolVar(&replay.FromNewest, "from-newest", false, "scan the latest messages of each partition")
	f.DurationVar(&replay.IdleTimeout, "idle-timeout", replay.IdleTimeout, "stop reading a partition after this idle period")

	dlq.AddCommand(replayCmd)
	return dlq
}

func versionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return nil
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(version.Get())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as json")
	return cmd
}
