package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"carecrm/backend/internal/config"
	"carecrm/backend/internal/store/bunstore"
	"carecrm/backend/internal/store/postgres"
	"carecrm/backend/internal/store/sqlite"
)

const serviceName = "carecrm-server"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Appointment scheduling backend for the care CRM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the gRPC and HTTP servers",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConfig(configPath, func(cfg config.Config, log *slog.Logger) error {
					return serve(cmd.Context(), cfg, log)
				})
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withConfig(configPath, func(cfg config.Config, log *slog.Logger) error {
					return migrate(cmd.Context(), cfg, log)
				})
			},
		},
	)
	return root
}

// withConfig loads configuration and installs the JSON logger at the
// configured level before running fn. Failures are logged, not printed.
func withConfig(path string, fn func(config.Config, *slog.Logger) error) error {
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load(path)
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return err
	}

	log = newLogger(parseLogLevel(cfg.LogLevel))
	slog.SetDefault(log)

	if err := fn(cfg, log); err != nil {
		log.Error("command failed", slog.Any("err", err))
		return err
	}
	return nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With(
		slog.String("service", serviceName),
	)
}

func migrate(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDatabase(log, db)

	if cfg.DatabaseDriver == config.DriverSQLite {
		log.Info("sqlite schema ensured", slog.String("path", cfg.SQLitePath))
		return nil
	}
	applied, err := postgres.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied", slog.Any("migrations", applied))
	return nil
}

// openDatabase connects to the configured backend. SQLite files get their
// schema created on open; PostgreSQL relies on the migrate command.
func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*bun.DB, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		log.Info("opening sqlite database", slog.String("path", cfg.SQLitePath))
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			_ = sqlite.Close(db)
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return db, nil
	default:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
			SlowQuery:       cfg.DBSlowQuery,
			Logger:          log,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, err
		}
		return db, nil
	}
}

func newRepository(cfg config.Config, db *bun.DB) *bunstore.AppointmentRepo {
	if cfg.DatabaseDriver == config.DriverSQLite {
		return sqlite.NewAppointmentRepo(db)
	}
	return postgres.NewAppointmentRepo(db)
}

func closeDatabase(log *slog.Logger, db *bun.DB) {
	if err := db.Close(); err != nil {
		log.Warn("database close failed", slog.Any("err", err))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
