package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/internal/mailer"
	"github.com/MarkoPoloResearchLab/wallet/internal/oplog"
	"github.com/MarkoPoloResearchLab/wallet/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/wallet/internal/walletapi"
	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL    = "database-url"
	flagListenAddr     = "listen-addr"
	flagEnvironment    = "environment"
	flagAllowedOrigins = "allowed-origins"
	flagSMTPHost       = "smtp-host"
	flagSMTPPort       = "smtp-port"
	flagSMTPUsername   = "smtp-username"
	flagSMTPPassword   = "smtp-password"
	flagSMTPFrom       = "smtp-from"
	flagSMTPFromName   = "smtp-from-name"

	configKeyDatabaseURL    = "database_url"
	configKeyListenAddr     = "listen_addr"
	configKeyEnvironment    = "environment"
	configKeyAllowedOrigins = "allowed_origins"
	configKeySMTPHost       = "smtp_host"
	configKeySMTPPort       = "smtp_port"
	configKeySMTPUsername   = "smtp_username"
	configKeySMTPPassword   = "smtp_password"
	configKeySMTPFrom       = "smtp_from"
	configKeySMTPFromName   = "smtp_from_name"

	defaultDatabaseURL = "sqlite:///tmp/wallet.db"
	defaultListenAddr  = ":8080"
	defaultSMTPPort    = 587
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	Environment    string
	AllowedOrigins string
	SMTP           mailer.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "walletd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "walletd",
		Short:         "Wallet credit line HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagEnvironment, "local", "Deployment environment (local or production)")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma separated CORS origins")
	cmd.Flags().String(flagSMTPHost, "", "SMTP host for token notifications (empty disables SMTP)")
	cmd.Flags().Int(flagSMTPPort, defaultSMTPPort, "SMTP port")
	cmd.Flags().String(flagSMTPUsername, "", "SMTP username")
	cmd.Flags().String(flagSMTPPassword, "", "SMTP password")
	cmd.Flags().String(flagSMTPFrom, "", "Notification sender address")
	cmd.Flags().String(flagSMTPFromName, "", "Notification sender display name")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := []struct {
		configKey string
		envVar    string
		flagName  string
	}{
		{configKeyDatabaseURL, "DATABASE_URL", flagDatabaseURL},
		{configKeyListenAddr, "LISTEN_ADDR", flagListenAddr},
		{configKeyEnvironment, "APP_ENV", flagEnvironment},
		{configKeyAllowedOrigins, "ALLOWED_ORIGINS", flagAllowedOrigins},
		{configKeySMTPHost, "SMTP_HOST", flagSMTPHost},
		{configKeySMTPPort, "SMTP_PORT", flagSMTPPort},
		{configKeySMTPUsername, "SMTP_USERNAME", flagSMTPUsername},
		{configKeySMTPPassword, "SMTP_PASSWORD", flagSMTPPassword},
		{configKeySMTPFrom, "SMTP_FROM", flagSMTPFrom},
		{configKeySMTPFromName, "SMTP_FROM_NAME", flagSMTPFromName},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.configKey, binding.envVar); err != nil {
			return err
		}
		if err := viper.BindPFlag(binding.configKey, cmd.Flags().Lookup(binding.flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.Environment = viper.GetString(configKeyEnvironment)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.SMTP = mailer.Config{
		Host:     viper.GetString(configKeySMTPHost),
		Port:     viper.GetInt(configKeySMTPPort),
		Username: viper.GetString(configKeySMTPUsername),
		Password: viper.GetString(configKeySMTPPassword),
		From:     viper.GetString(configKeySMTPFrom),
		FromName: viper.GetString(configKeySMTPFromName),
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	store := gormstore.New(gormDB)
	if err := prepareSchema(store, driver); err != nil {
		return err
	}

	var notifier wallet.Notifier
	if cfg.SMTP.Enabled() {
		notifier = mailer.New(cfg.SMTP)
	} else {
		notifier = mailer.NewLogNotifier(logger)
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	walletService, err := wallet.NewService(store, clock,
		wallet.WithOperationLogger(oplog.New(logger)),
		wallet.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("wallet service init: %w", err)
	}

	apiConfig := walletapi.Config{
		ListenAddr:     cfg.ListenAddr,
		Environment:    cfg.Environment,
		AllowedOrigins: walletapi.ParseAllowedOrigins(cfg.AllowedOrigins),
	}
	return walletapi.Run(ctx, apiConfig, walletService, logger)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "wallet.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(store *gormstore.Store, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
