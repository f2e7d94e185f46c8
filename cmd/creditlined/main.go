package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/creditline/internal/auth"
	"github.com/MarkoPoloResearchLab/creditline/internal/events"
	"github.com/MarkoPoloResearchLab/creditline/internal/httpserver"
	"github.com/MarkoPoloResearchLab/creditline/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/creditline/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL     = "database-url"
	flagStoreBackend    = "store-backend"
	flagListenAddr      = "listen-addr"
	flagNATSURL         = "nats-url"
	flagAllowedOrigins  = "allowed-origins"
	flagSigningKey      = "token-signing-key"
	flagTokenIssuer     = "token-issuer"
	flagPoolHolder      = "pool-holder"
	flagApprovers       = "approvers"
	flagServiceAccounts = "service-accounts"
	flagAdvanceRateBps  = "advance-rate-bps"
	flagLateFeeBps      = "late-fee-bps"
	flagGraceDays       = "late-payment-grace-days"
	flagMinPrincipalBps = "min-principal-rate-bps"
	flagPaused          = "paused"
	flagPoolEnabled     = "pool-enabled"

	backendGorm = "gorm"
	backendPgx  = "pgx"

	defaultDatabaseURL = "sqlite:///tmp/creditline.db"
	defaultListenAddr  = ":8080"
	defaultTokenIssuer = "creditline"
)

type runtimeConfig struct {
	DatabaseURL     string
	StoreBackend    string
	ListenAddr      string
	NATSURL         string
	AllowedOrigins  []string
	SigningKey      string
	TokenIssuer     string
	PoolHolder      string
	Approvers       []string
	ServiceAccounts []string
	Settings        creditline.PoolSettings
	Paused          bool
	PoolEnabled     bool
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditlined: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "creditlined",
		Short:         "Receivable-backed credit line HTTP server",
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
	cmd.Flags().String(flagStoreBackend, backendGorm, "credit store backend: gorm or pgx")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagNATSURL, "", "NATS servers for event publishing (disabled when empty)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().String(flagSigningKey, "", "HS256 signing key for API tokens")
	cmd.Flags().String(flagTokenIssuer, defaultTokenIssuer, "expected token issuer")
	cmd.Flags().String(flagPoolHolder, "pool-custodian", "identity under which pledged receivables are held")
	cmd.Flags().StringSlice(flagApprovers, nil, "identities allowed to approve borrowers and receivables")
	cmd.Flags().StringSlice(flagServiceAccounts, nil, "identities allowed to service payments and defaults")
	cmd.Flags().Int64(flagAdvanceRateBps, 8000, "advance rate applied to receivable face amounts, in bps")
	cmd.Flags().Int64(flagLateFeeBps, 2400, "annualized late fee rate in bps")
	cmd.Flags().Int(flagGraceDays, 5, "grace days before late fees accrue")
	cmd.Flags().Int64(flagMinPrincipalBps, 100, "minimum principal due per period, in bps of outstanding")
	cmd.Flags().Bool(flagPaused, false, "start with the protocol paused")
	cmd.Flags().Bool(flagPoolEnabled, true, "enable the pool on start")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		flagDatabaseURL: "DATABASE_URL",
		flagListenAddr:  "LISTEN_ADDR",
		flagNATSURL:     "NATS_URL",
		flagSigningKey:  "TOKEN_SIGNING_KEY",
		flagTokenIssuer: "TOKEN_ISSUER",
	}
	for flag, env := range bindings {
		key := strings.ReplaceAll(flag, "-", "_")
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString("database_url")
	cfg.ListenAddr = viper.GetString("listen_addr")
	cfg.NATSURL = viper.GetString("nats_url")
	cfg.SigningKey = viper.GetString("token_signing_key")
	cfg.TokenIssuer = viper.GetString("token_issuer")

	var err error
	if cfg.StoreBackend, err = cmd.Flags().GetString(flagStoreBackend); err != nil {
		return err
	}
	origins, err := cmd.Flags().GetString(flagAllowedOrigins)
	if err != nil {
		return err
	}
	cfg.AllowedOrigins = httpserver.ParseAllowedOrigins(origins)
	if cfg.PoolHolder, err = cmd.Flags().GetString(flagPoolHolder); err != nil {
		return err
	}
	if cfg.Approvers, err = cmd.Flags().GetStringSlice(flagApprovers); err != nil {
		return err
	}
	if cfg.ServiceAccounts, err = cmd.Flags().GetStringSlice(flagServiceAccounts); err != nil {
		return err
	}
	if cfg.Settings.AdvanceRateBps, err = cmd.Flags().GetInt64(flagAdvanceRateBps); err != nil {
		return err
	}
	if cfg.Settings.LateFeeBps, err = cmd.Flags().GetInt64(flagLateFeeBps); err != nil {
		return err
	}
	if cfg.Settings.LatePaymentGraceDays, err = cmd.Flags().GetInt(flagGraceDays); err != nil {
		return err
	}
	if cfg.Settings.MinPrincipalRateBps, err = cmd.Flags().GetInt64(flagMinPrincipalBps); err != nil {
		return err
	}
	if cfg.Paused, err = cmd.Flags().GetBool(flagPaused); err != nil {
		return err
	}
	if cfg.PoolEnabled, err = cmd.Flags().GetBool(flagPoolEnabled); err != nil {
		return err
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.SigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	if cfg.StoreBackend != backendGorm && cfg.StoreBackend != backendPgx {
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
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
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store, closeStore, err := buildStore(ctx, cfg, gormDB, driver)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := gormstore.NewRegistry(gormDB)
	treasury := gormstore.NewTreasury(gormDB)
	roles := auth.NewRoleSet(cfg.Approvers, cfg.ServiceAccounts)
	settings := creditline.StaticSettings{Settings: cfg.Settings}
	switchboard := creditline.StaticSwitchboard{Paused: cfg.Paused, PoolEnabled: cfg.PoolEnabled}
	clock := func() int64 { return time.Now().UTC().Unix() }
	operationLogger := events.NewZapOperationLogger(logger)

	managerOptions := []creditline.ManagerOption{creditline.WithManagerOperationLogger(operationLogger)}
	engineOptions := []creditline.EngineOption{creditline.WithEngineOperationLogger(operationLogger)}
	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer publisher.Close()
		managerOptions = append(managerOptions, creditline.WithManagerNotifier(publisher))
		engineOptions = append(engineOptions, creditline.WithNotifier(publisher))
	}

	manager, err := creditline.NewManager(store, registry, roles, settings, clock, managerOptions...)
	if err != nil {
		return fmt.Errorf("manager init: %w", err)
	}
	holder, err := creditline.NewActor(cfg.PoolHolder)
	if err != nil {
		return fmt.Errorf("pool holder: %w", err)
	}
	engine, err := creditline.NewEngine(store, manager, registry, treasury, switchboard, roles, settings, holder, clock, engineOptions...)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}

	httpCfg := httpserver.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  cfg.AllowedOrigins,
		TokenSigningKey: cfg.SigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}
	if err := httpCfg.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	validator, err := auth.NewValidator([]byte(httpCfg.TokenSigningKey), httpCfg.TokenIssuer)
	if err != nil {
		return fmt.Errorf("token validator: %w", err)
	}
	router := httpserver.NewRouter(httpCfg, validator, httpserver.NewServer(logger, manager, engine, registry, roles))

	server := &http.Server{
		Addr:    httpCfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("listen_addr", httpCfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	}
}

func buildStore(ctx context.Context, cfg *runtimeConfig, gormDB *gorm.DB, driver string) (creditline.Store, func(), error) {
	if cfg.StoreBackend == backendPgx {
		if driver != "postgres" {
			return nil, nil, fmt.Errorf("pgx store backend requires a postgres database url")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		return pgstore.New(pool), pool.Close, nil
	}
	return gormstore.New(gormDB), func() {}, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
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
			path = "creditline.db"
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

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	err := db.AutoMigrate(
		&gormstore.CreditLine{},
		&gormstore.CreditBill{},
		&gormstore.ApprovedReceivable{},
		&gormstore.Receivable{},
		&gormstore.Transfer{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
