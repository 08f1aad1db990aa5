package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/hamzaKhattat/fs-xml-router/internal/cnam"
    "github.com/hamzaKhattat/fs-xml-router/internal/config"
    "github.com/hamzaKhattat/fs-xml-router/internal/db"
    "github.com/hamzaKhattat/fs-xml-router/internal/dialplan"
    "github.com/hamzaKhattat/fs-xml-router/internal/directory"
    "github.com/hamzaKhattat/fs-xml-router/internal/health"
    "github.com/hamzaKhattat/fs-xml-router/internal/httpserver"
    "github.com/hamzaKhattat/fs-xml-router/internal/sofia"
    "github.com/hamzaKhattat/fs-xml-router/internal/store"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

var (
    initDB  bool
    dropDB  bool
    serve   bool
    verbose bool
)

func main() {
    flag.BoolVar(&serve, "serve", false, "Run the lookup service")
    flag.BoolVar(&initDB, "init-db", false, "Initialize database schema")
    flag.BoolVar(&dropDB, "drop", false, "Drop existing tables before init")
    flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
    flag.Parse()

    if flag.NFlag() > 0 {
        runServerMode()
        return
    }

    runCLI()
}

func runServerMode() {
    cfg, err := config.Load()
    if err != nil {
        fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
        os.Exit(1)
    }

    level := cfg.Log.Level
    if verbose {
        level = "debug"
    }
    if err := logger.Init(logger.Config{
        Level:  level,
        Format: "json",
        File: logger.FileConfig{
            Enabled:    cfg.Log.File != "",
            Path:       cfg.Log.File,
            MaxSize:    100,
            MaxBackups: 5,
            MaxAge:     30,
            Compress:   true,
        },
    }); err != nil {
        fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
        os.Exit(1)
    }

    if err := initializeStack(cfg); err != nil {
        logger.WithError(err).Fatal("Failed to initialize services")
    }

    database := db.GetDB()

    if initDB {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
        defer cancel()
        if err := db.InitializeDatabase(ctx, database.DB, dropDB); err != nil {
            logger.WithError(err).Fatal("Database initialization failed")
        }
        logger.Info("Database initialized")
        if !serve {
            return
        }
    }

    st := store.New(database, db.GetCache(), cfg.Store.QueryTimeout)
    cnamClient := cnam.New(cfg.CNAM.SpaceHost, cfg.CNAM.ProjectID, cfg.CNAM.APIToken)
    if !cnamClient.Enabled() {
        logger.Warn("CNAM credentials missing, enrichment disabled")
    }

    checker := health.NewChecker()
    checker.Register("database", func(ctx context.Context) error {
        return database.PingContext(ctx)
    })
    checker.Register("cache", db.GetCache().Ping)

    srv := httpserver.New(
        cfg.Server.Port,
        cfg.Server.RequestTimeout,
        st,
        dialplan.New(st, cnamClient),
        directory.New(st),
        sofia.New(st),
        checker,
    )

    go func() {
        if err := srv.Start(); err != nil {
            logger.WithError(err).Error("HTTP server stopped")
        }
    }()

    sig := make(chan os.Signal, 1)
    signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
    <-sig

    logger.Info("Shutting down")
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        logger.WithError(err).Error("Graceful shutdown failed")
    }
}

// initializeStack connects the database and cache singletons.
func initializeStack(cfg *config.Config) error {
    if err := db.Initialize(db.Config{
        DSN:             cfg.Store.URI,
        Driver:          "mysql",
        MaxOpenConns:    cfg.Store.MaxOpenConns,
        MaxIdleConns:    cfg.Store.MaxIdleConns,
        ConnMaxLifetime: 5 * time.Minute,
        RetryAttempts:   5,
        RetryDelay:      2 * time.Second,
    }); err != nil {
        return err
    }

    if err := db.InitializeCache(db.CacheConfig{
        Host:     cfg.Redis.Host,
        Port:     cfg.Redis.Port,
        Password: cfg.Redis.Password,
        DB:       cfg.Redis.DB,
        PoolSize: 10,
    }, "fsrouter"); err != nil {
        // cache is best-effort; lookups fall back to the database
        logger.WithError(err).Warn("Redis unavailable, running without cache")
    }

    return nil
}
