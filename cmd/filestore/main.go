package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"flat-file-store/internal/db"
	"flat-file-store/internal/server"
)

func main() {
	if err := server.ValidateEnvironment(); err != nil {
		log.Printf("service=filestore msg=%q err=%v", "invalid_configuration", err)
		os.Exit(1)
	}
	server.WarnOnOptionalMissingConfig()

	cfg, err := configFromEnv()
	if err != nil {
		log.Printf("service=filestore msg=%q err=%v", "invalid_configuration", err)
		os.Exit(1)
	}

	// Audit trail
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		dbConn, err := db.Open(dsn)
		if err != nil {
			log.Printf("service=filestore msg=%q err=%v", "db_connect_failed", err)
			os.Exit(1)
		}
		defer func() { _ = dbConn.Close() }()

		log.Printf("service=filestore msg=%q", "running_migrations")
		if err := db.RunMigrations(dbConn); err != nil {
			log.Printf("service=filestore msg=%q err=%v", "migration_failed", err)
			os.Exit(1)
		}
		cfg.DB = dbConn
	}

	// Object-store mirror
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mc, bucket, err := server.NewObjectStoreFromEnv(ctx)
	cancel()
	if err != nil {
		log.Printf("service=filestore msg=%q err=%v", "object_store_failed", err)
		os.Exit(1)
	}
	cfg.ObjectStore, cfg.Bucket = mc, bucket

	srv, err := server.New(cfg)
	if err != nil {
		log.Printf("service=filestore msg=%q err=%v", "init_failed", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=filestore msg=%q addr=%s root=%s max_upload_bytes=%d version=%s commit=%s",
			"starting", cfg.Addr, cfg.Root, cfg.MaxUploadBytes, cfg.Build.Version, cfg.Build.Commit)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=filestore msg=%q signal=%s", "shutting_down", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=filestore msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=filestore msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=filestore msg=%q err=%v", "server_error", err)
			srv.Close()
			os.Exit(1)
		}
	}
}

// configFromEnv builds the immutable server configuration. Values were
// already checked by server.ValidateEnvironment.
func configFromEnv() (server.Config, error) {
	maxUpload, err := strconv.ParseInt(getenvDefault("FFS_MAX_UPLOAD_BYTES", strconv.FormatInt(server.DefaultMaxUploadBytes, 10)), 10, 64)
	if err != nil {
		return server.Config{}, err
	}
	rate, err := strconv.Atoi(getenvDefault("FFS_RATE_LIMIT", "0"))
	if err != nil {
		return server.Config{}, err
	}

	return server.Config{
		Addr:           ":" + getenvDefault("FFS_PORT", "8080"),
		OpsAddr:        os.Getenv("FFS_OPS_ADDR"),
		Root:           getenvDefault("FFS_ROOT", "public"),
		UploadDir:      getenvDefault("FFS_UPLOAD_DIR", "files"),
		IndexFile:      getenvDefault("FFS_INDEX", "index.html"),
		MaxUploadBytes: maxUpload,
		RateLimit:      rate,
		TrustProxy:     os.Getenv("FFS_TRUST_PROXY") == "true",
		Build: server.BuildInfo{
			Version: getenvDefault("FFS_VERSION", "dev"),
			Commit:  getenvDefault("FFS_COMMIT", "unknown"),
		},
	}, nil
}

// getenvDefault reads an environment variable and returns a default value if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
