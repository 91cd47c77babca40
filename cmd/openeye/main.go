// Command openeye starts the OpenEye scan orchestrator API server.
//
// Configuration is read from the environment:
//
//	OPENEYE_LISTEN_ADDR   HTTP listen address (default :8090)
//	OPENEYE_STORAGE_ROOT  directory for the job database (default ~/.openeye)
//	OPENEYE_ZAP_URL       base URL of the ZAP JSON API (default http://localhost:8080)
//	OPENEYE_ZAP_API_KEY   ZAP api key, if the instance requires one
//	OPENEYE_MAX_SCANS     maximum concurrently running scans (default 4)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sharonmee/OpenEye/internal/app"
	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/server"
	"github.com/Sharonmee/OpenEye/internal/zap"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	appCfg := app.DefaultConfig()
	if v := os.Getenv("OPENEYE_MAX_SCANS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			log.Fatalf("Invalid OPENEYE_MAX_SCANS: %s", v)
		}
		appCfg.MaxConcurrentScans = n
	}

	zapCfg := zap.DefaultConfig()
	zapCfg.BaseURL = envOr("OPENEYE_ZAP_URL", zapCfg.BaseURL)
	zapCfg.APIKey = os.Getenv("OPENEYE_ZAP_API_KEY")

	cfg := server.Config{
		ListenAddr:  envOr("OPENEYE_LISTEN_ADDR", ":8090"),
		StorageRoot: envOr("OPENEYE_STORAGE_ROOT", "~/.openeye"),
		AppConfig:   appCfg,
		ZAPConfig:   &zapCfg,
		Logger:      logging.NewStdoutLogger("OpenEye"),
	}

	s, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Server setup error: %v", err)
	}

	httpSrv := s.HTTPServer()
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Printf("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		s.Close()
	case err := <-errCh:
		s.Close()
		log.Fatalf("Server error: %v", err)
	}
}
