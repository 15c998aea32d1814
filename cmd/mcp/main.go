package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomdex/internal/archive"
	"roomdex/internal/mcp"
	"roomdex/internal/ops"
	"roomdex/internal/roomdb"
	"roomdex/internal/tuning"
)

func main() {
	var (
		listen  = flag.String("listen", "127.0.0.1:8090", "http listen address")
		dataDir = flag.String("data", "./data/rooms", "root directory of room directories")
		dbPath  = flag.String("db", "./data/roomdex.db", "sqlite history db path (empty to disable)")
		tunes   = flag.String("tuning", "", "tuning overrides yaml (optional)")
		auditD  = flag.String("audit", "", "audit log directory (empty to disable)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[roomdex] ", log.LstdFlags|log.Lmicroseconds)

	pol := tuning.Default()
	if *tunes != "" {
		p, err := tuning.Load(*tunes)
		if err != nil {
			logger.Fatalf("tuning: %v", err)
		}
		pol = p
	}

	svc := ops.New(pol)
	if *dbPath != "" {
		db, err := roomdb.Open(*dbPath)
		if err != nil {
			logger.Fatalf("db: %v", err)
		}
		defer db.Close()
		svc.DB = db
	}
	if *auditD != "" {
		al := archive.NewAuditLogger(*auditD)
		defer al.Close()
		svc.Audit = al
	}
	svc.Notify = func(e ops.Event) {
		logger.Printf("op=%s room=%s %s", e.Op, e.RoomID, e.Detail)
	}

	srv, err := mcp.NewServer(mcp.Config{DataDir: *dataDir, Service: svc})
	if err != nil {
		logger.Fatalf("mcp: %v", err)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on http://%s (data=%s)", *listen, *dataDir)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("listen: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
