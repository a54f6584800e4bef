package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/stocksurge/gosurge/internal/devserver"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr = flag.String("listen", getenv("SURGE_DEV_LISTEN", ":8000"), "HTTP listen address")
		dbPath     = flag.String("db", getenv("SURGE_DEV_DB", "data/devserver.db"), "SQLite db file path")
		jwtSecret  = flag.String("jwt-secret", getenv("SURGE_DEV_JWT_SECRET", "dev-secret-change-me"), "JWT signing secret")
		tickEvery  = flag.Duration("tick-interval", 5*time.Second, "synthetic quote cadence")
	)
	flag.Parse()

	srv, err := devserver.New(devserver.Config{
		DBPath:       *dbPath,
		JWTSecret:    *jwtSecret,
		TickInterval: *tickEvery,
	})
	if err != nil {
		log.Fatalf("init devserver failed: %v", err)
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("devserver listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	fmt.Println("devserver stopped")
}
