package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksurge/gosurge/pkg/config"
	"github.com/stocksurge/gosurge/pkg/logger"
	"github.com/stocksurge/gosurge/pkg/quotecache"
	"github.com/stocksurge/gosurge/pkg/session"
	"github.com/stocksurge/gosurge/pkg/shutdown"
	"github.com/stocksurge/gosurge/pkg/stream"
	"github.com/stocksurge/gosurge/pkg/tokenstore"
)

const (
	colorReset = "\033[0m"
	colorUp    = "\033[32m"
	colorDown  = "\033[31m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional YAML config file")
		symbolsArg = flag.String("symbols", os.Getenv("SURGE_SYMBOLS"), "comma-separated tickers to watch")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	logg := logger.WithComponent("surge-watch")

	symbols := splitSymbols(*symbolsArg)
	if len(symbols) == 0 && flag.NArg() > 0 {
		symbols = splitSymbols(strings.Join(flag.Args(), ","))
	}
	if len(symbols) == 0 {
		log.Fatalf("no symbols: pass -symbols or set SURGE_SYMBOLS")
	}

	shut := shutdown.NewManager()

	store, err := openTokenStore(cfg)
	if err != nil {
		log.Fatalf("open token store failed: %v", err)
	}
	shut.OnShutdown(func(context.Context) { _ = store.Close() })

	ctx := context.Background()
	client := session.New(cfg.APIBaseURL, store)

	user, err := ensureLogin(ctx, client)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	cache := quotecache.New()

	var snap *quotecache.SnapshotStore
	if cfg.SnapshotDB != "" {
		snap, err = quotecache.OpenSnapshotStore(cfg.SnapshotDB)
		if err != nil {
			log.Fatalf("open snapshot db failed: %v", err)
		}
		shut.OnShutdown(func(context.Context) {
			if err := snap.Save(cache); err != nil {
				logg.WithError(err).Warn("snapshot save failed")
			}
			_ = snap.Close()
		})
		if n, err := snap.Load(cache); err != nil {
			logg.WithError(err).Warn("snapshot load failed")
		} else if n > 0 {
			fmt.Printf("%sprimed %d quotes from snapshot%s\n", colorDim, n, colorReset)
		}
	}

	streamCfg := stream.DefaultConfig(cfg.WSBaseURL)
	streamCfg.ReconnectDelay = cfg.ReconnectDelay
	streamCfg.MaxAttempts = cfg.MaxReconnect

	feed := stream.NewFeed(streamCfg, cache)
	if err := feed.SetSymbols(symbols...); err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	shut.OnShutdown(func(context.Context) { feed.Close() })

	fmt.Printf("\n%swatching %s as %s%s\n\n", colorBold, strings.Join(symbols, ", "), user.Email, colorReset)

	printCtx, printCancel := context.WithCancel(context.Background())
	defer printCancel()
	go printLoop(printCtx, cache)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nshutting down...\n")
	printCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	shut.Shutdown(shutCtx)
}

func splitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if sym := strings.ToUpper(strings.TrimSpace(part)); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func openTokenStore(cfg *config.Config) (tokenstore.Store, error) {
	if cfg.TokenStore == config.TokenStoreDurable {
		return tokenstore.OpenDurable(cfg.TokenStorePath)
	}
	return tokenstore.NewMemory(), nil
}

// ensureLogin reuses stored credentials when they still work and falls back
// to a fresh password login from the environment.
func ensureLogin(ctx context.Context, client *session.Client) (*session.User, error) {
	if client.Authenticated() {
		user, err := client.CurrentUser(ctx)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, session.ErrSessionExpired) {
			return nil, err
		}
	}

	email := os.Getenv("SURGE_EMAIL")
	password := os.Getenv("SURGE_PASSWORD")
	if email == "" || password == "" {
		return nil, fmt.Errorf("no stored session: set SURGE_EMAIL and SURGE_PASSWORD")
	}
	return client.Login(ctx, email, password)
}

// printLoop writes a line whenever a cached quote's price moves.
func printLoop(ctx context.Context, cache *quotecache.Cache) {
	last := make(map[string]decimal.Decimal)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range cache.Snapshot() {
				prev, seen := last[q.Symbol]
				if seen && prev.Equal(q.LastPrice) {
					continue
				}
				last[q.Symbol] = q.LastPrice
				printQuote(q)
			}
		}
	}
}

func printQuote(q quotecache.Quote) {
	color := colorUp
	arrow := "▲"
	if q.Change.IsNegative() {
		color = colorDown
		arrow = "▼"
	}
	marker := ""
	if !q.Live {
		marker = colorDim + " (snapshot)" + colorReset
	}
	fmt.Printf("%s[%s]%s %s%-6s%s %s%s %s (%s%%)%s%s\n",
		colorDim, q.Timestamp.Format("15:04:05"), colorReset,
		colorBold, q.Symbol, colorReset,
		color, arrow,
		q.LastPrice.StringFixed(2),
		q.ChangePercent.StringFixed(2),
		colorReset, marker,
	)
}
