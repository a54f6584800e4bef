package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stocksurge/gosurge/pkg/config"
	"github.com/stocksurge/gosurge/pkg/logger"
	"github.com/stocksurge/gosurge/pkg/quotecache"
	"github.com/stocksurge/gosurge/pkg/session"
	"github.com/stocksurge/gosurge/pkg/stream"
	"github.com/stocksurge/gosurge/pkg/tokenstore"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	symbolStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	cache   *quotecache.Cache
	feed    *stream.Feed
	symbols []string
	user    string

	quotes    []quotecache.Quote
	connected bool
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.feed.Close()
			return m, tea.Quit
		}

	case tickMsg:
		m.quotes = m.cache.Snapshot()
		sort.Slice(m.quotes, func(i, j int) bool {
			return m.quotes[i].Symbol < m.quotes[j].Symbol
		})
		m.connected = m.feed.IsConnected()
		return m, tickCmd()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	status := dimStyle.Render("● reconnecting")
	if m.connected {
		status = upStyle.Render("● live")
	}
	b.WriteString(headerStyle.Render("Stock Surge"))
	b.WriteString("  " + status + "  " + dimStyle.Render(m.user) + "\n\n")

	var rows []string
	rows = append(rows, fmt.Sprintf("%-8s %12s %10s %9s %12s  %s",
		"SYMBOL", "PRICE", "CHANGE", "CHG%", "VOLUME", "AS OF"))

	shown := map[string]bool{}
	for _, q := range m.quotes {
		shown[q.Symbol] = true
		style := upStyle
		if q.Change.IsNegative() {
			style = downStyle
		}
		asOf := q.Timestamp.Format("15:04:05")
		if !q.Live {
			asOf += " snapshot"
		}
		rows = append(rows, fmt.Sprintf("%s %s %s %s %12d  %s",
			symbolStyle.Render(fmt.Sprintf("%-8s", q.Symbol)),
			fmt.Sprintf("%12s", q.LastPrice.StringFixed(2)),
			style.Render(fmt.Sprintf("%10s", q.Change.StringFixed(2))),
			style.Render(fmt.Sprintf("%8s%%", q.ChangePercent.StringFixed(2))),
			q.Volume,
			dimStyle.Render(asOf),
		))
	}
	for _, sym := range m.symbols {
		if !shown[sym] {
			rows = append(rows, fmt.Sprintf("%s %s",
				symbolStyle.Render(fmt.Sprintf("%-8s", sym)),
				dimStyle.Render("waiting for data")))
		}
	}

	b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n\n" + dimStyle.Render("q to quit") + "\n")
	return b.String()
}

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
	// A TUI owns the terminal; logs go to file only.
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/surge-watch-tui.log"
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: logFile, FileOnly: true}); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}

	symbols := splitSymbols(*symbolsArg)
	if len(symbols) == 0 && flag.NArg() > 0 {
		symbols = splitSymbols(strings.Join(flag.Args(), ","))
	}
	if len(symbols) == 0 {
		log.Fatalf("no symbols: pass -symbols or set SURGE_SYMBOLS")
	}

	var store tokenstore.Store
	if cfg.TokenStore == config.TokenStoreDurable {
		store, err = tokenstore.OpenDurable(cfg.TokenStorePath)
		if err != nil {
			log.Fatalf("open token store failed: %v", err)
		}
	} else {
		store = tokenstore.NewMemory()
	}
	defer store.Close()

	ctx := context.Background()
	client := session.New(cfg.APIBaseURL, store)
	user, err := ensureLogin(ctx, client)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	cache := quotecache.New()
	streamCfg := stream.DefaultConfig(cfg.WSBaseURL)
	streamCfg.ReconnectDelay = cfg.ReconnectDelay
	streamCfg.MaxAttempts = cfg.MaxReconnect

	feed := stream.NewFeed(streamCfg, cache)
	if err := feed.SetSymbols(symbols...); err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}

	m := model{cache: cache, feed: feed, symbols: symbols, user: user.Email}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		feed.Close()
		log.Fatalf("tui failed: %v", err)
	}
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
