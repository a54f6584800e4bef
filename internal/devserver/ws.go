package devserver

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxTickers = 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// parseTickers splits the comma-joined path segment, trimming and
// upper-casing each symbol.
func parseTickers(raw string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tickers provided")
	}
	if len(out) > maxTickers {
		return nil, fmt.Errorf("too many tickers, maximum is %d", maxTickers)
	}
	return out, nil
}

// handleLiveQuotes streams synthetic random-walk quotes for the requested
// tickers until the client goes away.
func (s *Server) handleLiveQuotes(c *gin.Context) {
	symbols, err := parseTickers(c.Param("tickers"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(gin.H{"status": "connected", "tickers": symbols}); err != nil {
		return
	}

	// Reader goroutine only to detect disconnects; clients never send data.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prices := make(map[string]float64, len(symbols))
	opens := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		p := 20 + rng.Float64()*480
		prices[sym] = p
		opens[sym] = p
	}

	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			for _, sym := range symbols {
				prices[sym] *= 1 + (rng.Float64()-0.5)*0.01
				change := prices[sym] - opens[sym]
				tick := gin.H{
					"id":            sym,
					"price":         round2(prices[sym]),
					"change":        round2(change),
					"changePercent": round2(change / opens[sym] * 100),
					"currency":      "USD",
					"exchange":      "NASDAQ",
					"market_cap":    int64(prices[sym] * 1e7),
					"volume":        int64(1e5 + rng.Intn(9e5)),
					"timestamp":     time.Now().UTC().Format("2006-01-02T15:04:05.999999"),
				}
				if err := conn.WriteJSON(tick); err != nil {
					return
				}
			}
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
