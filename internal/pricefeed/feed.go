package pricefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/infra"
)

// PricePusher receives every tick the feed decodes. The paper adapter
// satisfies this; pushed prices drive its resting-order matching.
type PricePusher interface {
	PushPrice(symbol string, price decimal.Decimal)
}

// tick is the wire format of one price update.
type tick struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// subscribeMsg is sent once per connection to select symbols.
type subscribeMsg struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// Feed maintains a WebSocket subscription to a market data endpoint and
// pushes decoded ticks into a PricePusher. It reconnects with
// exponential backoff and resubscribes after every reconnect.
type Feed struct {
	url     string
	symbols []string
	sink    PricePusher

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// NewFeed creates a feed for the given endpoint and symbols.
func NewFeed(url string, symbols []string, sink PricePusher) *Feed {
	return &Feed{
		url:          url,
		symbols:      symbols,
		sink:         sink,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Start launches the connection loop.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.runLoop(ctx)
}

// Stop terminates the feed and waits for the loop to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.close()
	f.wg.Wait()
}

func (f *Feed) runLoop(ctx context.Context) {
	defer f.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.connect(ctx); err != nil {
			delay := infra.CalculateBackoff(retry)
			slog.Warn("price feed connect failed",
				slog.String("url", f.url),
				slog.Int("retry", retry),
				slog.Any("error", err))
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		f.process()
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	sub, _ := json.Marshal(subscribeMsg{Op: "subscribe", Symbols: f.symbols})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		f.close()
		return err
	}

	if f.PingInterval > 0 {
		go f.pingLoop(ctx)
	}

	slog.Info("price feed connected",
		slog.String("url", f.url),
		slog.Int("symbols", len(f.symbols)))
	return nil
}

func (f *Feed) process() {
	for {
		f.mu.RLock()
		c := f.conn
		f.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(f.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("price feed read error", slog.Any("error", err))
			f.close()
			return
		}

		f.handleMessage(msg)
	}
}

func (f *Feed) handleMessage(msg []byte) {
	var t tick
	if err := json.Unmarshal(msg, &t); err != nil {
		slog.Debug("dropping undecodable feed message", slog.Any("error", err))
		return
	}
	if t.Symbol == "" || t.Price == "" {
		return
	}
	price, err := decimal.NewFromString(t.Price)
	if err != nil || !price.IsPositive() {
		slog.Debug("dropping malformed tick",
			slog.String("symbol", t.Symbol),
			slog.String("price", t.Price))
		return
	}
	f.sink.PushPrice(t.Symbol, price)
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.RLock()
			c := f.conn
			f.mu.RUnlock()
			if c == nil {
				return
			}
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				slog.Warn("price feed ping failed", slog.Any("error", err))
				f.close()
				return
			}
		}
	}
}

func (f *Feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
