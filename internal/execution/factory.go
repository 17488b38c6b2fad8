package execution

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/infra"
)

// Mode represents the trading execution mode.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeMock  Mode = "MOCK"
	ModeLive  Mode = "LIVE"
)

// NewAdapter returns the BrokerAdapter for the configured mode.
//
// LIVE mode exists as a guarded seam: concrete venue integrations plug in
// behind the BrokerAdapter contract and are registered by the binary that
// links them. Without one, LIVE fails fast rather than silently trading
// on the simulator.
func NewAdapter(cfg *infra.Config) (BrokerAdapter, error) {
	mode := Mode(cfg.Trading.Mode)
	slog.Info("initializing execution adapter", slog.String("mode", string(mode)))

	switch mode {
	case ModePaper, "":
		return NewPaperAdapter(paperConfigFrom(cfg)), nil

	case ModeMock:
		return NewMockAdapter(), nil

	case ModeLive:
		// SAFETY LATCH: real money requires both an explicit env
		// confirmation and a linked venue adapter.
		if os.Getenv("CONFIRM_REAL_MONEY") != "true" {
			return nil, fmt.Errorf("live trading requires CONFIRM_REAL_MONEY=true")
		}
		return nil, fmt.Errorf("no live venue adapter linked into this binary")

	default:
		return nil, fmt.Errorf("unknown execution mode: %s", mode)
	}
}

func paperConfigFrom(cfg *infra.Config) PaperConfig {
	pc := DefaultPaperConfig()
	if cfg.Paper.InitialBalance > 0 {
		pc.InitialBalance = decimal.NewFromFloat(cfg.Paper.InitialBalance)
	}
	if cfg.Paper.QuoteAsset != "" {
		pc.QuoteAsset = cfg.Paper.QuoteAsset
	}
	pc.LatencyMin = time.Duration(cfg.Paper.LatencyMinMs) * time.Millisecond
	pc.LatencyMax = time.Duration(cfg.Paper.LatencyMaxMs) * time.Millisecond
	pc.SlippageBps = cfg.Paper.SlippageBps
	pc.CommissionBps = cfg.Paper.CommissionBps
	pc.LimitFillProbability = cfg.Paper.LimitFillProbability
	pc.RateLimitPerSecond = cfg.Paper.RateLimitPerSecond
	pc.RateLimitBurst = cfg.Paper.RateLimitBurst
	return pc
}
