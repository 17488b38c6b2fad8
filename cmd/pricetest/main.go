package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/pricefeed"
)

// stdoutSink prints every decoded tick; used to eyeball a feed endpoint
// before pointing the trading binary at it.
type stdoutSink struct{}

func (stdoutSink) PushPrice(symbol string, price decimal.Decimal) {
	fmt.Printf("📊 %-12s %s\n", symbol, price.StringFixed(2))
}

func main() {
	url := flag.String("url", "", "websocket feed URL")
	symbols := flag.String("symbols", "BTC-USD", "comma-separated symbols")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: pricetest -url ws://host/feed [-symbols BTC-USD,ETH-USD]")
		os.Exit(1)
	}

	fmt.Println("=== Price Feed Diagnostic ===")
	fmt.Printf("endpoint: %s\n\n", *url)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := pricefeed.NewFeed(*url, strings.Split(*symbols, ","), stdoutSink{})
	feed.Start(ctx)
	defer feed.Stop()

	<-ctx.Done()
	fmt.Println("\n✅ done")
}
