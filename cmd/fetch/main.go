package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tomastoth/crypto-common/internal/app"
	"github.com/tomastoth/crypto-common/internal/config"
	"github.com/tomastoth/crypto-common/internal/logging"
	"github.com/tomastoth/crypto-common/internal/provider"
)

type quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func main() {
	var symbolsCSV string
	var timeout int
	var configPath string

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "btc,eth"), "comma-separated ticker symbols")
	flag.IntVar(&timeout, "timeout", 30, "overall timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.New("info", "console").Fatal("config", zap.Error(err))
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	symbols := provider.SplitSymbols(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols provided")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	stack := app.Build(cfg, log, nil)
	if err := stack.Prices.Initialize(ctx); err != nil {
		log.Fatal("initializing symbol index", zap.Error(err))
	}
	log.Info("symbol index loaded", zap.Int("symbols", stack.Remote.Len()))

	prices, err := stack.Prices.GetPricesBySymbols(ctx, symbols)
	if err != nil {
		log.Fatal("fetching prices", zap.Strings("symbols", symbols), zap.Error(err))
	}

	out := make([]quote, 0, len(prices))
	seen := make(map[string]struct{}, len(prices))
	for _, s := range symbols {
		key := provider.NormalizeSymbol(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, quote{Symbol: key, Price: prices[key]})
	}
	b, _ := json.MarshalIndent(struct {
		Quotes []quote `json:"quotes"`
	}{Quotes: out}, "", "  ")
	fmt.Println(string(b))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
