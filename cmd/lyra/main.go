package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/lyra-go/params"
	"github.com/tradeforge/lyra-go/pkg/client"
	"github.com/tradeforge/lyra-go/pkg/status"
	"github.com/tradeforge/lyra-go/pkg/util"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: lyra <command> [flags]

commands:
  instruments   list instruments for a currency
  ticker        fetch a ticker over the session
  subaccounts   list the wallet's subaccounts
  positions     show open positions and greeks
  order         submit a limit order
  cancel-all    cancel all open orders on the subaccount
  transfer      move cash between two subaccounts
  watch         stream an order-book channel
  serve         run the local status server`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	debug := os.Getenv("LYRA_DEBUG") == "true"
	logger, err := util.NewLogger(debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := params.LoadFromEnv("")
	if err != nil {
		sugar.Fatalw("config", "err", err)
	}

	c, err := client.New(cfg, sugar)
	if err != nil {
		sugar.Fatalw("client", "err", err)
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "instruments":
		runInstruments(ctx, c, args, sugar)
	case "ticker":
		runTicker(ctx, c, args, sugar)
	case "subaccounts":
		runSubaccounts(ctx, c, sugar)
	case "positions":
		runPositions(ctx, c, cfg, args, sugar)
	case "order":
		runOrder(ctx, c, cfg, args, sugar)
	case "cancel-all":
		mustConnect(ctx, c, sugar)
		if err := c.CancelAll(ctx, cfg.SubaccountID); err != nil {
			sugar.Fatalw("cancel_all", "err", err)
		}
		fmt.Println("all orders cancelled")
	case "transfer":
		runTransfer(ctx, c, args, sugar)
	case "watch":
		runWatch(ctx, c, args, sugar)
	case "serve":
		mustConnect(ctx, c, sugar)
		if err := status.NewServer(c, sugar).Start(cfg.StatusAddr); err != nil {
			sugar.Fatalw("status_server", "err", err)
		}
	default:
		usage()
	}
}

func mustConnect(ctx context.Context, c *client.Client, sugar interface{ Fatalw(string, ...any) }) {
	if err := c.Connect(ctx); err != nil {
		sugar.Fatalw("connect", "err", err)
	}
}

func runInstruments(ctx context.Context, c *client.Client, args []string, sugar interface{ Fatalw(string, ...any) }) {
	fs := flag.NewFlagSet("instruments", flag.ExitOnError)
	currency := fs.String("currency", "ETH", "underlying currency")
	kind := fs.String("type", "perp", "instrument type: perp|option|erc20")
	expired := fs.Bool("expired", false, "include expired instruments")
	fs.Parse(args)

	instruments, err := c.FetchInstruments(ctx, *currency, *kind, *expired)
	if err != nil {
		sugar.Fatalw("fetch_instruments", "err", err)
	}
	for _, inst := range instruments {
		fmt.Printf("%-24s active=%-5v tick=%s min=%s\n",
			inst.InstrumentName, inst.IsActive, inst.TickSize, inst.MinimumAmount)
	}
}

func runTicker(ctx context.Context, c *client.Client, args []string, sugar interface{ Fatalw(string, ...any) }) {
	fs := flag.NewFlagSet("ticker", flag.ExitOnError)
	instrument := fs.String("instrument", "ETH-PERP", "instrument name")
	fs.Parse(args)

	mustConnect(ctx, c, sugar)
	ticker, err := c.FetchTicker(ctx, *instrument)
	if err != nil {
		sugar.Fatalw("fetch_ticker", "err", err)
	}
	fmt.Printf("%s bid=%s ask=%s mid=%s mark=%s\n",
		ticker.InstrumentName, ticker.BestBidPrice, ticker.BestAskPrice, ticker.Mid(), ticker.MarkPrice)
}

func runSubaccounts(ctx context.Context, c *client.Client, sugar interface{ Fatalw(string, ...any) }) {
	subaccounts, err := c.FetchSubaccounts(ctx)
	if err != nil {
		sugar.Fatalw("fetch_subaccounts", "err", err)
	}
	for _, sa := range subaccounts {
		fmt.Printf("%-10d %-4s %-6s %s\n", sa.SubaccountID, sa.MarginType, sa.Currency, sa.Label)
	}
}

func runPositions(ctx context.Context, c *client.Client, cfg params.Config, args []string, sugar interface{ Fatalw(string, ...any) }) {
	fs := flag.NewFlagSet("positions", flag.ExitOnError)
	currency := fs.String("currency", "", "filter by underlying currency")
	fs.Parse(args)

	positions, err := c.FetchPositions(ctx, cfg.SubaccountID)
	if err != nil {
		sugar.Fatalw("fetch_positions", "err", err)
	}
	portfolio := client.NewPortfolio(positions)
	for _, p := range portfolio.OpenPositions(*currency) {
		fmt.Printf("%-24s amount=%-10s mark=%-10s delta=%-8s pnl=%s\n",
			p.InstrumentName, p.Amount, p.MarkPrice, p.Delta, p.UnrealizedPnl)
	}
	greeks := portfolio.TotalGreeks(*currency)
	fmt.Printf("totals: delta=%s gamma=%s vega=%s theta=%s notional=%s\n",
		greeks.Delta, greeks.Gamma, greeks.Vega, greeks.Theta, portfolio.NetNotional(*currency))
}

func runOrder(ctx context.Context, c *client.Client, cfg params.Config, args []string, sugar interface{ Fatalw(string, ...any) }) {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	instrument := fs.String("instrument", "ETH-PERP", "instrument name")
	side := fs.String("side", "buy", "buy|sell")
	price := fs.String("price", "", "limit price")
	amount := fs.String("amount", "", "order size")
	maxFee := fs.String("max-fee", "1000", "max fee")
	fs.Parse(args)

	limitPrice, err := decimal.NewFromString(*price)
	if err != nil {
		sugar.Fatalw("bad_price", "price", *price, "err", err)
	}
	size, err := decimal.NewFromString(*amount)
	if err != nil {
		sugar.Fatalw("bad_amount", "amount", *amount, "err", err)
	}
	fee, err := decimal.NewFromString(*maxFee)
	if err != nil {
		sugar.Fatalw("bad_max_fee", "max_fee", *maxFee, "err", err)
	}

	mustConnect(ctx, c, sugar)
	result, err := c.CreateOrder(ctx, client.TradeIntent{
		InstrumentName: *instrument,
		SubaccountID:   cfg.SubaccountID,
		Direction:      client.Side(*side),
		LimitPrice:     limitPrice,
		Amount:         size,
		MaxFee:         fee,
		OrderType:      client.Limit,
		TimeInForce:    client.GTC,
	})
	if err != nil {
		sugar.Fatalw("order", "err", err)
	}
	fmt.Printf("order %s: %s %s %s @ %s (%s)\n",
		result.Order.OrderID, result.Order.Direction, result.Order.Amount,
		result.Order.InstrumentName, result.Order.LimitPrice, result.Order.Status)
}

func runTransfer(ctx context.Context, c *client.Client, args []string, sugar interface{ Fatalw(string, ...any) }) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	amount := fs.String("amount", "", "cash amount to move")
	from := fs.Int64("from", 0, "source subaccount id")
	to := fs.Int64("to", 0, "destination subaccount id")
	fs.Parse(args)

	value, err := decimal.NewFromString(*amount)
	if err != nil {
		sugar.Fatalw("bad_amount", "amount", *amount, "err", err)
	}

	mustConnect(ctx, c, sugar)
	if err := c.Transfer(ctx, value, *from, *to); err != nil {
		sugar.Fatalw("transfer", "err", err)
	}
	fmt.Printf("transferred %s from %d to %d\n", value, *from, *to)
}

func runWatch(ctx context.Context, c *client.Client, args []string, sugar interface{ Fatalw(string, ...any) }) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	instrument := fs.String("instrument", "ETH-PERP", "instrument name")
	group := fs.String("group", "1", "price grouping")
	depth := fs.String("depth", "100", "book depth")
	fs.Parse(args)

	mustConnect(ctx, c, sugar)
	book, err := c.WatchOrderBook(ctx, *instrument, *group, *depth, 30*time.Second)
	if err != nil {
		sugar.Fatalw("watch", "err", err)
	}

	for {
		fmt.Printf("[%s] publish=%d", book.Channel, book.PublishID)
		if len(book.Bids) > 0 {
			fmt.Printf(" bid=%s x %s", book.Bids[0].Price, book.Bids[0].Size)
		}
		if len(book.Asks) > 0 {
			fmt.Printf(" ask=%s x %s", book.Asks[0].Price, book.Asks[0].Size)
		}
		fmt.Println()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		if next, ok := c.OrderBook(*instrument, *group, *depth); ok {
			book = next
		}
	}
}
