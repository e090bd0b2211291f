package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/telemetry"
	"github.com/Victor-armando18/offer-engine/pkg/engine"
	"github.com/shopspring/decimal"
)

func main() {
	catalogPath := flag.String("catalog", "data/catalog.yaml", "offer catalog (YAML or JSON)")
	cartPath := flag.String("cart", "data/cart.json", "cart JSON in the storefront shape")
	userID := flag.String("user", "", "signed-in user id")
	segments := flag.String("segments", "", "comma-separated user segments")
	orders := flag.Int("lifetime-orders", 0, "user's previous order count")
	session := flag.String("session", "cli-session", "session id for anonymous visitors")
	channel := flag.String("channel", "web", "evaluation channel")
	maxOffers := flag.Int("max-offers", -1, "cap on combined offers (-1 = unbounded)")
	maxTotal := flag.String("max-total", "", "cap on the combined discount")
	maxPct := flag.String("max-percent", "", "cap on the discount as a percent of subtotal")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("   OFFER ENGINE CLI - DIAGNOSTIC TOOL")
	fmt.Println(strings.Repeat("=", 60))

	cart, err := readCart(*cartPath)
	if err != nil {
		fatal(err)
	}
	opts, err := parseOptions(*maxOffers, *maxTotal, *maxPct)
	if err != nil {
		fatal(err)
	}

	ectx := engine.EvaluationContext{
		Now:            time.Now().UTC(),
		Channel:        *channel,
		SessionID:      *session,
		CurrencySymbol: domain.DefaultCurrencySymbol,
	}
	var user *engine.User
	if *userID != "" {
		user = &engine.User{ID: *userID, LifetimeOrders: *orders}
		if *segments != "" {
			user.Segments = strings.Split(*segments, ",")
		}
	}

	sink := telemetry.NewMemorySink()
	eng := engine.NewFileEngine(*catalogPath, sink, logger)
	res, err := eng.EvaluateOffersForCart(context.Background(), cart, user, ectx, opts)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Close(ctx); err != nil {
		logger.Warn("telemetry flush incomplete", "error", err)
	}

	displaySummary(res, len(sink.Exposures()))
}

func readCart(path string) (engine.Cart, error) {
	var cart engine.Cart
	data, err := os.ReadFile(path)
	if err != nil {
		return cart, fmt.Errorf("cart file not found [%s]: %w", path, err)
	}
	if err := json.Unmarshal(data, &cart); err != nil {
		return cart, fmt.Errorf("invalid cart JSON: %w", err)
	}
	return cart, nil
}

func parseOptions(maxOffers int, maxTotal, maxPct string) (engine.Options, error) {
	var opts engine.Options
	if maxOffers >= 0 {
		opts.MaxOffers = &maxOffers
	}
	if maxTotal != "" {
		d, err := decimal.NewFromString(maxTotal)
		if err != nil {
			return opts, fmt.Errorf("-max-total: %w", err)
		}
		opts.MaxTotalDiscount = &d
	}
	if maxPct != "" {
		d, err := decimal.NewFromString(maxPct)
		if err != nil {
			return opts, fmt.Errorf("-max-percent: %w", err)
		}
		opts.MaxDiscountPercent = &d
	}
	return opts, nil
}

func displaySummary(res engine.EvaluationResult, exposures int) {
	sym := domain.DefaultCurrencySymbol

	fmt.Println("\n[1. APPLIED OFFERS]")
	if len(res.Plans) == 0 {
		fmt.Println("   No offer applies to this cart.")
	}
	for _, p := range res.Plans {
		fmt.Printf("   %-24s %-16s -%s\n", p.OfferName, p.OfferType, domain.FormatMoney(sym, p.Discount))
		for _, l := range p.Lines {
			fmt.Printf("      line %d %-14s x%-3d -%s\n", l.LineIndex, l.ProductID, l.Units, domain.FormatMoney(sym, l.Discount))
		}
	}

	fmt.Println("\n[2. POTENTIAL OFFERS]")
	for _, p := range res.PotentialOffers {
		fmt.Printf("   %s: %s\n", p.OfferName, strings.Join(p.MissingConditions, "; "))
	}

	fmt.Println("\n[3. REJECTION LOG]")
	for _, line := range res.RejectionLog {
		fmt.Printf("   %s\n", line)
	}

	fmt.Println("\n[4. EXPERIMENTS]")
	for _, a := range res.Assignments {
		fmt.Printf("   %s -> %s\n", a.ExperimentID, a.VariantID)
	}
	fmt.Printf("   exposures recorded: %d\n", exposures)

	fmt.Println("\n[5. TOTALS]")
	fmt.Printf("   Subtotal: %s\n", domain.FormatMoney(sym, res.Summary.Subtotal))
	fmt.Printf("   Discount: %s\n", domain.FormatMoney(sym, res.Summary.TotalDiscount))
	fmt.Printf("   Payable:  %s\n", domain.FormatMoney(sym, res.Summary.Payable))
	fmt.Println(strings.Repeat("=", 60))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "\nERROR: %v\n", err)
	os.Exit(1)
}
