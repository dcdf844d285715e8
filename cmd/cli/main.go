package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/alertledger/internal/app"
	"github.com/dvloznov/alertledger/internal/config"
	"github.com/dvloznov/alertledger/internal/domain"
	"github.com/dvloznov/alertledger/internal/extract"
	"github.com/dvloznov/alertledger/internal/logger"
	"github.com/dvloznov/alertledger/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "parse":
		runParse()
	case "batch":
		runBatch()
	case "mandate":
		runMandate()
	case "subscriptions":
		runSubscriptions()
	case "hide":
		runSetState(true)
	case "unhide":
		runSetState(false)
	case "recategorize":
		runRecategorize()
	case "advise":
		runAdvise()
	case "exported":
		runExported()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Alert Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse          Extract a transaction from one message")
	fmt.Println("  batch          Extract transactions from a JSONL feed")
	fmt.Println("  mandate        Record a subscription from a mandate notice or explicit fields")
	fmt.Println("  subscriptions  List subscriptions")
	fmt.Println("  hide           Hide a subscription")
	fmt.Println("  unhide         Unhide a subscription")
	fmt.Println("  recategorize   Apply a category to every transaction of a merchant")
	fmt.Println("  advise         Ask the model a free-form question")
	fmt.Println("  exported       List transactions exported to BigQuery in a date range")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nEvery command accepts -config. State persists across runs only with store.backend=sqlite.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// setup loads configuration and builds the application for one command.
func setup(fs *flag.FlagSet) (context.Context, zerolog.Logger, *app.App) {
	configPath := fs.Lookup("config").Value.String()

	bootLog := logger.New()
	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: os.Stderr})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}

	ctx := logger.WithContext(context.Background(), log)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	return ctx, log, a
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("config", os.Getenv("ALERTLEDGER_CONFIG"), "Path to a YAML config file")
	return fs
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runParse() {
	fs := newFlagSet("parse")
	sender := fs.String("sender", "", "Sender id, e.g. HDFCBK")
	body := fs.String("body", "", "Message body")
	at := fs.String("at", "", "Receive time, RFC3339 (defaults to now)")
	fs.Parse(os.Args[2:])

	if *sender == "" || *body == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli parse -sender ID -body TEXT [-at RFC3339]")
		os.Exit(1)
	}

	ctx, log, a := setup(fs)
	defer a.Close()

	received := time.Now()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -at")
		}
		received = t
	}

	state, err := a.Processor.Process(ctx, domain.IncomingMessage{Sender: *sender, Body: *body, ReceivedAt: received})
	if err != nil {
		log.Fatal().Err(err).Msg("Processing failed")
	}
	printJSON(state)
}

func runBatch() {
	fs := newFlagSet("batch")
	input := fs.String("input", "", "JSONL file of {sender, body, received_at} objects")
	fs.Parse(os.Args[2:])

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli batch -input FILE")
		os.Exit(1)
	}

	ctx, log, a := setup(fs)
	defer a.Close()

	f, err := os.Open(*input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open input")
	}
	defer f.Close()

	var msgs []domain.IncomingMessage
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var msg domain.IncomingMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Warn().Err(err).Int("line", line).Msg("Skipping malformed line")
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to read input")
	}

	states, err := a.Processor.ProcessBatch(ctx, msgs)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch failed")
	}

	var recorded, duplicates, rejected int
	for _, s := range states {
		switch {
		case s.Inserted:
			recorded++
		case s.Transaction != nil:
			duplicates++
		default:
			rejected++
		}
	}
	fmt.Printf("Processed %d messages: %d recorded, %d duplicates, %d not recorded.\n",
		len(msgs), recorded, duplicates, rejected)
}

func runMandate() {
	fs := newFlagSet("mandate")
	body := fs.String("body", "", "Mandate notice text")
	merchant := fs.String("merchant", "", "Merchant name (when -body is not given)")
	amount := fs.String("amount", "", "Amount (when -body is not given)")
	date := fs.String("date", "", "Next deduction date, dd/MM/yy")
	umn := fs.String("umn", "", "Mandate reference (UMN)")
	fs.Parse(os.Args[2:])

	var info domain.MandateInfo
	if *body != "" {
		parsed, ok := extract.ParseMandate(*body)
		if !ok {
			fmt.Fprintln(os.Stderr, "Not a mandate notice.")
			os.Exit(1)
		}
		info = *parsed
	} else {
		amt, err := decimal.NewFromString(*amount)
		if *merchant == "" || err != nil {
			fmt.Fprintln(os.Stderr, "Usage: cli mandate -body TEXT | -merchant NAME -amount N [-date dd/MM/yy] [-umn ID]")
			os.Exit(1)
		}
		info = domain.MandateInfo{Merchant: *merchant, Amount: amt, NextDeductionDate: *date, UMN: *umn}
	}

	ctx, log, a := setup(fs)
	defer a.Close()

	d, err := a.Subscriptions.CreateFromMandate(ctx, info)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to record mandate")
	}
	printJSON(d)
}

func runSubscriptions() {
	fs := newFlagSet("subscriptions")
	state := fs.String("state", "", "Filter by state: ACTIVE or HIDDEN")
	merchant := fs.String("merchant", "", "Filter by merchant")
	fs.Parse(os.Args[2:])

	ctx, log, a := setup(fs)
	defer a.Close()

	records, err := a.Subscriptions.List(ctx, store.SubscriptionFilter{
		State:    domain.SubscriptionState(strings.ToUpper(*state)),
		Merchant: *merchant,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list subscriptions")
	}

	if len(records) == 0 {
		fmt.Println("No subscriptions.")
		return
	}
	fmt.Printf("%-36s  %-20s  %10s  %-10s  %-6s  %s\n", "ID", "MERCHANT", "AMOUNT", "NEXT", "STATE", "CATEGORY")
	for _, r := range records {
		fmt.Printf("%-36s  %-20s  %10s  %-10s  %-6s  %s\n",
			r.ID, r.MerchantName, r.Amount.StringFixed(2), r.NextPaymentDate, r.State, r.Category)
	}
}

func runSetState(hide bool) {
	name := "unhide"
	if hide {
		name = "hide"
	}
	fs := newFlagSet(name)
	id := fs.String("id", "", "Subscription ID")
	fs.Parse(os.Args[2:])

	if *id == "" {
		fmt.Fprintf(os.Stderr, "Usage: cli %s -id ID\n", name)
		os.Exit(1)
	}

	ctx, log, a := setup(fs)
	defer a.Close()

	fn := a.Subscriptions.Unhide
	if hide {
		fn = a.Subscriptions.Hide
	}
	rec, err := fn(ctx, *id)
	if err != nil {
		log.Fatal().Err(err).Str("subscription_id", *id).Msg("Failed to update subscription")
	}
	fmt.Printf("%s (%s) is now %s.\n", rec.MerchantName, rec.ID, rec.State)
}

func runRecategorize() {
	fs := newFlagSet("recategorize")
	merchant := fs.String("merchant", "", "Merchant name (case-insensitive)")
	category := fs.String("category", "", "New category, e.g. GROCERIES")
	fs.Parse(os.Args[2:])

	c, ok := domain.ParseCategory(*category)
	if *merchant == "" || !ok {
		fmt.Fprintln(os.Stderr, "Usage: cli recategorize -merchant NAME -category CATEGORY")
		os.Exit(1)
	}

	ctx, log, a := setup(fs)
	defer a.Close()

	n, err := a.Processor.UpdateCategoryForMerchant(ctx, *merchant, c)
	if err != nil {
		log.Fatal().Err(err).Msg("Re-categorisation failed")
	}
	fmt.Printf("Updated %d transactions of %s to %s.\n", n, *merchant, c)
}

func runAdvise() {
	fs := newFlagSet("advise")
	prompt := fs.String("prompt", "", "Question for the model")
	fs.Parse(os.Args[2:])

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli advise -prompt TEXT")
		os.Exit(1)
	}

	ctx, log, a := setup(fs)
	defer a.Close()

	if a.Model == nil {
		log.Fatal().Msg("Model is disabled; set model.enabled and model.artifact_path")
	}
	resp, err := a.Model.GenerateFreeformResponse(ctx, *prompt)
	if err != nil {
		log.Fatal().Err(err).Msg("Advice failed")
	}
	fmt.Println(resp)
}

func runExported() {
	fs := newFlagSet("exported")
	start := fs.String("start", "", "Start date, YYYY-MM-DD (defaults to 30 days ago)")
	end := fs.String("end", "", "End date, YYYY-MM-DD (defaults to today)")
	fs.Parse(os.Args[2:])

	ctx, log, a := setup(fs)
	defer a.Close()

	if a.Exporter == nil {
		log.Fatal().Msg("BigQuery export is disabled; set bigquery.enabled and bigquery.project")
	}

	endDate := time.Now()
	startDate := endDate.AddDate(0, 0, -30)
	var err error
	if *start != "" {
		if startDate, err = time.Parse("2006-01-02", *start); err != nil {
			log.Fatal().Err(err).Msg("Invalid -start")
		}
	}
	if *end != "" {
		if endDate, err = time.Parse("2006-01-02", *end); err != nil {
			log.Fatal().Err(err).Msg("Invalid -end")
		}
	}

	rows, err := a.Exporter.ListByDateRange(ctx, startDate, endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query exported transactions")
	}

	fmt.Printf("\n=== Exported transactions %s to %s (%d) ===\n", startDate.Format("2006-01-02"), endDate.Format("2006-01-02"), len(rows))
	for _, r := range rows {
		fmt.Printf("%s  %-8s %12s  %-24s %s\n",
			r.TransactionDate, r.Direction, r.Amount.FloatString(2), r.Merchant, r.Category)
	}
}
