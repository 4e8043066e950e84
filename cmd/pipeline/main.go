// cmd/pipeline runs one of the candle pipelines to completion.
//
// Usage:
//
//	go run ./cmd/pipeline --run=daily_loader
//	go run ./cmd/pipeline --run=daily_loader --resume
//	go run ./cmd/pipeline --run=returns
//	go run ./cmd/pipeline --run=technicals_buckets --bins=data/bins.yaml
//	go run ./cmd/pipeline --run=backtest --strategies=simple_sma,rsi_threshold
//
// Everything else is configured through the environment (see config.Load).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"candlepipe/config"
	"candlepipe/internal/binning"
	"candlepipe/internal/execution"
	"candlepipe/internal/logger"
	"candlepipe/internal/marketdata/agg"
	"candlepipe/internal/marketdata/history"
	"candlepipe/internal/markethours"
	"candlepipe/internal/metrics"
	"candlepipe/internal/model"
	"candlepipe/internal/notification"
	"candlepipe/internal/pipeline"
	"candlepipe/internal/pipelines"
	"candlepipe/internal/portfolio"
	"candlepipe/internal/signalfeed"
	redisstore "candlepipe/internal/store/redis"
	sqlitestore "candlepipe/internal/store/sqlite"
	"candlepipe/internal/strategy"
	"candlepipe/internal/universe"
	"candlepipe/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if err := run(); err != nil {
		log.Printf("[pipeline] %v", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred shutdown always happens.
func run() error {
	runName := flag.String("run", pipelines.TechnicalsCalculatorName, "Pipeline: daily_loader, returns, technicals, technicals_buckets, backtest")
	symbols := flag.String("symbols", "", "Comma-separated universe override")
	days := flag.Int("days", 0, "Lookback in days (0 = LOOKBACK_DAYS)")
	strategies := flag.String("strategies", "", "Comma-separated strategies for backtest (default: STRATEGIES)")
	bins := flag.String("bins", "", "Bins output path (default: BINS_PATH)")
	resume := flag.Bool("resume", false, "daily_loader: continue from the newest stored bar per symbol")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *symbols != "" {
		cfg.Universe, cfg.UniverseFile = *symbols, ""
	}
	if *days > 0 {
		cfg.LookbackDays = *days
	}
	if *strategies != "" {
		cfg.Strategies = *strategies
	}
	if *bins != "" {
		cfg.BinsPath = *bins
	}

	slogger := logger.Init("pipeline", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Println("[pipeline] shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Metrics + health
	reg := prometheus.NewRegistry()
	m := metrics.NewPipeline(reg)
	health := metrics.NewHealthStatus(*runName)
	srv := metrics.NewServer(cfg.MetricsAddr, reg, health)
	srv.Start()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		defer done()
		srv.Stop(shutdownCtx)
	}()

	app, err := assemble(ctx, cfg, *runName, *resume, slogger, m)
	if err != nil {
		return err
	}
	defer app.Close()

	health.StartLivenessChecker(ctx, app.rdb(), app.store.DB(), 10*time.Second)
	health.SetRunning(true)

	stats, err := app.runner.Run(ctx)
	health.RecordRun(err)
	if err != nil && !errors.Is(err, context.Canceled) {
		slogger.Error("run failed", slog.String("pipeline", *runName), slog.String("error", err.Error()))
		alertCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if aerr := app.notifier.Send(alertCtx, notification.RunFailed(*runName, err)); aerr != nil {
			log.Printf("[pipeline] run failure alert: %v", aerr)
		}
		return err
	}

	printSummary(*runName, stats, app.paper)
	return nil
}

// app holds everything a run opened so it can be closed in one place.
type app struct {
	runner   *pipeline.Runner
	store    *sqlitestore.Writer
	redis    *redisstore.Writer
	reader   *sqlitestore.Reader
	journal  *execution.Journal
	paper    *execution.PaperExecutor
	feed     *http.Server
	hub      *signalfeed.Hub
	notifier notification.Notifier
	closers  []io.Closer
}

// notifiers builds the configured alert channels. Without any, alerts are
// only logged.
func notifiers(cfg *config.Config) notification.Notifier {
	var n notification.Multi
	if cfg.TelegramBotToken != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.AlertWebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if len(n) == 0 {
		return notification.LogNotifier{}
	}
	return n
}

func (a *app) rdb() *goredis.Client {
	if a.redis == nil {
		return nil
	}
	return a.redis.Client()
}

func (a *app) Close() {
	if a.feed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		a.feed.Shutdown(ctx)
		cancel()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("[pipeline] close: %v", err)
		}
	}
	a.closers = nil
}

func assemble(ctx context.Context, cfg *config.Config, name string, resume bool, slogger *slog.Logger, m *metrics.Pipeline) (*app, error) {
	a := &app{notifier: notifiers(cfg)}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	u, err := universe.Load(cfg.Universe, cfg.UniverseFile)
	if err != nil {
		return nil, err
	}

	a.store, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath, BatchSize: cfg.BatchSize})
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed: %w", err)
	}
	a.closers = append(a.closers, a.store)

	sinks := pipeline.MultiPersister{a.store}
	if cfg.RedisAddr != "" {
		a.redis, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, m)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.redis)
		sinks = append(sinks, a.redis)
	}

	opts := pipelines.Options{
		Specs:    cfg.Specs(),
		FailFast: cfg.FailFast,
		Logger:   slogger,
		Metrics:  m,
	}
	query := model.CandleQuery{
		Symbols:  u.Symbols(),
		Timespan: cfg.Span(),
		From:     cfg.From(time.Now()),
	}

	switch name {
	case pipelines.DailyLoaderName:
		var cp pipelines.Checkpoint
		if resume {
			cp, err = pipelines.Resume(ctx, a.store, u.Symbols(), cfg.Span())
			if err != nil {
				return nil, err
			}
			opts.Seed = cp.Seed
			log.Printf("[pipeline] resuming %d of %d symbols from stored history", len(cp.Start), len(u.Symbols()))
		}
		src, err := brokerSource(ctx, cfg, u, cp.Start)
		if err != nil {
			return nil, err
		}
		a.runner, err = pipelines.DailyLoader(src, sinks, opts)
		if err != nil {
			return nil, err
		}

	case pipelines.ReturnsCalculatorName:
		if err := a.openReader(cfg); err != nil {
			return nil, err
		}
		a.runner, err = pipelines.ReturnsCalculator(a.reader.Source(query), sinks, opts)
		if err != nil {
			return nil, err
		}

	case pipelines.TechnicalsCalculatorName:
		if err := a.openReader(cfg); err != nil {
			return nil, err
		}
		a.runner, err = pipelines.TechnicalsCalculator(a.reader.Source(query), sinks, opts)
		if err != nil {
			return nil, err
		}

	case pipelines.TechnicalsWithBucketsName:
		if err := a.openReader(cfg); err != nil {
			return nil, err
		}
		b, err := binning.New(binning.Config{Path: cfg.BinsPath, Symbols: u.Symbols(), Edges: binning.DefaultEdges()})
		if err != nil {
			return nil, err
		}
		a.runner, err = pipelines.TechnicalsWithBuckets(a.reader.Source(query), sinks, b, opts)
		if err != nil {
			return nil, err
		}

	case pipelines.StrategyBacktestName:
		if err := a.openReader(cfg); err != nil {
			return nil, err
		}
		strats, err := strategy.FromNames(cfg.StrategyNames()...)
		if err != nil {
			return nil, err
		}
		exec, err := a.executors(cfg)
		if err != nil {
			return nil, err
		}
		opts.Terminators = append(opts.Terminators, execution.NewMarkToMarket(a.paper.Portfolio()))
		// Backtests only read the store.
		a.runner, err = pipelines.StrategyBacktest(a.reader.Source(query), strats, exec, nil, opts)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}

	ok = true
	return a, nil
}

func (a *app) openReader(cfg *config.Config) error {
	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite reader: %w", err)
	}
	a.reader = r
	a.closers = append(a.closers, r)
	return nil
}

// executors fans signals out to the log, the paper book, and, when
// configured, the redis signal stream and the websocket feed.
func (a *app) executors(cfg *config.Config) (pipeline.Executor, error) {
	j, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		return nil, err
	}
	a.journal = j
	a.closers = append(a.closers, j)

	book := portfolio.New()
	risk := portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), book, cfg.InitialEquity)
	a.paper = execution.NewPaperExecutor(book, cfg.PaperQty,
		execution.WithSlippage(cfg.SlippageBps),
		execution.WithRisk(risk),
		execution.WithRecorder(j),
	)

	exec := pipeline.MultiExecutor{execution.LogExecutor{Prefix: "backtest"}, a.paper}
	if a.redis != nil {
		exec = append(exec, redisstore.NewSignalPublisher(a.redis.Client()))
	}
	if cfg.FeedAddr != "" {
		a.hub = signalfeed.NewHub()
		mux := http.NewServeMux()
		mux.Handle("/ws/signals", a.hub)
		a.feed = &http.Server{Addr: cfg.FeedAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Printf("[signalfeed] listening on %s", cfg.FeedAddr)
			if err := a.feed.ListenAndServe(); err != http.ErrServerClosed {
				log.Printf("[signalfeed] server error: %v", err)
			}
		}()
		exec = append(exec, a.hub)
	}
	if _, logOnly := a.notifier.(notification.LogNotifier); !logOnly {
		exec = append(exec, notification.NewSignalAlerter(a.notifier))
	}
	return exec, nil
}

// brokerSource logs in to Angel One and streams history for the universe.
// start moves individual symbols past the lookback start.
func brokerSource(ctx context.Context, cfg *config.Config, u *universe.Universe, start map[string]time.Time) (pipeline.Source, error) {
	if err := cfg.RequireAngel(); err != nil {
		return nil, err
	}
	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: cfg.AngelAPIKey})
	if _, err := sc.LoginWithTOTP(ctx, cfg.AngelClientCode, cfg.AngelPassword, cfg.AngelTOTPSecret); err != nil {
		return nil, fmt.Errorf("angel login: %w", err)
	}
	if p, err := sc.Profile(ctx); err == nil {
		log.Printf("[pipeline] logged in as %s (%s), exchanges %v", p.ClientCode, p.Name, p.Exchanges)
	} else {
		log.Printf("[pipeline] logged in as %s (profile: %v)", sc.GetUserID(), err)
	}

	log.Printf("[pipeline] %s", markethours.StatusString(time.Now()))

	// The broker has no weekly interval: fetch daily bars and roll them up.
	span := cfg.Span()
	fetch := span
	if span == model.Week {
		fetch = model.Day
	}
	src, err := history.NewSource(sc, history.Config{
		Instruments: u.Instruments(),
		Timespan:    fetch,
		From:        cfg.From(time.Now()),
		Start:       start,
		MinInterval: cfg.HistoryPacing,
	})
	if err != nil {
		return nil, err
	}
	if fetch != span {
		return agg.New(src, span, agg.WithLocation(markethours.IST)), nil
	}
	return src, nil
}

func printSummary(name string, stats pipeline.Stats, paper *execution.PaperExecutor) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Printf("║  %-36s║\n", "PIPELINE COMPLETE: "+name)
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles read:      %-16d ║\n", stats.Read)
	fmt.Printf("║  Forwarded:         %-16d ║\n", stats.Forwarded)
	fmt.Printf("║  Dropped:           %-16d ║\n", stats.Dropped)
	fmt.Printf("║  Issues:            %-16d ║\n", stats.Issues)
	fmt.Printf("║  Signals:           %-16d ║\n", stats.Signals)
	fmt.Printf("║  Duration:          %-16s ║\n", stats.Duration.Round(time.Millisecond))
	if paper != nil {
		s := paper.Portfolio().Summary()
		fmt.Println("╠══════════════════════════════════════╣")
		fmt.Printf("║  Fills:             %-16d ║\n", len(paper.Fills()))
		fmt.Printf("║  Realized P&L:      %-16.2f ║\n", float64(s.RealizedPnL)/100)
		fmt.Printf("║  Unrealized P&L:    %-16.2f ║\n", float64(s.UnrealizedPnL)/100)
		fmt.Printf("║  Open positions:    %-16d ║\n", s.OpenPositions)
	}
	fmt.Println("╚══════════════════════════════════════╝")
}
