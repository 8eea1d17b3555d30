package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/codepr/topicscraper/internal/adapter"
	"github.com/codepr/topicscraper/internal/config"
	"github.com/codepr/topicscraper/internal/content"
	"github.com/codepr/topicscraper/internal/fetcher"
	"github.com/codepr/topicscraper/internal/httpapi"
	"github.com/codepr/topicscraper/internal/messaging"
	"github.com/codepr/topicscraper/internal/orchestrator"
	"github.com/codepr/topicscraper/internal/ratelimit"
	"github.com/codepr/topicscraper/internal/robots"
	"github.com/codepr/topicscraper/internal/runlog"
	"github.com/codepr/topicscraper/internal/scheduler"
)

const logDir = "logs"

// mongoPinger adapts a *mongo.Client to httpapi.Pinger.
type mongoPinger struct{ client *mongo.Client }

func (p *mongoPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx, nil) }

// newFileLogger opens (or rotates into) a log file under logDir, following
// the size/generation rotation policy of §6. Lines are written by a
// log.Logger as timestamped text; run events appear as JSON payloads inside
// those lines.
func newFileLogger(name string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   fmt.Sprintf("%s/%s", logDir, name),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     0,
		Compress:   false,
	}, "", log.LstdFlags)
}

type deps struct {
	cfg          *config.Config
	client       *mongo.Client
	contentStore *content.Store
	runLogStore  *runlog.Store
	limiter      *ratelimit.Limiter
	robotsCache  *robots.Cache
	fetcher      *fetcher.Fetcher
	orchestrator *orchestrator.Orchestrator
	combinedLog  *log.Logger
	errorLog     *log.Logger
}

func buildDeps(ctx context.Context) (*deps, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	cfg := config.Load()
	combinedLog := newFileLogger("combined.log")
	errorLog := newFileLogger("error.log")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo unreachable at startup: %w", err)
	}

	db := client.Database("scraper")
	contentStore := content.NewStore(db.Collection("content"))
	runLogStore := runlog.NewStore(db.Collection("runlogs"))
	if err := contentStore.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensuring content indexes: %w", err)
	}
	if err := runLogStore.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensuring run log indexes: %w", err)
	}

	robotsCache := robots.New(robots.WithTTL(time.Hour), robots.WithMaxSize(200))
	limiter := ratelimit.New(ratelimit.DefaultDomainTable(), cfg.MaxConcurrentReqs)
	f := fetcher.New(robotsCache, limiter,
		fetcher.WithTimeout(cfg.RequestTimeout),
		fetcher.WithDefaultMaxRetries(cfg.MaxRetries),
		fetcher.WithProxy(cfg.ProxyURL()),
	)
	f.SetRobotsUserAgent(cfg.RobotsUserAgent)

	bus := messaging.NewEventBus()
	events := make(chan []byte)
	go bus.Consume(events)
	go func() {
		for e := range events {
			combinedLog.Printf("run-event %s", e)
		}
	}()

	o := orchestrator.New(f, limiter, robotsCache, contentStore, runLogStore, bus, orchestrator.Config{
		MaxItemsPerCategory: cfg.MaxItemsPerCategory,
		RequestTimeout:      cfg.RequestTimeout,
		MaxRetries:          cfg.MaxRetries,
		MaxConcurrent:       cfg.MaxConcurrentReqs,
		DelayMin:            cfg.ScrapeDelayMin,
		DelayMax:            cfg.ScrapeDelayMax,
		RobotsUserAgent:     cfg.RobotsUserAgent,
		Keywords:            cfg.SearchKeywords,
		ContentMaxAgeDays:   cfg.ContentMaxAgeDays,
	})
	registerAdapters(o)

	return &deps{
		cfg:          cfg,
		client:       client,
		contentStore: contentStore,
		runLogStore:  runLogStore,
		limiter:      limiter,
		robotsCache:  robotsCache,
		fetcher:      f,
		orchestrator: o,
		combinedLog:  combinedLog,
		errorLog:     errorLog,
	}, nil
}

// registerAdapters wires the built-in RSS/Atom feed sources. Real deployments
// would likely load this list from configuration; it's hardcoded here for
// now since there's no feed-registry format yet.
func registerAdapters(o *orchestrator.Orchestrator) {
	o.Register(adapter.NewRSSAdapter("rss-news", []adapter.RSSSource{
		{Name: "Software AG News", FeedURL: "https://www.softwareag.com/en_corporate/news.rss", Category: content.CategoryNews},
	}))
	o.Register(adapter.NewRSSAdapter("rss-jobs", []adapter.RSSSource{
		{Name: "Integration Jobs", FeedURL: "https://weworkremotely.com/categories/remote-programming-jobs.rss", Category: content.CategoryJob},
	}))
}

func runServe(ctx context.Context) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.client.Disconnect(shutdownCtx)
	}()

	server := httpapi.New(d.orchestrator, d.contentStore, d.runLogStore, &mongoPinger{client: d.client}, logDir, d.cfg.ContentMaxAgeDays, d.cfg.AllowedOrigins)
	httpServer := &http.Server{Addr: ":" + d.cfg.Port, Handler: server.Router()}

	var sched *scheduler.Scheduler
	if d.cfg.AutoScrapeEnabled {
		sched = scheduler.New(d.orchestrator)
		if err := sched.Start(d.cfg.ScrapeCronSchedule); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		d.combinedLog.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-signalCh:
	case err := <-errCh:
		d.errorLog.Printf("http server error: %v", err)
		return err
	}

	d.combinedLog.Println("shutting down")
	d.orchestrator.StopAll()
	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runOnce(ctx context.Context, adapterName string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.client.Disconnect(shutdownCtx)
	}()

	if adapterName != "" {
		return d.orchestrator.StartSpecific(ctx, adapterName, runlog.TriggerManual, "cli")
	}
	return d.orchestrator.StartAll(ctx, runlog.TriggerManual, "cli")
}
