// Package app wires configuration into the running pipeline components.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/cache"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/deadletter"
	"github.com/joseph-ayodele/casting-aggregator/internal/export"
	"github.com/joseph-ayodele/casting-aggregator/internal/extract"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm/cohere"
	"github.com/joseph-ayodele/casting-aggregator/internal/llm/openai"
	"github.com/joseph-ayodele/casting-aggregator/internal/orchestrator"
	"github.com/joseph-ayodele/casting-aggregator/internal/outbox"
	"github.com/joseph-ayodele/casting-aggregator/internal/patterns"
	"github.com/joseph-ayodele/casting-aggregator/internal/pipeline"
	"github.com/joseph-ayodele/casting-aggregator/internal/prefilter"
	"github.com/joseph-ayodele/casting-aggregator/internal/queue"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository"
	"github.com/joseph-ayodele/casting-aggregator/internal/server"
	"github.com/joseph-ayodele/casting-aggregator/internal/sources"
	"github.com/joseph-ayodele/casting-aggregator/internal/vocab"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg common.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

// App holds every long-lived component. Build constructs it; Close releases it.
type App struct {
	Config *common.Config
	Logger *slog.Logger
	Store  *repository.Store

	Sources     repository.SourceRepository
	Jobs        repository.JobRepository
	Records     repository.CastingCallRepository
	Outbox      repository.OutboxRepository
	DeadLetters repository.DeadLetterRepository
	Patterns    repository.PatternRepository

	Filter       *prefilter.Filter
	Learner      *patterns.Learner
	Extractor    *extract.Client
	Ingestion    *queue.Queue
	Validation   *queue.Queue
	ExtractRun   *queue.Runner
	ValidateRun  *queue.Runner
	Publisher    outbox.Publisher
	Dispatcher   *outbox.Dispatcher
	Chat         *sources.ChatGateway
	Poller       *sources.Poller
	Orchestrator *orchestrator.Orchestrator
	DLQ          *deadletter.Service
	Exports      *export.Service

	redis   *redis.Client
	closers []func()
}

// Build opens the store and assembles the pipeline. It starts nothing.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := server.ConnectDB(ctx, cfg.Database, true, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, func() { server.CloseDB(store, logger) })

	a.Sources = repository.NewSourceRepository(store, logger)
	a.Jobs = repository.NewJobRepository(store, logger)
	a.Records = repository.NewCastingCallRepository(store, logger)
	a.Outbox = repository.NewOutboxRepository(store, logger)
	a.DeadLetters = repository.NewDeadLetterRepository(store, logger)
	a.Patterns = repository.NewPatternRepository(store, logger)
	a.DLQ = deadletter.NewService(a.DeadLetters, logger)
	a.Exports = export.NewService(a.Records, a.DeadLetters, logger)

	if cfg.Cache.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	voc := vocab.Default()
	a.Filter = prefilter.New(voc)
	a.Learner = patterns.NewLearner(a.Patterns, voc, logger)

	var respCache cache.Cache = cache.NewMemory(cfg.Cache.TTL)
	if a.redis != nil {
		respCache = cache.NewRedis(a.redis, "")
	}
	a.Extractor = extract.NewClient(newProvider(cfg.LLM, logger), respCache, a.Learner, ExtractConfig(cfg), logger)


	archiver, err := newArchiver(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, err
	}
	a.Ingestion = queue.New(constants.QueueIngestion, a.Jobs)
	a.Validation = queue.New(constants.QueueValidation, a.Jobs)
	runnerOpts := func(workers int) []queue.Option {
		return []queue.Option{
			queue.WithWorkers(workers),
			queue.WithPollInterval(cfg.Workers.PollInterval),
			queue.WithProcessTimeout(cfg.Workers.JobTimeout),
			queue.WithLease(cfg.Workers.Lease),
			queue.WithMaxAttempts(cfg.Workers.MaxAttempts),
			queue.WithRetryBase(cfg.Workers.RetryBase),
			queue.WithArchiver(archiver),
		}
	}
	extractStage := pipeline.NewExtractStage(logger, a.Filter, a.Extractor, a.Validation)
	validateStage := pipeline.NewValidateStage(logger, a.Records)
	a.ExtractRun = queue.NewRunner(constants.QueueIngestion, a.Jobs, extractStage.Handle, logger, runnerOpts(cfg.Workers.ExtractWorkers)...)
	a.ValidateRun = queue.NewRunner(constants.QueueValidation, a.Jobs, validateStage.Handle, logger, runnerOpts(cfg.Workers.ValidateWorkers)...)

	pub, err := a.newPublisher(cfg.Downstream, logger)
	if err != nil {
		return nil, err
	}
	a.Publisher = pub
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("publisher close", "error", err)
		}
	})
	a.Dispatcher = outbox.NewDispatcher(a.Outbox, pub, outbox.DefaultRoutes(), outbox.Config{
		MaxAttempts: cfg.Outbox.MaxAttempts,
		BackoffBase: cfg.Outbox.BackoffBase,
		BackoffMax:  cfg.Outbox.BackoffMax,
		Batch:       cfg.Outbox.Batch,
		Interval:    cfg.Outbox.Interval,
	}, logger)

	a.Poller = sources.NewPoller(a.Sources, logger, a.providers(cfg.Sources, logger),
		sources.WithRecencyWindow(cfg.Sources.RecencyWindow),
		sources.WithMinLength(cfg.Sources.MinContentLength),
	)
	a.Orchestrator = orchestrator.New(a.Sources, a.Poller, a.Ingestion, orchestrator.Config{
		MaxSourcesPerCycle: cfg.Sources.MaxSourcesPerCycle,
		Concurrency:        cfg.Sources.PollConcurrency,
	}, logger)

	ok = true
	return a, nil
}

func newProvider(cfg common.LLMConfig, logger *slog.Logger) llm.Provider {
	if cfg.Provider == "cohere" {
		return cohere.NewClient(cohere.Config{
			APIKey:      cfg.CohereKey,
			Model:       cfg.CohereModel,
			Temperature: float64(cfg.Temperature),
			Timeout:     cfg.Timeout,
		}, logger)
	}
	return openai.NewClient(openai.Config{
		APIKey:      cfg.OpenAIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}, logger)
}

func newArchiver(ctx context.Context, cfg common.ArchiveConfig, logger *slog.Logger) (queue.Archiver, error) {
	if cfg.Bucket == "" {
		return deadletter.Nop{}, nil
	}
	a, err := deadletter.NewS3Archiver(ctx, cfg.Bucket, cfg.Prefix, cfg.Region, logger)
	if err != nil {
		return nil, fmt.Errorf("dead-letter archive: %w", err)
	}
	logger.Info("dead letters archived to s3", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return a, nil
}

func (a *App) newPublisher(cfg common.DownstreamConfig, logger *slog.Logger) (outbox.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		p, err := outbox.NewKafkaPublisher(cfg.KafkaBrokers, cfg.TopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		logger.Info("outbox publishing to kafka", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic_prefix", cfg.TopicPrefix)
		return p, nil
	case "redis":
		if a.redis == nil {
			return nil, common.InvalidInputErrorf("redis downstream needs REDIS_URL")
		}
		return outbox.NewRedisPublisher(a.redis, cfg.TopicPrefix), nil
	default:
		return outbox.NewLogPublisher(logger), nil
	}
}

// providers registers a poller per source kind whose backend is configured.
// The page scraper needs no credentials and is always present.
func (a *App) providers(cfg common.SourcesConfig, logger *slog.Logger) []sources.Provider {
	out := []sources.Provider{
		sources.NewPageProvider(sources.NewPageScraper(cfg.PageFetchTimeout, logger)),
	}
	if cfg.ChatAPIURL != "" {
		a.Chat = sources.NewChatGateway(cfg.ChatAPIURL, cfg.ChatAPIToken, cfg.PageFetchTimeout, logger)
		out = append(out, sources.NewChatProvider(a.Chat, cfg.ChatMessageLimit))
	} else {
		logger.Warn("chat sources disabled", "reason", "CHAT_API_URL is not set")
	}
	if cfg.SocialFeedURLTemplate != "" {
		out = append(out, sources.NewSocialProvider(
			sources.NewFeedSocialClient(cfg.SocialFeedURLTemplate, cfg.PageFetchTimeout), cfg.SocialPostLimit))
	} else {
		logger.Warn("social sources disabled", "reason", "SOCIAL_FEED_URL_TEMPLATE is not set")
	}
	return out
}

// Server builds the admin API over this app's components.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Cycles:      a.Orchestrator,
		Sources:     a.Sources,
		Records:     a.Records,
		DeadLetters: a.DLQ,
		Jobs:        a.Jobs,
		Outbox:      a.Outbox,
		Exports:     a.Exports,
		DB:          a.Store,
	}, a.Logger)
}

// Drain processes everything currently due on both queues and the outbox,
// then waits for pending cache writes and flushes pattern feedback.
func (a *App) Drain(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n, err := a.ExtractRun.Drain(ctx); err != nil {
		keep(err)
	} else {
		a.Logger.Info("drain.ingestion", "jobs", n)
	}
	if n, err := a.ValidateRun.Drain(ctx); err != nil {
		keep(err)
	} else {
		a.Logger.Info("drain.validation", "jobs", n)
	}
	sum, err := a.Dispatcher.RunOnce(ctx)
	keep(err)
	a.Logger.Info("drain.outbox", "processed", sum.Processed, "rescheduled", sum.Rescheduled, "dead", sum.Dead)

	a.Extractor.Wait()
	keep(a.Learner.Flush(ctx))
	return firstErr
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ExtractConfig maps LLM and cache settings onto the extraction client.
func ExtractConfig(cfg *common.Config) extract.Config {
	return extract.Config{
		MaxAttempts:          cfg.LLM.MaxAttempts,
		RetryDelay:           cfg.LLM.RetryDelay,
		CallTimeout:          cfg.LLM.Timeout,
		CacheTTL:             cfg.Cache.TTL,
		MinPatternConfidence: cfg.LLM.MinConfidence,
		RatePerSec:           cfg.LLM.RatePerSec,
		Burst:                cfg.LLM.Burst,
		Lenient:              cfg.LLM.Lenient,
	}
}
