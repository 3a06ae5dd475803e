package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adsrocket/adsrocket/internal/auth"
	"github.com/adsrocket/adsrocket/internal/cache"
	"github.com/adsrocket/adsrocket/internal/commentary"
	"github.com/adsrocket/adsrocket/internal/config"
	"github.com/adsrocket/adsrocket/internal/dailyreport"
	"github.com/adsrocket/adsrocket/internal/graph"
	"github.com/adsrocket/adsrocket/internal/insights"
	"github.com/adsrocket/adsrocket/internal/logging"
	"github.com/adsrocket/adsrocket/internal/marketing"
	"github.com/adsrocket/adsrocket/internal/performance"
	"github.com/adsrocket/adsrocket/internal/store"
	"github.com/adsrocket/adsrocket/internal/telegram"
	"github.com/adsrocket/adsrocket/internal/telemetry"
	"github.com/adsrocket/adsrocket/internal/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type closingSummarizer interface {
	commentary.Summarizer
	Close() error
}

var (
	loadConfig      = config.Load
	loadCredentials = loadProfileCredentials
	newGraphClient  = func() *graph.Client {
		return graph.NewClient(nil, "")
	}
	newCacheLayer     = buildCacheLayer
	newTelegramClient = func(token string) *telegram.Client {
		return telegram.NewClient(nil, token)
	}
	newSummarizer = func(ctx context.Context, apiKey string, model string) (closingSummarizer, error) {
		return commentary.NewGemini(ctx, apiKey, model)
	}
	openHistory = func(ctx context.Context, dsn string) (*store.Postgres, error) {
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
)

// services is the object graph one command runs against. Close releases
// every connection it opened.
type services struct {
	Config  *config.Config
	Profile *auth.ProfileCredentials
	Creds   graph.Credentials
	Logger  *logrus.Logger
	Metrics *telemetry.Metrics
	Client  *graph.Client
	Cache   cache.Layer

	store   *store.Postgres
	closers []func() error
}

func newServices(ctx context.Context, runtime Runtime, logOutput io.Writer, reg prometheus.Registerer) (*services, error) {
	configPath, err := runtime.ConfigPath()
	if err != nil {
		return nil, &configError{err: err}
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, &configError{err: err}
	}

	level := cfg.Log.Level
	if runtime.DebugEnabled() {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Format, logOutput)
	if err != nil {
		return nil, &configError{err: err}
	}

	profile, err := loadCredentials(configPath, runtime.ProfileName())
	if err != nil {
		return nil, err
	}

	metrics := telemetry.New(reg)
	client := newGraphClient()
	client.Metrics = metrics
	client.Logger = logger
	if cfg.Graph.RequestsPerSecond > 0 {
		burst := cfg.Graph.Burst
		if burst <= 0 {
			burst = 1
		}
		client.Limiter = rate.NewLimiter(rate.Limit(cfg.Graph.RequestsPerSecond), burst)
	}

	s := &services{
		Config:  cfg,
		Profile: profile,
		Creds:   graphCredentials(profile),
		Logger:  logger,
		Metrics: metrics,
		Client:  client,
	}
	layer, closeCache, err := newCacheLayer(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	if closeCache != nil {
		s.closers = append(s.closers, closeCache)
	}
	s.Cache = cache.Instrument(layer, metrics)
	return s, nil
}

func buildCacheLayer(ctx context.Context, cfg config.CacheConfig, logger logrus.FieldLogger) (cache.Layer, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.CacheBackendMemory:
		return cache.NewMemory(nil), nil, nil
	case config.CacheBackendRedis:
		client, err := cache.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedis(client, cache.DefaultRedisPrefix, logger), client.Close, nil
	default:
		return nil, nil, &configError{err: fmt.Errorf("unsupported cache backend %q: expected memory|redis", cfg.Backend)}
	}
}

func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// accountID falls back to the profile's account when flag is empty.
func (s *services) accountID(flag string) (string, error) {
	accountID := config.NormalizeAccountID(flag)
	if accountID == "" {
		accountID = config.NormalizeAccountID(s.Profile.Profile.AccountID)
	}
	if accountID == "" {
		return "", newInputError("account id is required (--account-id or profile account_id)")
	}
	return accountID, nil
}

// window parses flag, falling back to the configured report window.
func (s *services) window(flag string) (window.Spec, error) {
	raw := strings.TrimSpace(flag)
	if raw == "" {
		raw = s.Config.ReportWindow()
	}
	return window.Parse(raw)
}

func (s *services) fetcher() *performance.Fetcher {
	fetcher := performance.NewFetcher(s.Client, s.Cache)
	fetcher.Logger = s.Logger
	return fetcher
}

func (s *services) marketing() *marketing.Service {
	svc := marketing.NewService(s.Client, s.Cache)
	svc.Logger = s.Logger
	return svc
}

type reportOptions struct {
	AccountID string
	ChatID    string
	Window    string
	Limit     int
}

// reportJob wires the daily report. Commentary and history are attached
// only when the profile has an AI key and the config has a DSN.
func (s *services) reportJob(ctx context.Context, opts reportOptions) (*dailyreport.Job, error) {
	accountID, err := s.accountID(opts.AccountID)
	if err != nil {
		return nil, err
	}
	spec, err := s.window(opts.Window)
	if err != nil {
		return nil, err
	}
	chatID := strings.TrimSpace(opts.ChatID)
	if chatID == "" {
		chatID = s.Profile.Profile.Telegram.ChatID
	}
	if chatID == "" {
		return nil, newInputError("telegram chat id is required (--chat-id or profile telegram.chat_id)")
	}
	if strings.TrimSpace(s.Profile.TelegramToken) == "" {
		return nil, &configError{err: fmt.Errorf("profile %q has no telegram token; run adsrocket auth set --telegram-token", s.Profile.Name)}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = s.Config.ReportLimit()
	}

	sender := newTelegramClient(s.Profile.TelegramToken)
	sender.Logger = s.Logger
	marketingService := s.marketing()
	job := &dailyreport.Job{
		AccountID: accountID,
		ChatID:    chatID,
		Creds:     s.Creds,
		Window:    spec,
		Limit:     limit,
		Summaries: insights.New(s.Client),
		Ads:       s.fetcher(),
		Sender:    sender,
		Marketing: marketingService,
		Logger:    s.Logger.WithField("account_id", accountID),
		Metrics:   s.Metrics,
	}

	if key := strings.TrimSpace(s.Profile.AIAPIKey); key != "" {
		model := s.Profile.Profile.AI.Model
		if model == "" {
			model = config.DefaultAIModel
		}
		summarizer, err := newSummarizer(ctx, key, model)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, summarizer.Close)
		job.Commentary = summarizer
	}
	history, err := s.history(ctx)
	if err != nil {
		return nil, err
	}
	if history != nil {
		job.History = history
	}
	return job, nil
}

// history opens the report store once when a DSN is configured. It returns
// nil without error when history is disabled.
func (s *services) history(ctx context.Context) (*store.Postgres, error) {
	if s.store != nil {
		return s.store, nil
	}
	dsn := strings.TrimSpace(s.Config.Database.DSN)
	if dsn == "" {
		return nil, nil
	}
	db, err := openHistory(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)
	s.store = db
	return db, nil
}

// runWithServices builds the services for one invocation, runs fn and
// writes its result or error as an envelope.
func runWithServices(cmd *cobra.Command, runtime Runtime, commandName string, fn func(context.Context, *services) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := newServices(ctx, runtime, cmd.ErrOrStderr(), prometheus.NewRegistry())
	if err != nil {
		return writeCommandError(cmd, runtime, commandName, err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			svc.Logger.WithError(err).Warn("release command resources")
		}
	}()

	data, err := fn(ctx, svc)
	if err != nil {
		return writeCommandError(cmd, runtime, commandName, err)
	}
	return writeSuccess(cmd, runtime, commandName, data)
}
