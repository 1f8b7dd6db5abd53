package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ipscope/ipscope/internal/analyze"
	"github.com/ipscope/ipscope/internal/api"
	"github.com/ipscope/ipscope/internal/auth"
	"github.com/ipscope/ipscope/internal/config"
	"github.com/ipscope/ipscope/internal/events"
	"github.com/ipscope/ipscope/internal/lookup"
	storepkg "github.com/ipscope/ipscope/internal/store"
	"github.com/ipscope/ipscope/internal/store/composite"
	"github.com/ipscope/ipscope/internal/store/jsonl"
	"github.com/ipscope/ipscope/internal/store/sqlite"
	"github.com/ipscope/ipscope/internal/store/webhook"
	"github.com/ipscope/ipscope/internal/task"
	"github.com/ipscope/ipscope/pkg/observability"
	"github.com/ipscope/ipscope/pkg/types"
)

type Server struct {
	httpServer *http.Server
	httpLn     net.Listener

	store    *composite.Store
	broker   *events.Broker
	registry *task.Registry
	logger   *slog.Logger

	retention    time.Duration
	reapInterval time.Duration
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := buildEventStore(cfg)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	registry := task.NewRegistry(cfg.Tasks.MaxTasks)
	emitter := serverEmitter{store: store, broker: broker}

	requestTimeout := config.Duration(cfg.Analysis.RequestTimeout, 5*time.Second)
	dnsTimeout := config.Duration(cfg.Analysis.DNSTimeout, 3*time.Second)
	pacing := config.Duration(cfg.Analysis.PacingInterval, time.Second)

	// One pacer shared by every task keeps provider traffic at the
	// configured rate regardless of how many batches run at once.
	pacer := analyze.NewPacer(pacing)
	rdns := lookup.NewReverseDNS(dnsTimeout)
	geo := lookup.NewGeo(cfg.Providers.Geo.BaseURL, requestTimeout)
	abuseBase := cfg.Providers.Abuse.BaseURL
	factory := func(apiKey string) (task.Analyzer, error) {
		abuse := lookup.NewAbuse(abuseBase, apiKey, requestTimeout)
		return analyze.New(rdns, geo, abuse, pacer), nil
	}
	runner := task.NewRunner(factory, emitter)

	var apiKeyAuth *auth.APIKeyAuth
	if cfg.Auth.Type == "api_key" {
		loaded, err := auth.LoadAPIKeys(cfg.Auth.APIKey.KeysFile, cfg.Auth.APIKey.HeaderName)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		apiKeyAuth = loaded
	}

	app := api.NewApp(cfg, registry, runner, store, broker, apiKeyAuth, logger)

	readTimeout, err := time.ParseDuration(cfg.Server.HTTP.ReadTimeout)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parse server.http.read_timeout: %w", err)
	}
	writeTimeout, err := time.ParseDuration(cfg.Server.HTTP.WriteTimeout)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parse server.http.write_timeout: %w", err)
	}
	maxReqBytes, err := config.ParseByteSize(cfg.Server.HTTP.MaxRequestSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("parse server.http.max_request_size: %w", err)
	}

	s := &http.Server{
		Addr:              cfg.Server.HTTP.Addr,
		Handler:           withRequestBodyLimit(app.Router(), maxReqBytes),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	srv := &Server{
		httpServer:   s,
		store:        store,
		broker:       broker,
		registry:     registry,
		logger:       logger,
		retention:    config.Duration(cfg.Tasks.Retention, 24*time.Hour),
		reapInterval: config.Duration(cfg.Tasks.CleanupInterval, time.Minute),
	}

	ln, err := listenHTTP(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	srv.httpLn = ln

	return srv, nil
}

// buildEventStore assembles the audit stack. With auditing disabled no
// files are touched; events are discarded and searches come back empty.
func buildEventStore(cfg *config.Config) (*composite.Store, error) {
	if !cfg.Audit.Enabled {
		return composite.New(storepkg.Noop()), nil
	}

	db, err := sqlite.Open(cfg.Audit.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	var extraStores []storepkg.EventStore
	if cfg.Audit.JSONL.Path != "" {
		jsonlStore, err := jsonl.New(cfg.Audit.JSONL.Path, cfg.Audit.JSONL.MaxSizeMB, cfg.Audit.JSONL.MaxBackups)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		extraStores = append(extraStores, jsonlStore)
	}
	if cfg.Audit.Webhook.URL != "" {
		flushEvery, err := time.ParseDuration(cfg.Audit.Webhook.FlushInterval)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("parse audit.webhook.flush_interval: %w", err)
		}
		timeout, err := time.ParseDuration(cfg.Audit.Webhook.Timeout)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("parse audit.webhook.timeout: %w", err)
		}
		webhookStore, err := webhook.New(cfg.Audit.Webhook.URL, cfg.Audit.Webhook.BatchSize, flushEvery, timeout, cfg.Audit.Webhook.Headers)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		extraStores = append(extraStores, webhookStore)
	}
	return composite.New(db, extraStores...), nil
}

func withRequestBodyLimit(next http.Handler, maxBytes int64) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func listenHTTP(cfg *config.Config) (net.Listener, error) {
	addr := cfg.Server.HTTP.Addr
	if strings.EqualFold(strings.TrimSpace(cfg.Auth.Type), "none") {
		if !isLoopbackListenAddr(addr) {
			return nil, fmt.Errorf("refusing to listen on %q with auth.type=none (use 127.0.0.1/localhost or enable auth)", addr)
		}
	}
	return net.Listen("tcp", addr)
}

func isLoopbackListenAddr(addr string) bool {
	a := strings.TrimSpace(addr)
	if a == "" {
		return false
	}
	// ":8080" binds on all interfaces.
	if strings.HasPrefix(a, ":") {
		return false
	}
	host, _, err := net.SplitHostPort(a)
	if err != nil {
		// If it's missing a port, treat as a hostname/IP.
		host = a
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	// Conservative: unknown hostnames could resolve non-loopback.
	return false
}

type serverEmitter struct {
	store  *composite.Store
	broker *events.Broker
}

func (e serverEmitter) AppendEvent(ctx context.Context, ev types.Event) error {
	return e.store.AppendEvent(ctx, ev)
}
func (e serverEmitter) Publish(ev types.Event) { e.broker.Publish(ev) }

func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.retention > 0 {
		ticker := time.NewTicker(s.reapInterval)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.reapOnce(time.Now().UTC())
				}
			}
		}()
	}

	s.logger.Info("server listening", "addr", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

func (s *Server) Close() error {
	if s.httpLn != nil {
		_ = s.httpLn.Close()
		s.httpLn = nil
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	return nil
}

// Addr reports the bound HTTP address, useful when the config asked for
// port 0.
func (s *Server) Addr() string {
	if s == nil || s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

func (s *Server) reapOnce(now time.Time) {
	reaped := s.registry.ReapTerminal(now, s.retention)
	if len(reaped) > 0 {
		s.logger.Info("reaped expired tasks", "count", len(reaped))
	}
	for _, t := range reaped {
		snap := t.Snapshot()
		ev := types.Event{
			ID:        uuid.NewString(),
			Timestamp: now,
			Type:      "task_expired",
			TaskID:    snap.ID,
			Fields: map[string]any{
				"status":    string(snap.Status),
				"retention": s.retention.String(),
			},
		}
		_ = s.store.AppendEvent(context.Background(), ev)
		if s.broker != nil {
			s.broker.Publish(ev)
		}
	}
}
