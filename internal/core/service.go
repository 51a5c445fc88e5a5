package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/importer"
)

// Service runs imports for the registered tables against one backend.
// It is safe for concurrent use.
type Service struct {
	backend Backend
	limiter *ImportLimiter
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	runners map[string]Runner
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records import metrics.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service writing to backend. cfg supplies the
// concurrency limit, the wait for a free slot and the per-import timeout.
func NewService(backend Backend, cfg config.ImportConfig, opts ...ServiceOption) *Service {
	s := &Service{
		backend: backend,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		timeout: cfg.Timeout,
		logger:  slog.Default(),
		runners: make(map[string]Runner),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListTables returns every registered table, ordered by group and key.
func (s *Service) ListTables() []TableInfo {
	defs := All()
	infos := make([]TableInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Table returns the registered table for key.
func (s *Service) Table(key string) (TableInfo, bool) {
	def, ok := Get(key)
	return def.Info, ok
}

// Limiter exposes the import limiter for status output and shutdown draining.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// Backend returns the backend imports are written to.
func (s *Service) Backend() Backend {
	return s.backend
}

// Import reads CSV from r into the table registered under tableKey.
//
// Row problems come back in the outcome's Result with a nil error. A
// non-nil error means the import did not run (ErrUnknownTable,
// ErrTooManyImports, a cancelled ctx) or was aborted (*importer.AbortError).
func (s *Service) Import(ctx context.Context, tableKey string, r io.Reader, req ImportRequest) (ImportOutcome, error) {
	def, ok := Get(tableKey)
	if !ok {
		return ImportOutcome{}, fmt.Errorf("%w: %q", ErrUnknownTable, tableKey)
	}

	id, ok := importer.ImportIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = importer.WithImportID(ctx, id)
	}
	outcome := ImportOutcome{ID: id, Table: tableKey, ValidateOnly: req.ValidateOnly}
	logger := s.logger.With("import_id", id, "table", tableKey)
	start := time.Now()

	if err := s.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTooManyImports) {
			logger.Warn("import rejected", "active", s.limiter.ActiveCount())
		}
		s.metrics.observe(tableKey, req.ValidateOnly, StatusRejected, 0, 0)
		return outcome, err
	}
	defer s.limiter.Release()

	s.metrics.started()
	defer s.metrics.finished()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.runner(def)(ctx, r, req)
	outcome.Result = result
	outcome.Duration = time.Since(start)

	switch {
	case err != nil:
		s.metrics.observe(tableKey, req.ValidateOnly, StatusAborted, 0, outcome.Duration)
		return outcome, err
	case !result.Succeeded():
		s.metrics.observe(tableKey, req.ValidateOnly, StatusFailed, result.ErrorCount(), outcome.Duration)
	default:
		s.metrics.observe(tableKey, req.ValidateOnly, StatusSucceeded, 0, outcome.Duration)
	}
	return outcome, nil
}

// runner returns the bound pipeline for def, binding it on first use.
func (s *Service) runner(def TableDefinition) Runner {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runners[def.Info.Key]
	if !ok {
		run = def.Bind(s.backend, s.logger)
		s.runners[def.Info.Key] = run
	}
	return run
}
