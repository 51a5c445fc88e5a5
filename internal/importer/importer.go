package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence unit of work the pipeline writes through.
// Implementations are not safe for concurrent use.
type Store[E any] interface {
	// TransactionsSupported reports whether Begin/Commit/Rollback are
	// meaningful. In-memory backends typically return false.
	TransactionsSupported() bool
	Begin(ctx context.Context) error
	// AddBatch stages entities; nothing is written until Persist.
	AddBatch(ctx context.Context, entities []E) error
	// Persist writes all staged entities in one operation and returns the
	// number written.
	Persist(ctx context.Context) (int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Mapper converts a validated row model into a persistence entity.
// extra holds constant column values supplied by the caller.
type Mapper[M, E any] interface {
	Map(model M, extra map[string]any) (E, error)
}

// ExtraChecker is implemented by mappers that can reject extra column
// values up front. ProcessCSV calls it before reading any row.
type ExtraChecker interface {
	CheckExtra(extra map[string]any) error
}

// Importer runs the CSV import pipeline for row model M and entity E:
// stream-parse rows, classify parse failures, run every validator, map
// passing rows, then persist the whole batch in one transaction.
//
// An Importer can be reused for sequential imports. Concurrent calls must
// not share a Store.
type Importer[M, E any] struct {
	store      Store[E]
	mapper     Mapper[M, E]
	logger     *slog.Logger
	classifier Classifier
	validators []Validator[M]
	newReader  func(io.Reader) (RowReader[M], error)
	sizeHint   int64
}

// Option configures an Importer.
type Option[M, E any] func(*Importer[M, E])

// WithClassifier replaces the default error classifier chain.
func WithClassifier[M, E any](c Classifier) Option[M, E] {
	return func(im *Importer[M, E]) {
		if c != nil {
			im.classifier = c
		}
	}
}

// WithValidators replaces the default struct validator.
func WithValidators[M, E any](validators ...Validator[M]) Option[M, E] {
	return func(im *Importer[M, E]) {
		im.validators = append(im.validators[:0:0], validators...)
	}
}

// WithRowReader replaces the default CSV decoder.
func WithRowReader[M, E any](fn func(io.Reader) (RowReader[M], error)) Option[M, E] {
	return func(im *Importer[M, E]) {
		if fn != nil {
			im.newReader = fn
		}
	}
}

// WithSizeHint sets the expected input size, used for progress logging.
func WithSizeHint[M, E any](n int64) Option[M, E] {
	return func(im *Importer[M, E]) {
		im.sizeHint = n
	}
}

// New creates an Importer. When no classifier is configured the
// DefaultClassifier chain is used; when no validators are configured a
// StructValidator for M is installed.
func New[M, E any](store Store[E], mapper Mapper[M, E], logger *slog.Logger, opts ...Option[M, E]) (*Importer[M, E], error) {
	if store == nil {
		return nil, errors.New("importer: store is required")
	}
	if mapper == nil {
		return nil, errors.New("importer: mapper is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	im := &Importer[M, E]{
		store:     store,
		mapper:    mapper,
		logger:    logger,
		newReader: NewRowReader[M],
	}
	for _, opt := range opts {
		opt(im)
	}

	if im.classifier == nil {
		im.classifier = DefaultClassifier()
	}
	if len(im.validators) == 0 {
		sv, err := NewStructValidator[M]()
		if err != nil {
			return nil, err
		}
		im.validators = []Validator[M]{sv}
	}

	return im, nil
}

// ProcessCSV imports the CSV text in r.
//
// Row problems are collected into the returned ImportResult, and any of
// them rolls back the whole batch. When validateOnly is true, nothing is
// mapped or persisted. A non-nil error is an *AbortError: the import could
// not complete and the transaction, if any, was rolled back.
func (im *Importer[M, E]) ProcessCSV(ctx context.Context, r io.Reader, extra map[string]any, validateOnly bool) (ImportResult, error) {
	importID, ok := ImportIDFromContext(ctx)
	if !ok {
		importID = uuid.NewString()
	}
	logger := im.logger.With("import_id", importID)
	start := time.Now()

	logger.Info("starting CSV import", "validate_only", validateOnly)

	if checker, ok := im.mapper.(ExtraChecker); ok && len(extra) > 0 {
		if err := checker.CheckExtra(extra); err != nil {
			logger.Error("CSV import aborted", "error", err)
			return ImportResult{}, &AbortError{ImportID: importID, Err: fmt.Errorf("extra columns: %w", err)}
		}
	}

	supportsTx := im.store.TransactionsSupported()
	if supportsTx {
		if err := im.store.Begin(ctx); err != nil {
			logger.Error("begin transaction failed", "error", err)
			return ImportResult{}, &AbortError{ImportID: importID, Err: fmt.Errorf("begin transaction: %w", err)}
		}
	}

	// Rollback must still run when ctx is the reason for aborting.
	rollback := func() error {
		if !supportsTx {
			return nil
		}
		return im.store.Rollback(context.WithoutCancel(ctx))
	}
	abort := func(row int, err error) (ImportResult, error) {
		if rbErr := rollback(); rbErr != nil {
			logger.Error("rollback failed", "error", rbErr)
		}
		logger.Error("CSV import aborted", "row", row, "error", err)
		return ImportResult{}, &AbortError{ImportID: importID, Row: row, Err: err}
	}

	input := WrapForStreaming(r, im.sizeHint)
	reader, err := im.newReader(input)
	if err != nil {
		return abort(0, fmt.Errorf("open row reader: %w", err))
	}

	var (
		errs     []CsvError
		entities []E
		row      int
	)

	for {
		if err := ctx.Err(); err != nil {
			return abort(row, err)
		}

		model, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		row++

		if err != nil {
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				return abort(row, fmt.Errorf("read row: %w", err))
			}
			csvErr, ok := im.classifier.Classify(err, row)
			if !ok {
				csvErr = unhandled(err, row)
			}
			errs = append(errs, csvErr)
			logger.Warn("error reading CSV row", "row", row, "error", err)
			continue
		}

		passed := true
		for _, v := range im.validators {
			res, err := v.Validate(ctx, model, row)
			if err != nil {
				return abort(row, fmt.Errorf("validate row %d: %w", row, err))
			}
			if !res.Succeeded() {
				passed = false
				errs = append(errs, res.Errors()...)
			}
		}

		if validateOnly || !passed {
			continue
		}

		entity, err := im.mapper.Map(model, extra)
		if errors.Is(err, ErrInvalidFormat) {
			csvErr, _ := im.classifier.Classify(err, row)
			errs = append(errs, csvErr)
			logger.Warn("error mapping CSV row", "row", row, "error", err)
			continue
		}
		if err != nil {
			return abort(row, fmt.Errorf("map row %d: %w", row, err))
		}
		entities = append(entities, entity)
	}

	if !validateOnly && len(errs) == 0 && len(entities) > 0 {
		if err := im.store.AddBatch(ctx, entities); err != nil {
			return abort(row, fmt.Errorf("add batch: %w", err))
		}
		n, err := im.store.Persist(ctx)
		if err != nil {
			return abort(row, fmt.Errorf("persist: %w", err))
		}
		logger.Debug("batch persisted", "entities", n)
	}

	if len(errs) > 0 {
		if err := rollback(); err != nil {
			logger.Error("rollback failed", "error", err)
			return ImportResult{}, &AbortError{ImportID: importID, Row: row, Err: fmt.Errorf("rollback: %w", err)}
		}
		logger.Warn("errors occurred during CSV import",
			"error_count", len(errs),
			"rows", row,
			"bytes_read", input.BytesRead(),
		)
		return Failed(errs...), nil
	}

	if supportsTx {
		if err := im.store.Commit(ctx); err != nil {
			return abort(row, fmt.Errorf("commit: %w", err))
		}
	}

	logger.Info("CSV import completed",
		"rows", row,
		"persisted", !validateOnly && len(entities) > 0,
		"bytes_read", input.BytesRead(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Success, nil
}
