// Package ingest drives a document through extraction, splitting, embedding
// and storage, recording its state on the document row as it goes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paperchat/internal/lock"
	"paperchat/internal/model"
	"paperchat/internal/rag"
	"paperchat/internal/splitter"
)

var (
	ErrInProgress       = errors.New("ingestion already running for this document")
	ErrDocumentNotFound = model.ErrDocumentNotFound
	errInconsistentSet  = errors.New("stored chunks do not match the document split")
)

type TextExtractor interface {
	Extract(ctx context.Context, rawURL string) (string, error)
}

// ChunkStore is the chunk persistence the orchestrator needs, including the
// stored sequence numbers used to resume a partial run.
type ChunkStore interface {
	rag.ChunkStore
	ListSeqs(ctx context.Context, documentID string) ([]int, error)
}

type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*model.Document, error)
	UpdateProgress(ctx context.Context, id string, p model.Progress) error
}

type ProgressPublisher interface {
	Publish(p model.Progress) error
}

type Config struct {
	// Workers bounds concurrent embed-and-store steps; 1 keeps strict
	// sequence order.
	Workers     int
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	// LockTTL is the lease length; a running ingestion renews it every
	// LockTTL/3.
	LockTTL time.Duration
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Minute
	}
}

type Orchestrator struct {
	extractor TextExtractor
	splitter  *splitter.Splitter
	embedder  rag.Embedder
	chunks    ChunkStore
	docs      DocumentStore
	locker    lock.Locker
	publisher ProgressPublisher
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewOrchestrator(
	extractor TextExtractor,
	split *splitter.Splitter,
	embedder rag.Embedder,
	chunks ChunkStore,
	docs DocumentStore,
	locker lock.Locker,
	publisher ProgressPublisher,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		extractor: extractor,
		splitter:  split,
		embedder:  embedder,
		chunks:    chunks,
		docs:      docs,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("ingest"),
		tracer:    otel.Tracer("paperchat/ingest"),
	}
}

// Result summarizes one run.
type Result struct {
	Progress model.Progress `json:"progress"`
	// Skipped is set when the document already had its full chunk set.
	Skipped bool `json:"skipped"`
	// Resumed counts chunks found from an earlier partial run.
	Resumed int `json:"resumed"`
}

// Run ingests one document. Only one run per document executes at a time;
// a concurrent call returns ErrInProgress. A document that already has its
// chunks is marked complete without new writes, and a partial set left by a
// failed run is completed rather than rebuilt.
func (o *Orchestrator) Run(ctx context.Context, documentID string) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "ingest.Run", trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	lease, err := o.locker.Acquire(ctx, "ingest:"+documentID, o.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, ErrInProgress
		}
		return nil, fmt.Errorf("acquire ingestion lock failed: %w", err)
	}
	defer lease.Release()
	ctx, stopKeepAlive := lease.KeepAlive(ctx, o.cfg.LockTTL)
	defer stopKeepAlive()

	doc, err := o.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	run := &run{o: o, doc: doc, progress: model.Progress{DocumentID: doc.ID, Expected: doc.ChunksExpected}}

	count, err := o.chunks.CountByDocument(ctx, doc.ID)
	if err != nil {
		return nil, run.abort(ctx, err)
	}
	run.progress.Completed = count
	if count > 0 && (doc.State == model.StateComplete || doc.ChunksExpected == 0 || count >= doc.ChunksExpected) {
		run.progress.Expected = count
		if err := run.record(ctx, model.StateComplete); err != nil {
			return nil, run.abort(ctx, err)
		}
		o.logger.Info("document already ingested", zap.String("document_id", doc.ID), zap.Int("chunks", count))
		return &Result{Progress: run.progress, Skipped: true}, nil
	}

	result, err := run.execute(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, run.abort(ctx, err)
	}
	return result, nil
}

// abort ends a failed run. A run that lost its lease leaves the document to
// the new owner; a run whose document was deleted removes what it stored.
// Any other failure is recorded on the document.
func (r *run) abort(ctx context.Context, cause error) error {
	if lost := context.Cause(ctx); errors.Is(lost, lock.ErrLost) {
		r.o.logger.Error("ingestion lock lost, abandoning run", zap.String("document_id", r.doc.ID), zap.Error(lost))
		return fmt.Errorf("ingestion aborted: %w", lost)
	}
	if errors.Is(cause, ErrDocumentNotFound) {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.o.chunks.DeleteByDocument(cleanupCtx, r.doc.ID); err != nil {
			r.o.logger.Error("remove chunks of deleted document failed", zap.String("document_id", r.doc.ID), zap.Error(err))
		}
		r.o.logger.Warn("document deleted during ingestion", zap.String("document_id", r.doc.ID))
		return cause
	}
	return r.fail(ctx, cause)
}

// run holds the mutable state of one ingestion.
type run struct {
	o   *Orchestrator
	doc *model.Document

	mu       sync.Mutex
	progress model.Progress
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	o := r.o
	if err := r.record(ctx, model.StateExtracting); err != nil {
		return nil, err
	}
	text, err := r.extract(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.record(ctx, model.StateSplitting); err != nil {
		return nil, err
	}
	segments := o.splitter.Split(text)
	if len(segments) == 0 {
		return nil, rag.NewError(rag.KindSplit, "split", errors.New("document text is empty"))
	}

	stored, err := o.chunks.ListSeqs(ctx, r.doc.ID)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(stored))
	for _, seq := range stored {
		if seq < 1 || seq > len(segments) {
			return nil, errInconsistentSet
		}
		done[seq] = true
	}

	r.mu.Lock()
	r.progress.Completed = len(done)
	r.progress.Expected = len(segments)
	r.mu.Unlock()
	if err := r.record(ctx, model.StateEmbedding); err != nil {
		return nil, err
	}
	if len(done) > 0 {
		o.logger.Info("resuming ingestion",
			zap.String("document_id", r.doc.ID),
			zap.Int("stored", len(done)),
			zap.Int("expected", len(segments)),
		)
	}

	if err := r.embedAll(ctx, segments, done); err != nil {
		return nil, err
	}

	count, err := o.chunks.CountByDocument(ctx, r.doc.ID)
	if err != nil {
		return nil, err
	}
	if count != len(segments) {
		return nil, fmt.Errorf("%w: stored %d of %d", errInconsistentSet, count, len(segments))
	}
	if err := r.record(ctx, model.StateComplete); err != nil {
		return nil, err
	}
	o.logger.Info("document ingested", zap.String("document_id", r.doc.ID), zap.Int("chunks", count))
	return &Result{Progress: r.snapshot(), Resumed: len(done)}, nil
}

func (r *run) extract(ctx context.Context) (string, error) {
	ctx, span := r.o.tracer.Start(ctx, "ingest.extract")
	defer span.End()
	text, err := r.o.extractor.Extract(ctx, r.doc.SourceURL)
	if err != nil {
		var re *rag.Error
		if !errors.As(err, &re) {
			err = rag.NewError(rag.KindExtraction, "extract", err)
		}
		return "", err
	}
	span.SetAttributes(attribute.Int("text.length", len(text)))
	return text, nil
}

// embedAll embeds and stores every segment whose sequence number is not in
// done. The progress counter advances once per stored chunk.
func (r *run) embedAll(ctx context.Context, segments []string, done map[int]bool) error {
	ctx, span := r.o.tracer.Start(ctx, "ingest.embed", trace.WithAttributes(attribute.Int("chunks.expected", len(segments))))
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.Workers)
	for i, text := range segments {
		text := text
		seq := i + 1
		if done[seq] {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := r.embedWithRetry(gctx, seq, text)
			if err != nil {
				return err
			}
			chunk := rag.Chunk{DocumentID: r.doc.ID, Seq: seq, Text: text, Embedding: vec}
			if err := r.o.chunks.Put(gctx, chunk); err != nil {
				return fmt.Errorf("store chunk %d failed: %w", seq, err)
			}
			return r.advance(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *run) embedWithRetry(ctx context.Context, seq int, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.o.cfg.MaxAttempts; attempt++ {
		vec, err := r.o.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !rag.IsRetryable(err) || attempt == r.o.cfg.MaxAttempts-1 {
			break
		}
		delay := r.o.retryDelay(attempt)
		r.o.logger.Warn("embed chunk failed, retrying",
			zap.String("document_id", r.doc.ID),
			zap.Int("seq", seq),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	var re *rag.Error
	if !errors.As(lastErr, &re) {
		lastErr = rag.NewError(rag.KindEmbedding, "embed", lastErr)
	}
	return nil, fmt.Errorf("embed chunk %d failed: %w", seq, lastErr)
}

// retryDelay is exponential backoff from RetryBase capped at RetryMax.
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	d := o.cfg.RetryBase << attempt
	if d <= 0 || d > o.cfg.RetryMax {
		d = o.cfg.RetryMax
	}
	return d
}

func (r *run) advance(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Completed++
	return r.recordLocked(ctx, model.StateEmbedding)
}

func (r *run) record(ctx context.Context, state model.IngestState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordLocked(ctx, state)
}

func (r *run) recordLocked(ctx context.Context, state model.IngestState) error {
	r.progress.State = state
	if err := r.o.docs.UpdateProgress(ctx, r.doc.ID, r.progress); err != nil {
		return fmt.Errorf("record ingestion state %s failed: %w", state, err)
	}
	if r.o.publisher != nil {
		if err := r.o.publisher.Publish(r.progress); err != nil {
			r.o.logger.Warn("publish progress failed", zap.String("document_id", r.doc.ID), zap.Error(err))
		}
	}
	return nil
}

func (r *run) snapshot() model.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// fail marks the document failed. The state is written even when ctx was
// canceled so the document does not stay in a running state.
func (r *run) fail(ctx context.Context, cause error) error {
	r.o.logger.Error("ingestion failed", zap.String("document_id", r.doc.ID), zap.Error(cause))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	r.mu.Lock()
	r.progress.FailureReason = cause.Error()
	err := r.recordLocked(writeCtx, model.StateFailed)
	r.mu.Unlock()
	if err != nil {
		r.o.logger.Error("record failure state failed", zap.String("document_id", r.doc.ID), zap.Error(err))
	}
	return cause
}
