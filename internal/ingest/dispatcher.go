package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher schedules an ingestion run for a document.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// Runner is the part of Orchestrator a dispatcher drives.
type Runner interface {
	Run(ctx context.Context, documentID string) (*Result, error)
}

// LocalDispatcher runs ingestion on a goroutine of this process. Runs are
// detached from the triggering request and bounded by timeout.
type LocalDispatcher struct {
	runner  Runner
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocalDispatcher(runner Runner, timeout time.Duration, logger *zap.Logger) *LocalDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		runner:  runner,
		timeout: timeout,
		logger:  logger.Named("dispatcher"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, documentID string) error {
	if d.ctx.Err() != nil {
		return errors.New("dispatcher closed")
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
		defer cancel()
		if _, err := d.runner.Run(ctx, documentID); err != nil {
			if errors.Is(err, ErrInProgress) {
				d.logger.Debug("ingestion already running", zap.String("document_id", documentID))
				return
			}
			d.logger.Warn("ingestion run failed", zap.String("document_id", documentID), zap.Error(err))
		}
	}()
	return nil
}

// Close cancels in-flight runs and waits for them to record their state.
func (d *LocalDispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
