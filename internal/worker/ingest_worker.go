// Package worker consumes ingestion jobs from RabbitMQ.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"paperchat/internal/ingest"
	"paperchat/internal/platform/rabbitmq"
)

// IngestWorker runs the orchestrator for every job on the ingest queue. A
// run that fails has already recorded the Failed state on its document, so
// the delivery is acked either way; only undecodable payloads are dropped
// with a nack.
type IngestWorker struct {
	conn       *amqp.Connection
	runner     ingest.Runner
	queueName  string
	runTimeout time.Duration
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner ingest.Runner, queueName string, runTimeout time.Duration, logger *zap.Logger) *IngestWorker {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestWorker{
		conn:       conn,
		runner:     runner,
		queueName:  queueName,
		runTimeout: runTimeout,
		logger:     logger.Named("worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	// One unacked job at a time per worker; ingestion is long-running.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.logger.Info("ingest worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job rabbitmq.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.DocumentID == "" {
		w.logger.Warn("drop undecodable ingest job", zap.ByteString("body", d.Body), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.process(ctx, job); err != nil && ctx.Err() != nil {
		// shutting down mid-run; let another consumer take the job
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (w *IngestWorker) process(ctx context.Context, job rabbitmq.IngestJob) error {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	res, err := w.runner.Run(runCtx, job.DocumentID)
	switch {
	case errors.Is(err, ingest.ErrInProgress):
		w.logger.Debug("ingestion already running", zap.String("document_id", job.DocumentID))
		return nil
	case errors.Is(err, ingest.ErrDocumentNotFound):
		w.logger.Warn("ingest job for unknown document", zap.String("document_id", job.DocumentID))
		return nil
	case err != nil:
		w.logger.Warn("ingestion failed", zap.String("document_id", job.DocumentID), zap.Error(err))
		return err
	}
	w.logger.Info("ingest job done",
		zap.String("document_id", job.DocumentID),
		zap.Bool("skipped", res.Skipped),
		zap.Int("chunks", res.Progress.Completed),
	)
	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
