package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service"
	"github.com/RubachokBoss/exam-grading/import-service/internal/worker/queue"
	"github.com/rs/zerolog"
)

// ImportWorker turns import requests arriving on the message queue into
// import jobs.
type ImportWorker interface {
	Start(ctx context.Context) error
	Stop() error
	HandleMessage(ctx context.Context, d queue.ImportDelivery)
	GetStats() WorkerStats
}

type WorkerStats struct {
	ActiveWorkers int `json:"active_workers"`
	QueueLength   int `json:"queue_length"`
	Received      int `json:"received"`
	JobsSubmitted int `json:"jobs_submitted"`
	Rejected      int `json:"rejected"`
	Requeued      int `json:"requeued"`
	BrokerBacklog int `json:"broker_backlog"`
	BrokerReaders int `json:"broker_consumers"`
	UptimeSeconds int `json:"uptime_seconds"`
}

type importWorker struct {
	workerPool    *WorkerPool
	queueConsumer queue.ImportRequestConsumer
	importService service.ImportService
	logger        zerolog.Logger
	stats         WorkerStats
	statsMutex    sync.RWMutex
	startTime     time.Time
	done          chan struct{}
}

func NewImportWorker(
	workerPool *WorkerPool,
	queueConsumer queue.ImportRequestConsumer,
	importService service.ImportService,
	logger zerolog.Logger,
) ImportWorker {
	return &importWorker{
		workerPool:    workerPool,
		queueConsumer: queueConsumer,
		importService: importService,
		logger:        logger,
		startTime:     time.Now(),
		done:          make(chan struct{}),
	}
}

func (w *importWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting import worker...")

	msgs, err := w.queueConsumer.Consume(ctx)
	if err != nil {
		close(w.done)
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Import worker started successfully")
	return nil
}

func (w *importWorker) Stop() error {
	w.logger.Info().Msg("Stopping import worker...")

	if err := w.queueConsumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		w.logger.Warn().Msg("Timed out waiting for message loop to exit")
	}

	w.statsMutex.RLock()
	w.logger.Info().
		Int("received", w.stats.Received).
		Int("jobs_submitted", w.stats.JobsSubmitted).
		Int("rejected", w.stats.Rejected).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Import worker stopped")
	w.statsMutex.RUnlock()

	return nil
}

func (w *importWorker) processMessages(ctx context.Context, msgs <-chan queue.ImportDelivery) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}
			w.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage acks the delivery when the request was accepted, rejects it
// when it can never be accepted, and requeues it otherwise.
func (w *importWorker) HandleMessage(ctx context.Context, d queue.ImportDelivery) {
	w.statsMutex.Lock()
	w.stats.Received++
	w.statsMutex.Unlock()

	logger := w.logger.With().Str("message_id", d.MessageID).Bool("redelivered", d.Redelivered).Logger()

	resp, err := w.submit(ctx, d)
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			logger.Error().Err(ackErr).Msg("Failed to ack import request")
		}

		w.statsMutex.Lock()
		w.stats.JobsSubmitted++
		w.statsMutex.Unlock()

		logger.Info().Str("job_id", resp.JobID).Msg("Import job created from queue message")
		return
	}

	logger.Error().Err(err).Msg("Failed to process import request")

	if isPermanentError(err) {
		w.statsMutex.Lock()
		w.stats.Rejected++
		w.statsMutex.Unlock()

		if rejectErr := d.Reject(); rejectErr != nil {
			logger.Error().Err(rejectErr).Msg("Failed to reject import request")
		}
		return
	}

	w.statsMutex.Lock()
	w.stats.Requeued++
	w.statsMutex.Unlock()

	if requeueErr := d.Requeue(); requeueErr != nil {
		logger.Error().Err(requeueErr).Msg("Failed to requeue import request")
	}
}

func (w *importWorker) submit(ctx context.Context, d queue.ImportDelivery) (*models.SubmitImportResponse, error) {
	if d.Err != nil {
		return nil, permanent(d.Err)
	}
	event := d.Request

	w.logger.Info().
		Str("archive_path", event.ArchivePath).
		Str("exam_id", event.ExamID).
		Msg("Processing import request")

	resp, err := w.importService.SubmitImport(ctx, models.SubmitImportRequest{
		ArchivePath: event.ArchivePath,
		ArchiveName: event.ArchiveName,
		SubjectID:   event.SubjectID,
		SemesterID:  event.SemesterID,
		ExamID:      event.ExamID,
		UploadedBy:  event.UploadedBy,
	})
	if err != nil {
		if service.KindOf(err) == service.KindValidation {
			return nil, permanent(err)
		}
		return nil, err
	}

	return resp, nil
}

func (w *importWorker) GetStats() WorkerStats {
	w.statsMutex.RLock()
	stats := w.stats
	w.statsMutex.RUnlock()

	depth, err := w.queueConsumer.Depth()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get import queue depth")
	} else {
		stats.BrokerBacklog = depth.Messages
		stats.BrokerReaders = depth.Consumers
	}

	stats.ActiveWorkers = w.workerPool.GetActiveWorkers()
	stats.QueueLength = w.workerPool.GetQueueLength()
	stats.UptimeSeconds = int(time.Since(w.startTime).Seconds())

	return stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
