// Package worker executes the fetch/extract/store pipeline for one record
// at a time.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/patronemptor/titlesvc/internal/metrics"
	"github.com/patronemptor/titlesvc/internal/titles"
)

// Worker consumes dispatch tasks and drives records to a terminal state.
type Worker struct {
	queue   titles.Queue
	records titles.RecordStore
	blobs   titles.BlobStore
	fetcher titles.Fetcher
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	queue titles.Queue,
	records titles.RecordStore,
	blobs titles.BlobStore,
	fetcher titles.Fetcher,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		records: records,
		blobs:   blobs,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.Process(ctx, task)
	}
}

// Process handles a single task. Dispatch is at-least-once, so the record's
// current state is read before acting and a record already in a terminal
// state is left untouched. Every failure after the record was read drives
// it to FAILED in a single update; the record is never half-written.
func (w *Worker) Process(ctx context.Context, task titles.Task) {
	logger := w.logger.With(zap.String("req_id", task.ReqID))

	rec, err := w.records.Get(ctx, task.ReqID)
	if err != nil {
		if errors.Is(err, titles.ErrNotFound) {
			// No record to update and nobody to report to.
			logger.Warn("no record for dispatched task")
			metrics.CountJob("skipped")
			return
		}
		logger.Error("record read failed", zap.String("stage", "get"), zap.Error(err))
		metrics.CountJob("failed")
		return
	}

	if rec.State.IsTerminal() {
		logger.Debug("record already terminal", zap.String("state", string(rec.State)))
		metrics.CountJob("skipped")
		return
	}

	start := time.Now()
	content, err := w.fetcher.Fetch(ctx, rec.URL)
	metrics.ObserveFetch(time.Since(start))
	if err != nil {
		w.fail(ctx, logger, task.ReqID, "fetch", err)
		return
	}

	title, err := titles.ExtractTitle(content)
	if err != nil {
		w.fail(ctx, logger, task.ReqID, "extract", err)
		return
	}

	blobURL, err := w.blobs.Put(ctx, content)
	if err != nil {
		w.fail(ctx, logger, task.ReqID, "store", err)
		return
	}

	if err := w.records.UpdateTerminal(ctx, task.ReqID, titles.StateProcessed, title, blobURL); err != nil {
		logger.Error("terminal update failed",
			zap.String("stage", "update"),
			zap.String("title", title),
			zap.String("blob_url", blobURL),
			zap.Error(err),
		)
		metrics.CountJob("failed")
		return
	}

	logger.Info("record processed",
		zap.String("url", rec.URL),
		zap.String("title", title),
		zap.String("blob_url", blobURL),
	)
	metrics.CountJob("processed")
}

// fail moves the record to FAILED so it does not sit in PENDING forever.
// The diagnostic stays in the logs; the record carries no result fields.
func (w *Worker) fail(ctx context.Context, logger *zap.Logger, reqID, stage string, cause error) {
	logger.Error("processing failed", zap.String("stage", stage), zap.Error(cause))
	if err := w.records.UpdateTerminal(ctx, reqID, titles.StateFailed, "", ""); err != nil {
		logger.Error("failed-state update failed", zap.String("stage", stage), zap.Error(err))
	}
	metrics.CountJob("failed")
}
