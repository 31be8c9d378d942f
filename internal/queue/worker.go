package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/mailer"
	"github.com/pannier-io/pannier/internal/store"
	"github.com/pannier-io/pannier/pkg/codes"
	"github.com/pannier-io/pannier/pkg/ctms"
)

// Worker drains the job queue one job at a time, in insertion order.
// Transient failures are retried with exponential backoff; jobs that
// exhaust their retries land in the failed_jobs table.
type Worker struct {
	store        *store.Store
	contacts     *contacts.Service
	sender       mailer.Sender
	logger       *zap.Logger
	pollInterval time.Duration
	maxAttempts  uint
}

// NewWorker creates a worker.
func NewWorker(st *store.Store, svc *contacts.Service, sender mailer.Sender, logger *zap.Logger, pollInterval time.Duration, maxAttempts int) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	return &Worker{
		store:        st,
		contacts:     svc,
		sender:       sender,
		logger:       logger,
		pollInterval: pollInterval,
		maxAttempts:  uint(maxAttempts),
	}
}

// Run processes jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	// Recover jobs a previous worker left mid-flight.
	if n, err := w.store.ResetRunningJobs(ctx); err != nil {
		return fmt.Errorf("failed to reset running jobs: %w", err)
	} else if n > 0 {
		w.logger.Info("requeued stranded jobs", zap.Int64("count", n))
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if err := w.drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain claims and processes jobs until the queue is empty or ctx ends.
func (w *Worker) drain(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.store.ClaimJob(ctx)
		if err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}
		if job == nil {
			return nil
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *store.Job) {
	logger := w.logger.With(zap.Int64("job_id", job.ID), zap.String("kind", job.Kind))

	err := retry.Do(
		func() error { return w.handle(ctx, job) },
		retry.Context(ctx),
		retry.Attempts(w.maxAttempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(time.Minute),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && retryable(err)
		}),
	)

	// Bookkeeping must happen even when ctx is already canceled.
	bg := context.Background()

	if err == nil {
		if err := w.store.CompleteJob(bg, job.ID); err != nil {
			logger.Error("failed to complete job", zap.Error(err))
		}
		logger.Debug("job done")
		return
	}

	if ctx.Err() != nil {
		// Shutting down, give the job back for the next run.
		if err := w.store.ReleaseJob(bg, job.ID); err != nil {
			logger.Error("failed to release job", zap.Error(err))
		}
		return
	}

	logger.Error("job failed", zap.Error(err), zap.Int("attempts", job.Attempts))
	if err := w.store.FailJob(bg, job, err.Error()); err != nil {
		logger.Error("failed to record job failure", zap.Error(err))
	}
}

func (w *Worker) handle(ctx context.Context, job *store.Job) error {
	switch Kind(job.Kind) {
	case KindUpsert:
		var p UpsertPayload
		if err := unmarshalPayload(job.Payload, &p); err != nil {
			return err
		}
		_, _, err := w.contacts.Upsert(ctx, p.CallType, p.Data)
		return err

	case KindUserMeta:
		var p UserMetaPayload
		if err := unmarshalPayload(job.Payload, &p); err != nil {
			return err
		}
		return w.contacts.UpdateMeta(ctx, p.Token, p.Data)

	case KindConfirm:
		var p ConfirmPayload
		if err := unmarshalPayload(job.Payload, &p); err != nil {
			return err
		}
		return w.contacts.Confirm(ctx, p.Token)

	case KindRecovery:
		var p RecoveryPayload
		if err := unmarshalPayload(job.Payload, &p); err != nil {
			return err
		}
		err := w.contacts.SendRecovery(ctx, p.Email)
		var statusErr *contacts.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == codes.UnknownEmail {
			// Nothing to recover, do not leak that to retries.
			w.logger.Warn("recovery requested for unknown email")
			return nil
		}
		return err

	case KindUnsubReason:
		var p UnsubReasonPayload
		if err := unmarshalPayload(job.Payload, &p); err != nil {
			return err
		}
		return w.contacts.SetUnsubReason(ctx, p.Token, p.Reason)

	case KindMessage:
		var m contacts.Message
		if err := unmarshalPayload(job.Payload, &m); err != nil {
			return err
		}
		return w.sender.Send(ctx, m)

	default:
		return retry.Unrecoverable(fmt.Errorf("unknown job kind %q", job.Kind))
	}
}

func unmarshalPayload(payload string, out any) error {
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to unmarshal payload: %w", err))
	}
	return nil
}

// retryable reports whether the error can plausibly clear up on its own.
// Semantic errors (unknown token, invalid data) never will.
func retryable(err error) bool {
	var statusErr *contacts.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case codes.NetworkFailure, codes.EmailProviderAuthFailure, codes.UnknownError:
			return true
		}
		return false
	}
	if ctms.IsClientError(err) {
		return false
	}
	return true
}
