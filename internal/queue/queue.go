package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/internal/store"
)

// Kind identifies a background job handler.
type Kind string

const (
	KindUpsert      Kind = "upsert"
	KindUserMeta    Kind = "user-meta"
	KindConfirm     Kind = "confirm"
	KindRecovery    Kind = "recovery"
	KindUnsubReason Kind = "unsub-reason"
	KindMessage     Kind = "message"
)

// UpsertPayload is the queued form of a subscription change.
type UpsertPayload struct {
	CallType news.APICallType `json:"call_type"`
	Data     contacts.Update  `json:"data"`
}

// UserMetaPayload is the queued form of a profile-only update.
type UserMetaPayload struct {
	Token string          `json:"token"`
	Data  contacts.Update `json:"data"`
}

// ConfirmPayload is the queued form of a double opt-in confirmation.
type ConfirmPayload struct {
	Token string `json:"token"`
}

// RecoveryPayload is the queued form of a subscription recovery request.
type RecoveryPayload struct {
	Email string `json:"email"`
}

// UnsubReasonPayload is the queued form of an unsubscribe survey answer.
type UnsubReasonPayload struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// Queue enqueues background jobs. Handlers answer as soon as the job is
// durably stored; a worker applies it to CTMS later.
type Queue struct {
	store  *store.Store
	logger *zap.Logger
}

// New creates a queue backed by st.
func New(st *store.Store, logger *zap.Logger) *Queue {
	return &Queue{store: st, logger: logger}
}

func (q *Queue) enqueue(ctx context.Context, kind Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	id, err := q.store.EnqueueJob(ctx, string(kind), string(data))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}
	q.logger.Debug("enqueued job", zap.String("kind", string(kind)), zap.Int64("id", id))
	return nil
}

// EnqueueUpsert queues a subscription change.
func (q *Queue) EnqueueUpsert(ctx context.Context, callType news.APICallType, data contacts.Update) error {
	return q.enqueue(ctx, KindUpsert, UpsertPayload{CallType: callType, Data: data})
}

// EnqueueUserMeta queues a profile-only update.
func (q *Queue) EnqueueUserMeta(ctx context.Context, token string, data contacts.Update) error {
	return q.enqueue(ctx, KindUserMeta, UserMetaPayload{Token: token, Data: data})
}

// EnqueueConfirm queues a double opt-in confirmation.
func (q *Queue) EnqueueConfirm(ctx context.Context, token string) error {
	return q.enqueue(ctx, KindConfirm, ConfirmPayload{Token: token})
}

// EnqueueRecovery queues a subscription recovery email.
func (q *Queue) EnqueueRecovery(ctx context.Context, email string) error {
	return q.enqueue(ctx, KindRecovery, RecoveryPayload{Email: email})
}

// EnqueueUnsubReason queues an unsubscribe survey answer.
func (q *Queue) EnqueueUnsubReason(ctx context.Context, token, reason string) error {
	return q.enqueue(ctx, KindUnsubReason, UnsubReasonPayload{Token: token, Reason: reason})
}

// QueueMessage queues an outbound subscriber message. Satisfies
// contacts.Messenger.
func (q *Queue) QueueMessage(ctx context.Context, msg contacts.Message) error {
	return q.enqueue(ctx, KindMessage, msg)
}
