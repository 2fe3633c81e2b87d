package webhook

import (
	"fmt"
	"log/slog"

	"github.com/letterflow/letterflow/internal/metrics"
	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/repository"
)

// Provider event types
const (
	EventSent            = "email.sent"
	EventDelivered       = "email.delivered"
	EventDeliveryDelayed = "email.delivery_delayed"
	EventOpened          = "email.opened"
	EventClicked         = "email.clicked"
	EventBounced         = "email.bounced"
	EventComplained      = "email.complained"
)

// Event is a parsed provider webhook payload
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	EmailID string `json:"email_id"`
	Reason  string `json:"reason,omitempty"`
}

// Reconciler folds asynchronous provider delivery events into message,
// issue and subscriber state. Processing is designed to be safely
// re-runnable: providers retry webhook deliveries, so every transition
// must tolerate duplicates.
type Reconciler struct {
	jobs        *repository.JobRepository
	issues      *repository.IssueRepository
	subscribers *repository.SubscriberRepository
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewReconciler(
	jobs *repository.JobRepository,
	issues *repository.IssueRepository,
	subscribers *repository.SubscriberRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		jobs:        jobs,
		issues:      issues,
		subscribers: subscribers,
		metrics:     m,
		logger:      logger.With("component", "webhook"),
	}
}

// Process applies one event. A nil return means the event was handled
// or deliberately ignored; the caller should acknowledge either way so
// the provider stops retrying. Events referencing unknown messages
// (test sends, messages from before this system) are logged and
// dropped.
func (r *Reconciler) Process(ev *Event) error {
	r.metrics.WebhookEvents.WithLabelValues(ev.Type).Inc()

	if ev.Data.EmailID == "" {
		r.logger.Warn("webhook event without email_id", "type", ev.Type)
		return nil
	}

	msg, err := r.jobs.GetMessageByProviderID(ev.Data.EmailID)
	if err != nil {
		return fmt.Errorf("lookup message: %w", err)
	}
	if msg == nil {
		r.logger.Info("webhook event for unknown message",
			"type", ev.Type, "provider_message_id", ev.Data.EmailID)
		return nil
	}

	switch ev.Type {
	case EventSent:
		return r.jobs.MarkMessageSent(msg.ID)

	case EventDelivered:
		return r.jobs.MarkMessageDelivered(msg.ID)

	case EventOpened:
		return r.recordOpen(msg)

	case EventClicked:
		return r.recordClick(msg)

	case EventBounced:
		return r.recordBounce(msg, ev.Data.Reason)

	case EventComplained:
		return r.recordComplaint(msg)

	case EventDeliveryDelayed:
		r.logger.Warn("delivery delayed",
			"message_id", msg.ID, "provider_message_id", ev.Data.EmailID)
		return nil

	default:
		r.logger.Info("unhandled webhook event type", "type", ev.Type)
		return nil
	}
}

// recordOpen stamps the message's first open and bumps the issue open
// counter only for that first occurrence. Repeat opens and provider
// retries change nothing.
func (r *Reconciler) recordOpen(msg *models.SendMessage) error {
	first, err := r.jobs.SetOpened(msg.ID)
	if err != nil {
		return fmt.Errorf("set opened: %w", err)
	}
	if !first {
		return nil
	}
	if err := r.issues.IncrementOpenCount(msg.IssueID); err != nil {
		return fmt.Errorf("increment open count: %w", err)
	}
	return nil
}

func (r *Reconciler) recordClick(msg *models.SendMessage) error {
	first, err := r.jobs.SetClicked(msg.ID)
	if err != nil {
		return fmt.Errorf("set clicked: %w", err)
	}
	if !first {
		return nil
	}
	if err := r.issues.IncrementClickCount(msg.IssueID); err != nil {
		return fmt.Errorf("increment click count: %w", err)
	}
	return nil
}

// recordBounce marks the message bounced and suppresses the subscriber
// from future sends.
func (r *Reconciler) recordBounce(msg *models.SendMessage, reason string) error {
	if err := r.jobs.UpdateMessageStatus(msg.ID, models.MessageStatusBounced, reason); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if err := r.subscribers.MarkBounced(msg.SubscriberID); err != nil {
		return fmt.Errorf("mark subscriber bounced: %w", err)
	}
	r.logger.Info("subscriber bounced",
		"subscriber_id", msg.SubscriberID, "message_id", msg.ID, "reason", reason)
	return nil
}

func (r *Reconciler) recordComplaint(msg *models.SendMessage) error {
	if err := r.jobs.UpdateMessageStatus(msg.ID, models.MessageStatusComplained, ""); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if err := r.subscribers.MarkComplained(msg.SubscriberID); err != nil {
		return fmt.Errorf("mark subscriber complained: %w", err)
	}
	r.logger.Info("subscriber complained",
		"subscriber_id", msg.SubscriberID, "message_id", msg.ID)
	return nil
}
