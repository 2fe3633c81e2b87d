package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/letterflow/letterflow/internal/email"
	"github.com/letterflow/letterflow/internal/metrics"
	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/provider"
	"github.com/letterflow/letterflow/internal/render"
	"github.com/letterflow/letterflow/internal/repository"
)

var (
	ErrIssueNotFound       = errors.New("issue not found")
	ErrNoActiveSubscribers = errors.New("publication has no active subscribers")
)

// ModelBuilder assembles the issue content model
type ModelBuilder interface {
	Build(issueID string, opts render.Options) (*render.Model, error)
}

// LinkRewriter shortens outbound content links, falling back to the
// input model on failure.
type LinkRewriter interface {
	Rewrite(ctx context.Context, m *render.Model) *render.Model
}

// EmailSender submits one email to the delivery provider
type EmailSender interface {
	Send(ctx context.Context, req *provider.SendRequest) (*provider.SendResponse, error)
}

// Dispatcher runs campaign sends. A campaign is accepted synchronously
// (job row created, recipient snapshot taken) and then processed in the
// background: sequential batches, full fanout within a batch, progress
// persisted after every batch.
type Dispatcher struct {
	jobs        *repository.JobRepository
	issues      *repository.IssueRepository
	subscribers *repository.SubscriberRepository
	builder     ModelBuilder
	rewriter    LinkRewriter
	sender      EmailSender
	metrics     *metrics.Metrics
	baseURL     string
	batchSize   int
	batchDelay  time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func New(
	jobs *repository.JobRepository,
	issues *repository.IssueRepository,
	subscribers *repository.SubscriberRepository,
	builder ModelBuilder,
	rewriter LinkRewriter,
	sender EmailSender,
	m *metrics.Metrics,
	baseURL string,
	batchSize int,
	batchDelay time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		jobs:        jobs,
		issues:      issues,
		subscribers: subscribers,
		builder:     builder,
		rewriter:    rewriter,
		sender:      sender,
		metrics:     m,
		baseURL:     baseURL,
		batchSize:   batchSize,
		batchDelay:  batchDelay,
		logger:      logger.With("component", "dispatch"),
	}
}

// StartCampaign validates the issue and its audience, creates a pending
// job and launches background processing. The returned job carries the
// recipient snapshot count. There is no cancellation: once accepted, a
// campaign runs to completion or failure.
func (d *Dispatcher) StartCampaign(ctx context.Context, issueID string) (*models.SendJob, error) {
	issue, err := d.issues.GetByID(issueID)
	if err != nil {
		return nil, fmt.Errorf("fetch issue: %w", err)
	}
	if issue == nil {
		return nil, ErrIssueNotFound
	}

	subs, err := d.subscribers.ListActive(issue.PublicationID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNoActiveSubscribers
	}

	job := &models.SendJob{
		PublicationID:   issue.PublicationID,
		IssueID:         issue.ID,
		TotalRecipients: len(subs),
	}
	if err := d.jobs.CreateJob(job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	d.logger.Info("campaign accepted",
		"job_id", job.ID, "issue_id", issue.ID, "recipients", len(subs))

	// Processing is detached from the request context: the HTTP response
	// returns while the send continues.
	d.wg.Add(1)
	go d.run(job, subs)

	return job, nil
}

// Wait blocks until all in-flight campaign jobs finish. Used during
// graceful shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(job *models.SendJob, subs []models.Subscriber) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("campaign panicked", "job_id", job.ID, "panic", r)
			if err := d.jobs.MarkFailed(job.ID, fmt.Sprintf("panic: %v", r)); err != nil {
				d.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
			}
		}
	}()

	ctx := context.Background()
	start := time.Now()

	d.metrics.JobsInFlight.Inc()
	defer d.metrics.JobsInFlight.Dec()

	model, err := d.builder.Build(job.IssueID, render.Options{BaseURL: d.baseURL})
	if err != nil {
		d.fail(job.ID, fmt.Errorf("build content model: %w", err))
		return
	}

	model = d.rewriter.Rewrite(ctx, model)

	if err := d.jobs.MarkProcessing(job.ID); err != nil {
		d.logger.Error("failed to mark job processing", "job_id", job.ID, "error", err)
	}

	sent, failed := 0, 0
	for batchStart := 0; batchStart < len(subs); batchStart += d.batchSize {
		batchEnd := batchStart + d.batchSize
		if batchEnd > len(subs) {
			batchEnd = len(subs)
		}
		batch := subs[batchStart:batchEnd]

		results := make([]bool, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(i int, sub models.Subscriber) {
				defer wg.Done()
				results[i] = d.sendOne(ctx, job, model, sub)
			}(i, batch[i])
		}
		wg.Wait()

		for _, ok := range results {
			if ok {
				sent++
			} else {
				failed++
			}
		}

		if err := d.jobs.UpdateProgress(job.ID, sent, failed); err != nil {
			d.logger.Error("failed to update job progress", "job_id", job.ID, "error", err)
		}

		d.logger.Info("batch settled",
			"job_id", job.ID, "batch_end", batchEnd, "total", len(subs),
			"sent", sent, "failed", failed)

		if batchEnd < len(subs) && d.batchDelay > 0 {
			time.Sleep(d.batchDelay)
		}
	}

	if err := d.jobs.MarkCompleted(job.ID, sent, failed); err != nil {
		d.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
	}
	if err := d.issues.MarkSent(job.IssueID, sent); err != nil {
		d.logger.Error("failed to mark issue sent", "issue_id", job.IssueID, "error", err)
	}

	d.metrics.CampaignDuration.Observe(time.Since(start).Seconds())
	d.logger.Info("campaign completed",
		"job_id", job.ID, "sent", sent, "failed", failed,
		"duration", time.Since(start))
}

func (d *Dispatcher) fail(jobID string, cause error) {
	d.logger.Error("campaign failed", "job_id", jobID, "error", cause)
	if err := d.jobs.MarkFailed(jobID, cause.Error()); err != nil {
		d.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// sendOne composes and sends to one subscriber, records the outcome and
// reports whether the provider accepted the message. Per-recipient
// failures never abort the campaign.
func (d *Dispatcher) sendOne(ctx context.Context, job *models.SendJob, m *render.Model, sub models.Subscriber) bool {
	personalized := m.WithUnsubscribeURL(render.UnsubscribeURL(d.baseURL, sub.UnsubscribeToken))

	msg := &models.SendMessage{
		SendJobID:    job.ID,
		SubscriberID: sub.ID,
		IssueID:      job.IssueID,
	}

	em, err := email.Compose(personalized)
	if err != nil {
		return d.recordFailure(msg, sub.Email, err)
	}

	resp, err := d.sender.Send(ctx, &provider.SendRequest{
		From:    fromAddress(m.Publication),
		To:      []string{sub.Email},
		Subject: em.Subject,
		HTML:    em.HTML,
		ReplyTo: m.Publication.ReplyTo,
		Headers: em.Headers,
	})
	if err != nil {
		return d.recordFailure(msg, sub.Email, err)
	}

	now := time.Now()
	msg.Status = models.MessageStatusSent
	msg.ProviderMessageID = resp.ID
	msg.SentAt = &now

	d.metrics.EmailsSent.Inc()
	if err := d.jobs.CreateMessage(msg); err != nil {
		// The email went out; losing the record must not flip the
		// recipient into the failed count.
		d.logger.Error("failed to record sent message",
			"job_id", job.ID, "subscriber_id", sub.ID, "error", err)
	}
	return true
}

func (d *Dispatcher) recordFailure(msg *models.SendMessage, recipient string, cause error) bool {
	msg.Status = models.MessageStatusFailed
	msg.ErrorMessage = cause.Error()

	d.metrics.EmailsFailed.Inc()
	d.logger.Warn("send failed",
		"job_id", msg.SendJobID, "subscriber_id", msg.SubscriberID, "error", cause)

	if err := d.jobs.CreateMessage(msg); err != nil {
		d.logger.Error("failed to record failed message",
			"job_id", msg.SendJobID, "subscriber_id", msg.SubscriberID, "error", err)
	}
	return false
}

// SendTest sends the issue to a single address without creating a job or
// touching issue state. The unsubscribe link points at the generic
// publication page since no subscriber exists.
func (d *Dispatcher) SendTest(ctx context.Context, issueID, recipient string) error {
	issue, err := d.issues.GetByID(issueID)
	if err != nil {
		return fmt.Errorf("fetch issue: %w", err)
	}
	if issue == nil {
		return ErrIssueNotFound
	}

	model, err := d.builder.Build(issueID, render.Options{BaseURL: d.baseURL})
	if err != nil {
		return fmt.Errorf("build content model: %w", err)
	}
	model = d.rewriter.Rewrite(ctx, model)

	em, err := email.Compose(model)
	if err != nil {
		return fmt.Errorf("compose email: %w", err)
	}

	_, err = d.sender.Send(ctx, &provider.SendRequest{
		From:    fromAddress(model.Publication),
		To:      []string{recipient},
		Subject: "[Test] " + em.Subject,
		HTML:    em.HTML,
		ReplyTo: model.Publication.ReplyTo,
	})
	if err != nil {
		return fmt.Errorf("send test email: %w", err)
	}

	d.logger.Info("test email sent", "issue_id", issueID, "recipient", recipient)
	return nil
}

func fromAddress(p render.PublicationInfo) string {
	if p.FromName != "" {
		return fmt.Sprintf("%s <%s>", p.FromName, p.FromEmail)
	}
	return p.FromEmail
}
