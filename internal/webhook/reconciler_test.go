package webhook

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/letterflow/letterflow/internal/db"
	"github.com/letterflow/letterflow/internal/metrics"
	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/repository"
)

type env struct {
	jobs        *repository.JobRepository
	issues      *repository.IssueRepository
	subscribers *repository.SubscriberRepository
	reconciler  *Reconciler
	issue       *models.Issue
	sub         *models.Subscriber
	msg         *models.SendMessage
}

func setup(t *testing.T) *env {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	e := &env{
		jobs:        repository.NewJobRepository(conn),
		issues:      repository.NewIssueRepository(conn),
		subscribers: repository.NewSubscriberRepository(conn),
	}

	pubs := repository.NewPublicationRepository(conn)
	pub := &models.Publication{Slug: "weekly", Name: "The Weekly", FromName: "The Weekly", FromEmail: "news@weekly.test"}
	if err := pubs.Create(pub); err != nil {
		t.Fatalf("create publication: %v", err)
	}

	e.issue = &models.Issue{PublicationID: pub.ID, Slug: "issue-1", Subject: "Issue #1"}
	if err := e.issues.Create(e.issue); err != nil {
		t.Fatalf("create issue: %v", err)
	}

	e.sub = &models.Subscriber{PublicationID: pub.ID, Email: "r@example.com"}
	if err := e.subscribers.Create(e.sub); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}
	if err := e.subscribers.Confirm(e.sub.ID); err != nil {
		t.Fatalf("confirm subscriber: %v", err)
	}

	job := &models.SendJob{PublicationID: pub.ID, IssueID: e.issue.ID, TotalRecipients: 1}
	if err := e.jobs.CreateJob(job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	now := time.Now()
	e.msg = &models.SendMessage{
		SendJobID:         job.ID,
		SubscriberID:      e.sub.ID,
		IssueID:           e.issue.ID,
		ProviderMessageID: "prov-1",
		Status:            models.MessageStatusSent,
		SentAt:            &now,
	}
	if err := e.jobs.CreateMessage(e.msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.reconciler = NewReconciler(e.jobs, e.issues, e.subscribers, metrics.New(), logger)
	return e
}

func (e *env) process(t *testing.T, eventType, emailID string) {
	t.Helper()
	if err := e.reconciler.Process(&Event{Type: eventType, Data: EventData{EmailID: emailID}}); err != nil {
		t.Fatalf("Process(%s): %v", eventType, err)
	}
}

func TestProcessDelivered(t *testing.T) {
	e := setup(t)
	e.process(t, EventDelivered, "prov-1")

	got, _ := e.jobs.GetMessage(e.msg.ID)
	if got.Status != models.MessageStatusDelivered {
		t.Errorf("status = %q, want delivered", got.Status)
	}
	if got.DeliveredAt == nil {
		t.Error("expected delivered_at to be set")
	}
}

func TestProcessOpenCountsOnce(t *testing.T) {
	e := setup(t)

	e.process(t, EventOpened, "prov-1")
	e.process(t, EventOpened, "prov-1")
	e.process(t, EventOpened, "prov-1")

	issue, _ := e.issues.GetByID(e.issue.ID)
	if issue.OpenCount != 1 {
		t.Errorf("open count = %d, want 1", issue.OpenCount)
	}
	msg, _ := e.jobs.GetMessage(e.msg.ID)
	if msg.OpenedAt == nil {
		t.Error("expected opened_at to be set")
	}
}

func TestProcessClickCountsOnce(t *testing.T) {
	e := setup(t)

	e.process(t, EventClicked, "prov-1")
	e.process(t, EventClicked, "prov-1")

	issue, _ := e.issues.GetByID(e.issue.ID)
	if issue.ClickCount != 1 {
		t.Errorf("click count = %d, want 1", issue.ClickCount)
	}
}

func TestProcessBounceSuppressesSubscriber(t *testing.T) {
	e := setup(t)

	err := e.reconciler.Process(&Event{
		Type: EventBounced,
		Data: EventData{EmailID: "prov-1", Reason: "mailbox full"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	msg, _ := e.jobs.GetMessage(e.msg.ID)
	if msg.Status != models.MessageStatusBounced {
		t.Errorf("message status = %q, want bounced", msg.Status)
	}
	if msg.ErrorMessage != "mailbox full" {
		t.Errorf("error message = %q", msg.ErrorMessage)
	}

	sub, _ := e.subscribers.GetByID(e.sub.ID)
	if sub.Status != models.SubscriberStatusBounced {
		t.Errorf("subscriber status = %q, want bounced", sub.Status)
	}
	if sub.BouncedAt == nil {
		t.Error("expected bounced_at to be set")
	}
}

func TestProcessComplaintSuppressesSubscriber(t *testing.T) {
	e := setup(t)
	e.process(t, EventComplained, "prov-1")

	sub, _ := e.subscribers.GetByID(e.sub.ID)
	if sub.Status != models.SubscriberStatusComplained {
		t.Errorf("subscriber status = %q, want complained", sub.Status)
	}
}

func TestProcessUnknownMessageIsAcked(t *testing.T) {
	e := setup(t)

	// Test sends and foreign messages have no record; the event is
	// dropped without error so the provider stops retrying.
	e.process(t, EventOpened, "never-seen")

	issue, _ := e.issues.GetByID(e.issue.ID)
	if issue.OpenCount != 0 {
		t.Errorf("open count = %d, want 0", issue.OpenCount)
	}
}

func TestProcessUnknownEventType(t *testing.T) {
	e := setup(t)
	e.process(t, "email.scheduled", "prov-1")

	msg, _ := e.jobs.GetMessage(e.msg.ID)
	if msg.Status != models.MessageStatusSent {
		t.Errorf("status = %q, want unchanged", msg.Status)
	}
}

func TestProcessDeliveryDelayed(t *testing.T) {
	e := setup(t)
	e.process(t, EventDeliveryDelayed, "prov-1")

	msg, _ := e.jobs.GetMessage(e.msg.ID)
	if msg.Status != models.MessageStatusSent {
		t.Errorf("status = %q, want unchanged", msg.Status)
	}
}
