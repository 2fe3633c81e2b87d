package repository

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/letterflow/letterflow/internal/db"
	"github.com/letterflow/letterflow/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return conn
}

func createTestPublication(t *testing.T, conn *sql.DB) *models.Publication {
	t.Helper()
	repo := NewPublicationRepository(conn)
	pub := &models.Publication{
		Slug:      "weekly",
		Name:      "The Weekly",
		FromName:  "The Weekly",
		FromEmail: "news@weekly.test",
	}
	if err := repo.Create(pub); err != nil {
		t.Fatalf("failed to create publication: %v", err)
	}
	return pub
}

func createTestIssue(t *testing.T, conn *sql.DB, publicationID string) *models.Issue {
	t.Helper()
	repo := NewIssueRepository(conn)
	issue := &models.Issue{
		PublicationID: publicationID,
		Slug:          "issue-1",
		Subject:       "Issue #1",
	}
	if err := repo.Create(issue); err != nil {
		t.Fatalf("failed to create issue: %v", err)
	}
	return issue
}

func TestPublicationSoftDelete(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewPublicationRepository(conn)
	pub := createTestPublication(t, conn)

	if err := repo.SoftDelete(pub.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	got, err := repo.GetByID(pub.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Error("expected soft-deleted publication to be hidden")
	}
}

func TestPublicationBrandRoundTrip(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewPublicationRepository(conn)

	pub := &models.Publication{
		Slug:      "branded",
		Name:      "Branded",
		FromName:  "Branded",
		FromEmail: "hi@branded.test",
		Brand:     models.Brand{LogoURL: "https://cdn.test/logo.png", AccentColor: "#ff0000"},
	}
	if err := repo.Create(pub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetBySlug("branded")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got == nil {
		t.Fatal("publication not found")
	}
	if got.Brand.AccentColor != "#ff0000" {
		t.Errorf("accent color = %q, want #ff0000", got.Brand.AccentColor)
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewSubscriberRepository(conn)
	pub := createTestPublication(t, conn)

	sub := &models.Subscriber{PublicationID: pub.ID, Email: "  Reader@Example.COM "}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.Email != "reader@example.com" {
		t.Errorf("email not normalized: %q", sub.Email)
	}
	if sub.Status != models.SubscriberStatusPending {
		t.Errorf("status = %q, want pending", sub.Status)
	}
	if sub.ConfirmationToken == "" || sub.UnsubscribeToken == "" {
		t.Error("expected tokens to be generated")
	}

	// Pending subscribers are not part of the sendable audience.
	active, err := repo.ListActive(pub.ID)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active count = %d, want 0", len(active))
	}

	if err := repo.Confirm(sub.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	got, _ := repo.GetByID(sub.ID)
	if got.Status != models.SubscriberStatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if got.ConfirmedAt == nil {
		t.Error("expected confirmed_at to be set")
	}

	active, _ = repo.ListActive(pub.ID)
	if len(active) != 1 {
		t.Fatalf("active count = %d, want 1", len(active))
	}

	if err := repo.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	active, _ = repo.ListActive(pub.ID)
	if len(active) != 0 {
		t.Errorf("active count after unsubscribe = %d, want 0", len(active))
	}
}

func TestSubscriberReactivateRotatesTokens(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewSubscriberRepository(conn)
	pub := createTestPublication(t, conn)

	sub := &models.Subscriber{PublicationID: pub.ID, Email: "back@example.com"}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	oldConfirm, oldUnsub := sub.ConfirmationToken, sub.UnsubscribeToken

	if err := repo.Confirm(sub.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := repo.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	got, err := repo.Reactivate(sub.ID)
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if got.Status != models.SubscriberStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.UnsubscribedAt != nil {
		t.Error("expected unsubscribed_at to be cleared")
	}
	if got.ConfirmationToken == oldConfirm || got.UnsubscribeToken == oldUnsub {
		t.Error("expected tokens to be rotated")
	}
}

func TestSubscriberBouncedExcludedFromActive(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewSubscriberRepository(conn)
	pub := createTestPublication(t, conn)

	sub := &models.Subscriber{PublicationID: pub.ID, Email: "gone@example.com"}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Confirm(sub.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := repo.MarkBounced(sub.ID); err != nil {
		t.Fatalf("MarkBounced: %v", err)
	}

	active, err := repo.ListActive(pub.ID)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active count = %d, want 0", len(active))
	}
}

func TestJobLifecycle(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewJobRepository(conn)
	pub := createTestPublication(t, conn)
	issue := createTestIssue(t, conn, pub.ID)

	job := &models.SendJob{PublicationID: pub.ID, IssueID: issue.ID, TotalRecipients: 42}
	if err := repo.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}

	if err := repo.MarkProcessing(job.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := repo.UpdateProgress(job.ID, 10, 2); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	got, err := repo.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != models.JobStatusProcessing {
		t.Errorf("status = %q, want processing", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected started_at to be set")
	}
	if got.SentCount != 10 || got.FailedCount != 2 {
		t.Errorf("progress = %d/%d, want 10/2", got.SentCount, got.FailedCount)
	}

	if err := repo.MarkCompleted(job.ID, 40, 2); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ = repo.GetJob(job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestJobMarkFailed(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewJobRepository(conn)
	pub := createTestPublication(t, conn)
	issue := createTestIssue(t, conn, pub.ID)

	job := &models.SendJob{PublicationID: pub.ID, IssueID: issue.ID, TotalRecipients: 1}
	if err := repo.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := repo.MarkFailed(job.ID, "content model build failed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	got, _ := repo.GetJob(job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != "content model build failed" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
}

func TestMessageOpenedOnlyOnce(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewJobRepository(conn)
	subs := NewSubscriberRepository(conn)
	pub := createTestPublication(t, conn)
	issue := createTestIssue(t, conn, pub.ID)

	sub := &models.Subscriber{PublicationID: pub.ID, Email: "r@example.com"}
	if err := subs.Create(sub); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}

	job := &models.SendJob{PublicationID: pub.ID, IssueID: issue.ID, TotalRecipients: 1}
	if err := repo.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	now := time.Now()
	msg := &models.SendMessage{
		SendJobID:         job.ID,
		SubscriberID:      sub.ID,
		IssueID:           issue.ID,
		ProviderMessageID: "prov-123",
		Status:            models.MessageStatusSent,
		SentAt:            &now,
	}
	if err := repo.CreateMessage(msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	first, err := repo.SetOpened(msg.ID)
	if err != nil {
		t.Fatalf("SetOpened: %v", err)
	}
	if !first {
		t.Error("first SetOpened should report true")
	}

	again, err := repo.SetOpened(msg.ID)
	if err != nil {
		t.Fatalf("SetOpened (repeat): %v", err)
	}
	if again {
		t.Error("repeat SetOpened should report false")
	}

	got, err := repo.GetMessageByProviderID("prov-123")
	if err != nil {
		t.Fatalf("GetMessageByProviderID: %v", err)
	}
	if got == nil || got.OpenedAt == nil {
		t.Fatal("expected message with opened_at set")
	}
}

func TestGetMessageByProviderIDUnknown(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewJobRepository(conn)

	got, err := repo.GetMessageByProviderID("never-seen")
	if err != nil {
		t.Fatalf("GetMessageByProviderID: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown provider message id")
	}
}

func TestShortLinkCache(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewShortLinkRepository(conn)

	got, err := repo.Get("https://example.com/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expected cache miss")
	}

	link := &models.ShortLink{
		OriginalURL: "https://example.com/a",
		ShortURL:    "https://s.test/abc",
		ShortCode:   "abc",
	}
	if err := repo.Put(link); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Racing writers: the first mapping wins.
	if err := repo.Put(&models.ShortLink{
		OriginalURL: "https://example.com/a",
		ShortURL:    "https://s.test/xyz",
		ShortCode:   "xyz",
	}); err != nil {
		t.Fatalf("Put (duplicate): %v", err)
	}

	got, err = repo.Get("https://example.com/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.ShortURL != "https://s.test/abc" {
		t.Errorf("got %+v, want first-inserted mapping", got)
	}
}

func TestRateLimitWindow(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRateLimitRepository(conn)

	cutoff := time.Now().Add(-time.Hour)
	w, err := repo.GetWindow("a@example.com", "subscribe", cutoff)
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if w != nil {
		t.Fatal("expected no window")
	}

	if err := repo.CreateWindow("a@example.com", "subscribe"); err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}

	w, err = repo.GetWindow("a@example.com", "subscribe", cutoff)
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if w == nil || w.Count != 1 {
		t.Fatalf("got %+v, want count 1", w)
	}

	if err := repo.Increment(w.ID); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	w, _ = repo.GetWindow("a@example.com", "subscribe", cutoff)
	if w.Count != 2 {
		t.Errorf("count = %d, want 2", w.Count)
	}

	// Expired windows are invisible to lookups and removable.
	w2, err := repo.GetWindow("a@example.com", "subscribe", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("GetWindow (future cutoff): %v", err)
	}
	if w2 != nil {
		t.Error("expected no window past the cutoff")
	}

	n, err := repo.DeleteExpired(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestBlockReorderAndDelete(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewBlockRepository(conn)
	pub := createTestPublication(t, conn)
	issue := createTestIssue(t, conn, pub.ID)

	var ids []string
	for i, blockType := range []string{models.BlockTypeStory, models.BlockTypeText, models.BlockTypeDivider} {
		b := &models.Block{IssueID: issue.ID, Type: blockType, SortOrder: i, Data: []byte(`{}`)}
		if err := repo.Create(b); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, b.ID)
	}

	// Reverse the order; sort orders become dense zero-based again.
	if err := repo.Reorder(issue.ID, []string{ids[2], ids[1], ids[0]}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	blocks, err := repo.ListByIssue(issue.ID)
	if err != nil {
		t.Fatalf("ListByIssue: %v", err)
	}
	wantTypes := []string{models.BlockTypeDivider, models.BlockTypeText, models.BlockTypeStory}
	for i, b := range blocks {
		if b.Type != wantTypes[i] {
			t.Errorf("block[%d].Type = %q, want %q", i, b.Type, wantTypes[i])
		}
		if b.SortOrder != i {
			t.Errorf("block[%d].SortOrder = %d, want %d", i, b.SortOrder, i)
		}
	}

	if err := repo.Delete(ids[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	blocks, _ = repo.ListByIssue(issue.ID)
	if len(blocks) != 2 {
		t.Errorf("block count after delete = %d, want 2", len(blocks))
	}
}

func TestIssueMarkSentSetsSendCountOnce(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewIssueRepository(conn)
	pub := createTestPublication(t, conn)
	issue := createTestIssue(t, conn, pub.ID)

	if err := repo.MarkSent(issue.ID, 120); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	got, _ := repo.GetByID(issue.ID)
	if got.Status != models.IssueStatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Fatal("expected sent_at to be set")
	}
	firstSentAt := *got.SentAt

	time.Sleep(5 * time.Millisecond)
	if err := repo.MarkSent(issue.ID, 130); err != nil {
		t.Fatalf("MarkSent (resend): %v", err)
	}
	got, _ = repo.GetByID(issue.ID)
	if !got.SentAt.Equal(firstSentAt) {
		t.Error("sent_at should keep the first send's timestamp")
	}
	if got.SendCount != 130 {
		t.Errorf("send_count = %d, want 130", got.SendCount)
	}
}
