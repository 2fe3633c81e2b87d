package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/letterflow/letterflow/internal/config"
	"github.com/letterflow/letterflow/internal/dispatch"
	"github.com/letterflow/letterflow/internal/email"
	"github.com/letterflow/letterflow/internal/models"
	"github.com/letterflow/letterflow/internal/provider"
	"github.com/letterflow/letterflow/internal/webhook"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type subscribeRequest struct {
	PublicationID string `json:"publication_id"`
	Email         string `json:"email"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PublicationID == "" {
		respondError(w, http.StatusBadRequest, "publication_id is required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	normalized := models.NormalizeEmail(req.Email)
	if !s.allow(w, normalized, "subscribe", s.cfg.RateLimit.Subscribe) {
		return
	}

	pub, err := s.publications.GetByID(req.PublicationID)
	if err != nil {
		s.logger.Error("failed to fetch publication", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if pub == nil {
		respondError(w, http.StatusNotFound, "publication not found")
		return
	}

	existing, err := s.subscribers.GetByEmail(pub.ID, normalized)
	if err != nil {
		s.logger.Error("failed to fetch subscriber", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch {
	case existing == nil:
		sub := &models.Subscriber{PublicationID: pub.ID, Email: normalized}
		if err := s.subscribers.Create(sub); err != nil {
			s.logger.Error("failed to create subscriber", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.sendConfirmation(r, pub, sub)
		respondJSON(w, http.StatusCreated, map[string]string{
			"message": "check your inbox to confirm your subscription",
		})

	case existing.Status == models.SubscriberStatusActive:
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "you are already subscribed",
		})

	case existing.Status == models.SubscriberStatusPending:
		s.sendConfirmation(r, pub, existing)
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "check your inbox to confirm your subscription",
		})

	case existing.Status == models.SubscriberStatusUnsubscribed:
		// Re-subscribing restarts the double opt-in with fresh tokens.
		sub, err := s.subscribers.Reactivate(existing.ID)
		if err != nil {
			s.logger.Error("failed to reactivate subscriber", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.sendConfirmation(r, pub, sub)
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "check your inbox to confirm your subscription",
		})

	default:
		// Bounced and complained addresses stay suppressed, but the
		// response does not reveal that.
		respondJSON(w, http.StatusOK, map[string]string{
			"message": "check your inbox to confirm your subscription",
		})
	}
}

// sendConfirmation sends the double opt-in email. Failures are logged
// but do not fail the subscribe request; the subscriber can retry and
// get a fresh confirmation email.
func (s *Server) sendConfirmation(r *http.Request, pub *models.Publication, sub *models.Subscriber) {
	confirmURL := s.cfg.BaseURL + "/api/confirm?token=" + sub.ConfirmationToken
	em, err := email.ComposeConfirmation(pub.Name, confirmURL)
	if err != nil {
		s.logger.Error("failed to compose confirmation email", "subscriber_id", sub.ID, "error", err)
		return
	}

	_, err = s.sender.Send(r.Context(), &provider.SendRequest{
		From:    fmt.Sprintf("%s <%s>", pub.FromName, pub.FromEmail),
		To:      []string{sub.Email},
		Subject: em.Subject,
		HTML:    em.HTML,
		ReplyTo: pub.ReplyTo,
	})
	if err != nil {
		s.logger.Error("failed to send confirmation email", "subscriber_id", sub.ID, "error", err)
	}
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	sub, err := s.subscribers.GetByConfirmationToken(token)
	if err != nil {
		s.logger.Error("failed to fetch subscriber", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "invalid or expired token")
		return
	}

	if sub.Status != models.SubscriberStatusActive {
		if err := s.subscribers.Confirm(sub.ID); err != nil {
			s.logger.Error("failed to confirm subscriber", "subscriber_id", sub.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.logger.Info("subscriber confirmed", "subscriber_id", sub.ID)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "subscription confirmed"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	sub, err := s.subscribers.GetByUnsubscribeToken(token)
	if err != nil {
		s.logger.Error("failed to fetch subscriber", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "invalid token")
		return
	}

	if sub.Status != models.SubscriberStatusUnsubscribed {
		if err := s.subscribers.Unsubscribe(sub.ID); err != nil {
			s.logger.Error("failed to unsubscribe", "subscriber_id", sub.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.logger.Info("subscriber unsubscribed", "subscriber_id", sub.ID)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "you have been unsubscribed"})
}

type sendCampaignRequest struct {
	IssueID string `json:"issue_id"`
}

func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	var req sendCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IssueID == "" {
		respondError(w, http.StatusBadRequest, "issue_id is required")
		return
	}

	job, err := s.dispatcher.StartCampaign(r.Context(), req.IssueID)
	switch {
	case errors.Is(err, dispatch.ErrIssueNotFound):
		respondError(w, http.StatusNotFound, "issue not found")
		return
	case errors.Is(err, dispatch.ErrNoActiveSubscribers):
		respondError(w, http.StatusBadRequest, "publication has no active subscribers")
		return
	case err != nil:
		s.logger.Error("failed to start campaign", "issue_id", req.IssueID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id":           job.ID,
		"total_recipients": job.TotalRecipients,
		"message":          fmt.Sprintf("send started for %d subscribers", job.TotalRecipients),
	})
}

type sendTestRequest struct {
	IssueID string `json:"issue_id"`
	Email   string `json:"email"`
}

func (s *Server) handleSendTest(w http.ResponseWriter, r *http.Request) {
	var req sendTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IssueID == "" {
		respondError(w, http.StatusBadRequest, "issue_id is required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	normalized := models.NormalizeEmail(req.Email)
	if !s.allow(w, normalized, "test_send", s.cfg.RateLimit.TestSend) {
		return
	}

	err := s.dispatcher.SendTest(r.Context(), req.IssueID, normalized)
	switch {
	case errors.Is(err, dispatch.ErrIssueNotFound):
		respondError(w, http.StatusNotFound, "issue not found")
		return
	case err != nil:
		s.logger.Error("failed to send test email", "issue_id", req.IssueID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to send test email")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "test email sent"})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to fetch job", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleWebhook verifies, logs and reconciles one provider event. The
// provider retries non-2xx responses, so everything past signature and
// payload validation acknowledges with 200; reconciliation problems are
// our problem, not the provider's.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if !webhook.VerifySignature(s.cfg.Provider.WebhookSecret, body, sig) {
		s.logger.Warn("webhook signature verification failed", "remote", r.RemoteAddr)
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ev webhook.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.eventLog.Append(ev.Type, body); err != nil {
		s.logger.Error("failed to append webhook event log", "error", err)
	}

	if err := s.reconciler.Process(&ev); err != nil {
		s.logger.Error("failed to process webhook event", "type", ev.Type, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// allow runs a rate limit check and writes the 429 response when the
// limit is exceeded.
func (s *Server) allow(w http.ResponseWriter, identifier, endpoint string, limit config.LimitConfig) bool {
	res := s.limiter.Check(identifier, endpoint, limit.MaxRequests, limit.Window)
	if res.Allowed {
		return true
	}

	s.metrics.RateLimitExceeded.WithLabelValues(endpoint).Inc()
	retryAfter := int(time.Until(res.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	respondError(w, http.StatusTooManyRequests, "too many requests, try again later")
	return false
}
