package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"contact-guard/internal/delivery"
	"contact-guard/internal/middleware"
	"contact-guard/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errInvalidPayload = errors.New("invalid payload")

	phonePattern = regexp.MustCompile(`^\+\d{6,15}$`)

	categories = map[string]struct{}{"Category": {}, "Work": {}, "Study": {}}
)

// Submission outcomes reported to the SubmissionRecorder.
const (
	OutcomeDelivered = "delivered"
	OutcomeInvalid   = "invalid"
	OutcomeHoneypot  = "honeypot"
	OutcomeBot       = "bot_rejected"
	OutcomeCooldown  = "cooldown"
	OutcomeFailed    = "delivery_failed"
)

// ContactRequest is the JSON body of POST /api/contact.
type ContactRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	PhoneE164 string `json:"phoneE164,omitempty"`
	Company   string `json:"company,omitempty"` // honeypot, humans leave it empty
	TSToken   string `json:"tsToken,omitempty"`
}

// Validate applies the form's field rules. An empty phone counts as absent.
func (c ContactRequest) Validate() error {
	if n := utf8.RuneCountInString(c.Name); n < 2 || n > 80 {
		return errInvalidPayload
	}
	if utf8.RuneCountInString(c.Email) > 120 {
		return errInvalidPayload
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Address != c.Email {
		return errInvalidPayload
	}
	if _, ok := categories[c.Category]; !ok {
		return errInvalidPayload
	}
	if n := utf8.RuneCountInString(c.Message); n < 10 || n > 2000 {
		return errInvalidPayload
	}
	if c.PhoneE164 != "" && !phonePattern.MatchString(c.PhoneE164) {
		return errInvalidPayload
	}
	return nil
}

// SubmissionRecorder counts submission outcomes.
type SubmissionRecorder interface {
	ObserveSubmission(outcome string)
}

type nopSubmissionRecorder struct{}

func (nopSubmissionRecorder) ObserveSubmission(string) {}

// ContactOptions carries the optional collaborators of a ContactHandler.
type ContactOptions struct {
	Verifier BotVerifier // nil disables the bot check
	Recorder SubmissionRecorder
	Logger   *zerolog.Logger
	Clock    func() time.Time
}

// ContactHandler serves POST /api/contact. The per-IP limit is applied before it by
// middleware.RateLimit; the handler itself validates, screens bots, applies the e-mail
// cooldown and delivers.
type ContactHandler struct {
	limiter  *service.Limiter
	sender   delivery.Sender
	verifier BotVerifier
	recorder SubmissionRecorder
	log      zerolog.Logger
	now      func() time.Time
}

func NewContactHandler(l *service.Limiter, s delivery.Sender, opts ContactOptions) *ContactHandler {
	h := &ContactHandler{
		limiter:  l,
		sender:   s,
		verifier: opts.Verifier,
		recorder: opts.Recorder,
		log:      log.Logger,
		now:      opts.Clock,
	}
	if opts.Logger != nil {
		h.log = *opts.Logger
	}
	if h.recorder == nil {
		h.recorder = nopSubmissionRecorder{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.log = h.log.With().Str("component", "contact").Logger()
	return h
}

func (h *ContactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()
	logger := h.log.With().Str("request_id", middleware.RequestIDFrom(ctx)).Logger()

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recorder.ObserveSubmission(OutcomeInvalid)
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		h.recorder.ObserveSubmission(OutcomeInvalid)
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	// Bots get a success response so they do not learn about the trap.
	if req.Company != "" {
		h.recorder.ObserveSubmission(OutcomeHoneypot)
		logger.Info().Msg("honeypot triggered")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if h.verifier != nil {
		ok, err := h.verifier.Verify(ctx, req.TSToken, middleware.ClientIP(r))
		if err != nil {
			logger.Warn().Err(err).Msg("bot check errored")
		}
		if !ok {
			h.recorder.ObserveSubmission(OutcomeBot)
			writeError(w, http.StatusForbidden, "Bot check failed")
			return
		}
	}

	if v := h.limiter.CheckEmailCooldown(ctx, req.Email); !v.Allowed {
		h.recorder.ObserveSubmission(OutcomeCooldown)
		writeCooldownDenial(w, v)
		return
	}

	id := uuid.New().String()
	if err := h.deliver(ctx, id, req); err != nil {
		h.recorder.ObserveSubmission(OutcomeFailed)
		logger.Error().Err(err).Str("id", id).Msg("delivery failed")
		writeError(w, http.StatusBadGateway, "Delivery failed")
		return
	}

	h.recorder.ObserveSubmission(OutcomeDelivered)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (h *ContactHandler) deliver(ctx context.Context, id string, req ContactRequest) error {
	name := clamp(stripCRLF(req.Name), 80)
	category := clamp(stripCRLF(req.Category), 16)
	return h.sender.Send(ctx, delivery.Message{
		ID:         id,
		Name:       name,
		Email:      req.Email,
		Phone:      req.PhoneE164,
		Category:   category,
		Subject:    delivery.SubjectFor(category, name),
		Body:       clamp(req.Message, 2000),
		ReceivedAt: h.now().UTC(),
	})
}

func writeCooldownDenial(w http.ResponseWriter, v service.Verdict) {
	switch v.Reason {
	case service.ReasonCooldown:
		w.Header().Set("Retry-After", strconv.Itoa(v.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"ok":         false,
			"code":       "COOLDOWN",
			"retryAfter": v.RetryAfterSeconds,
		})
	case service.ReasonStoreUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(v.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"ok":    false,
			"code":  "UNAVAILABLE",
			"error": "Service is busy. Please try again shortly.",
		})
	case service.ReasonCanceled:
	default:
		writeError(w, http.StatusBadRequest, "Invalid payload")
	}
}
