// Package delivery hands accepted contact submissions to whoever reads them.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Message is one accepted, sanitized contact submission.
type Message struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Category   string    `json:"category"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// SubjectFor builds the subject line operators see in their inbox.
func SubjectFor(category, name string) string {
	return fmt.Sprintf("New %s enquiry - %s", category, name)
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes submissions to the log instead of delivering them. It is used when no
// webhook is configured. The sender's address is left out of the log line.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{log: logger.With().Str("component", "delivery").Logger()}
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.log.Info().
		Str("id", m.ID).
		Str("category", m.Category).
		Str("subject", m.Subject).
		Int("body_len", len(m.Body)).
		Msg("contact submission received")
	return nil
}
