package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"contact-guard/internal/delivery"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Local receiver for contactd's webhook delivery, for development.
func main() {
	addr := flag.String("addr", ":8081", "listen address")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339Nano

	sink := newSink()
	srv := &http.Server{Addr: *addr, Handler: sink.routes()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Msgf("mail sink listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// sink keeps received messages in memory, de-duplicated by id.
type sink struct {
	mu       sync.Mutex
	messages []delivery.Message
	seen     map[string]struct{}
}

func newSink() *sink {
	return &sink{seen: make(map[string]struct{})}
}

func (s *sink) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /messages", s.handleReceive)
	mux.HandleFunc("GET /messages", s.handleList)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return mux
}

func (s *sink) handleReceive(w http.ResponseWriter, r *http.Request) {
	var m delivery.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&m); err != nil || m.ID == "" {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, dup := s.seen[m.ID]
	if !dup {
		s.seen[m.ID] = struct{}{}
		s.messages = append(s.messages, m)
	}
	s.mu.Unlock()

	log.Info().
		Str("id", m.ID).
		Str("subject", m.Subject).
		Str("reply_to", m.Email).
		Bool("duplicate", dup).
		Msg("message received")
	w.WriteHeader(http.StatusAccepted)
}

func (s *sink) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]delivery.Message, len(s.messages))
	copy(out, s.messages)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
