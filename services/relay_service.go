package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/lagless/tickrelay/metrics"
	"github.com/lagless/tickrelay/protocol"
)

// RelayService is the participant-facing surface of the tick relay. It
// collects joining participants in a lobby, starts rounds over them, and
// bridges intent submissions and tick deliveries between the transport
// and the relay core.
type RelayService struct {
	cfg      *ServiceConfig
	log      *slog.Logger
	relay    *protocol.RelayServer
	upgrader websocket.Upgrader

	// mu guards the lobby and the running session's connections; round
	// state itself lives inside the relay core. Participants are
	// round-scoped: a stopped round closes its connections rather than
	// returning them to the lobby.
	mu      sync.Mutex
	lobby   []*wsParticipant
	session []*wsParticipant
}

// NewRelayService creates the service and its relay core.
func NewRelayService(cfg *ServiceConfig) (*RelayService, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	relay, err := protocol.NewRelayServer(cfg.Relay, cfg.Log)
	if err != nil {
		return nil, err
	}

	s := &RelayService{
		cfg:   cfg,
		log:   cfg.Log,
		relay: relay,
		upgrader: websocket.Upgrader{
			// Participants are trusted collaborators of the host; origin
			// policy belongs to the deployment's proxy layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	relay.SetTickCallback(func(tick uint64) {
		metrics.TicksAdvanced.Inc()
		metrics.RoundCursor.Set(float64(tick + 1))
	})
	return s, nil
}

// Relay exposes the relay core, mainly for the supervisor wiring in cmd.
func (s *RelayService) Relay() *protocol.RelayServer {
	return s.relay
}

// RegisterRoutes implements httpserver.RouteRegistrar.
func (s *RelayService) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Logger)

	r.Get("/ws", s.handleWS)
	r.Post("/intent", s.handleIntent)
	r.Post("/round/start", s.handleRoundStart)
	r.Post("/round/stop", s.handleRoundStop)
	r.Post("/round/evict/{participant}", s.handleEvict)
	r.Get("/status", s.handleStatus)
}

// handleWS upgrades a joining participant and adds it to the lobby. When
// the lobby reaches the configured participant count the round starts
// immediately. Mid-round joins are refused; the barrier's positional
// payload packing cannot absorb a new identity once a round is running.
func (s *RelayService) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.relay.Running() {
		http.Error(w, "round in progress", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	p := newWSParticipant(s, conn)
	go p.readPump()

	s.mu.Lock()
	s.lobby = append(s.lobby, p)
	full := len(s.lobby) >= s.cfg.Relay.ExpectedParticipants
	s.log.Info("participant joined lobby", "lobbySize", len(s.lobby),
		"expected", s.cfg.Relay.ExpectedParticipants)
	if full {
		s.startRoundLocked(r.Context())
	}
	s.mu.Unlock()
}

// startRoundLocked starts a round over the current lobby. Caller holds mu.
func (s *RelayService) startRoundLocked(ctx context.Context) {
	handles := make([]protocol.DeliveryHandle, len(s.lobby))
	for i, p := range s.lobby {
		handles[i] = p
	}

	// The round outlives the joining request; detach its lifetime.
	if err := s.relay.StartRound(context.WithoutCancel(ctx), handles); err != nil {
		s.log.Error("round start failed", "err", err)
		return
	}

	s.session = s.lobby
	s.lobby = nil

	metrics.RoundsStarted.Inc()
	metrics.RoundCursor.Set(0)
	metrics.Participants.Set(float64(len(s.session)))
}

// handleRoundStart starts a round over however many participants are in
// the lobby, for hosts that gate the start externally instead of filling
// the lobby to its configured size.
func (s *RelayService) handleRoundStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relay.Running() {
		http.Error(w, "round already running", http.StatusConflict)
		return
	}
	if len(s.lobby) == 0 {
		http.Error(w, "lobby is empty", http.StatusConflict)
		return
	}

	s.startRoundLocked(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleRoundStop tears the round down: the barrier loop stops, round
// state is discarded, and the round's connections are closed. Joined
// participants do not survive into the next round.
func (s *RelayService) handleRoundStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	s.relay.StopRound()
	for _, p := range session {
		p.close()
	}

	metrics.Participants.Set(0)
	w.WriteHeader(http.StatusNoContent)
}

// handleIntent accepts an intent submission over plain HTTP. The response
// is 204 whether or not the intent was recorded: rejected submissions are
// dropped silently by policy, observable only in logs and metrics.
func (s *RelayService) handleIntent(w http.ResponseWriter, r *http.Request) {
	var sub IntentSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "invalid submission body", http.StatusBadRequest)
		return
	}

	s.submit(protocol.ParticipantID(sub.Participant), sub.Tick, sub.Intent)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvict removes a stalled participant from the round's barrier on
// behalf of an external supervisor.
func (s *RelayService) handleEvict(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "participant"), 10, 8)
	if err != nil {
		http.Error(w, "invalid participant id", http.StatusBadRequest)
		return
	}

	switch err := s.relay.Evict(protocol.ParticipantID(n)); {
	case errors.Is(err, protocol.ErrNoRound):
		http.Error(w, "no round running", http.StatusConflict)
	case errors.Is(err, protocol.ErrUnknownSender):
		http.Error(w, "unknown participant", http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		metrics.Participants.Set(float64(s.relay.Participants()))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *RelayService) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	lobbySize := len(s.lobby)
	s.mu.Unlock()

	status := StatusResponse{
		State:    StateLobby,
		Expected: s.cfg.Relay.ExpectedParticipants,
	}
	if s.relay.Running() {
		status.State = StateRunning
		status.Cursor = s.relay.Cursor()
		status.Participants = s.relay.Participants()
	} else {
		status.Participants = lobbySize
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// submit forwards an intent to the relay core and accounts for the
// outcome. All rejections are silent toward the sender.
func (s *RelayService) submit(id protocol.ParticipantID, tick uint64, raw []byte) {
	err := s.relay.SubmitIntent(id, tick, raw)
	if err == nil {
		metrics.IntentsAccepted.Inc()
		return
	}

	metrics.IntentsDropped.WithLabelValues(dropReason(err)).Inc()
	s.log.Debug("intent dropped",
		"participant", id, "tick", tick, "reason", err)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformedIntent):
		return metrics.ReasonMalformed
	case errors.Is(err, protocol.ErrFutureTick):
		return metrics.ReasonFutureTick
	case errors.Is(err, protocol.ErrDuplicateSubmission):
		return metrics.ReasonDuplicate
	case errors.Is(err, protocol.ErrTickLimit):
		return metrics.ReasonTickLimit
	case errors.Is(err, protocol.ErrRoundStopped):
		return metrics.ReasonRoundStopped
	default:
		return metrics.ReasonUnknown
	}
}

// onDisconnect detaches a dropped connection. A lobby participant is
// simply removed; a round participant that drops leaves the round stalled
// at the current tick until the supervisor evicts it, preserving the
// no-progress-without-full-convergence guarantee.
func (s *RelayService) onDisconnect(p *wsParticipant) {
	s.mu.Lock()
	for i, q := range s.lobby {
		if q == p {
			s.lobby = append(s.lobby[:i], s.lobby[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if id, began := p.identity(); began {
		s.log.Warn("participant connection lost mid-round", "participant", id)
	}
	p.close()
}
