package services

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lagless/tickrelay/metrics"
	"github.com/lagless/tickrelay/protocol"
)

// wsParticipant adapts one WebSocket connection into a
// protocol.DeliveryHandle. Writes are serialized with a mutex because the
// scheduler loop and the service both push messages; reads happen on a
// single pump goroutine, per gorilla's concurrency contract.
type wsParticipant struct {
	log  *slog.Logger
	svc  *RelayService
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	id     protocol.ParticipantID
	began  bool
	closed bool
}

func newWSParticipant(svc *RelayService, conn *websocket.Conn) *wsParticipant {
	return &wsParticipant{
		log:  svc.log,
		svc:  svc,
		conn: conn,
	}
}

// Begin implements protocol.DeliveryHandle: the participant learns its
// identity for the round.
func (p *wsParticipant) Begin(id protocol.ParticipantID) error {
	p.mu.Lock()
	p.id = id
	p.began = true
	p.mu.Unlock()

	raw := uint8(id)
	return p.writeJSON(&ServerMessage{
		Type:        MessageTypeBegin,
		Participant: &raw,
	})
}

// DeliverTick implements protocol.DeliveryHandle.
func (p *wsParticipant) DeliverTick(tick uint64, otherIDs []protocol.ParticipantID, otherIntents []byte) error {
	ids := make([]uint8, len(otherIDs))
	for i, id := range otherIDs {
		ids[i] = uint8(id)
	}

	err := p.writeJSON(&ServerMessage{
		Type:         MessageTypeTick,
		Tick:         tick,
		OtherIDs:     ids,
		OtherIntents: otherIntents,
	})
	if err != nil {
		metrics.DeliveryErrors.Inc()
	}
	return err
}

func (p *wsParticipant) writeJSON(msg *ServerMessage) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(msg)
}

// identity returns the assigned id and whether the round has begun for
// this participant.
func (p *wsParticipant) identity() (protocol.ParticipantID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, p.began
}

// readPump consumes client messages until the connection drops. Intent
// messages are forwarded to the relay; anything else is ignored, keeping
// the socket tolerant of newer client revisions.
func (p *wsParticipant) readPump() {
	defer p.svc.onDisconnect(p)

	for {
		var msg ClientMessage
		if err := p.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Debug("participant connection closed", "err", err)
			}
			return
		}

		if msg.Type != MessageTypeIntent {
			continue
		}

		id, began := p.identity()
		if !began {
			// Intents before the round begins have no tick to land in.
			p.log.Debug("intent before round start dropped")
			continue
		}
		p.svc.submit(id, msg.Tick, msg.Intent)
	}
}

// close tears the connection down, at most once.
func (p *wsParticipant) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.writeMu.Lock()
	p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "round over"))
	p.writeMu.Unlock()

	p.conn.Close()
}
