package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"sessionhub/internal/catchup"
	"sessionhub/internal/lifecycle"
	"sessionhub/internal/session"
	"sessionhub/pkg/interfaces"
	"sessionhub/pkg/types"
)

// Gateway validates inbound client messages and dispatches them to the
// coordination layers. One instance serves every connection; the per-client
// state it keeps is the rate limiter window.
// ARCHITECTURAL DISCOVERY: the gateway speaks only through interfaces and
// typed frames, so a protocol change never leaks into session or lifecycle
// logic
type Gateway struct {
	registry  *session.Registry
	clients   interfaces.ClientRegistry
	eventLog  interfaces.EventLog
	lifecycle *lifecycle.Manager
	catchup   *catchup.Coordinator
	limiter   *RateLimiter
}

// NewGateway creates a gateway over the given coordination components
func NewGateway(registry *session.Registry, clients interfaces.ClientRegistry, eventLog interfaces.EventLog, lm *lifecycle.Manager, cc *catchup.Coordinator) *Gateway {
	return &Gateway{
		registry:  registry,
		clients:   clients,
		eventLog:  eventLog,
		lifecycle: lm,
		catchup:   cc,
		limiter:   NewRateLimiter(),
	}
}

// Limiter exposes the rate limiter for periodic cleanup
func (g *Gateway) Limiter() *RateLimiter { return g.limiter }

// HandleDisconnect runs full disconnect processing for a client: ownership
// transfers, empty-session cleanup and rate limit state removal. Safe to
// call more than once for the same client.
func (g *Gateway) HandleDisconnect(clientID string) {
	transfers, removed := g.lifecycle.HandleClientDisconnect(clientID)
	g.limiter.Forget(clientID)
	if len(transfers) > 0 || len(removed) > 0 {
		log.Printf("Disconnect processed: client=%s transfers=%d removed=%d", clientID, len(transfers), len(removed))
	}
}

// Dispatch handles one inbound frame from a client connection. A non-nil
// return tells the read loop to close the connection; per-request failures
// are reported with an error frame and return nil so the connection
// survives them.
func (g *Gateway) Dispatch(ctx context.Context, conn interfaces.Connection, data []byte) error {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// FUNCTIONAL DISCOVERY: malformed JSON means the peer is not
		// speaking the protocol at all - tell it why, then hang up
		g.sendError(conn, "", types.ErrorCodeInvalidMessage, "malformed message")
		return ErrProtocolViolation
	}

	if err := msg.Validate(); err != nil {
		g.sendError(conn, msg.SessionID, types.ErrorCodeInvalidMessage, err.Error())
		if errors.Is(err, types.ErrInvalidMessageType) {
			return ErrProtocolViolation
		}
		// Well-formed envelope with bad fields: recoverable, keep the
		// connection open.
		return nil
	}

	if !g.limiter.Allow(conn.ClientID()) {
		g.sendError(conn, msg.SessionID, types.ErrorCodeRateLimited, ErrRateLimitExceeded.Error())
		return nil
	}

	switch msg.Type {
	case types.MessageTypeSubscribe:
		g.handleSubscribe(ctx, conn, &msg)
	case types.MessageTypeUnsubscribe:
		g.handleUnsubscribe(conn, &msg)
	case types.MessageTypeCreateSession:
		g.handleCreateSession(conn, &msg)
	case types.MessageTypeRequestHistory:
		g.handleRequestHistory(ctx, conn, &msg)
	case types.MessageTypeInput:
		g.handleInput(ctx, conn, &msg)
	case types.MessageTypePublish:
		g.handlePublish(ctx, conn, &msg)
	case types.MessageTypeListSessions:
		g.handleListSessions(conn, &msg)
	case types.MessageTypeKillSession:
		g.handleKillSession(conn, &msg)
	}
	return nil
}

// handleSubscribe runs the catch-up protocol once per requested session id.
// Each id succeeds or fails independently: one acked, one errored.
func (g *Gateway) handleSubscribe(ctx context.Context, conn interfaces.Connection, msg *types.ClientMessage) {
	for _, sessionID := range msg.SessionIDs {
		ack, err := g.catchup.Subscribe(ctx, conn.ClientID(), sessionID, msg.CatchUp)
		if err != nil {
			if errors.Is(err, interfaces.ErrClientDisconnected) {
				return
			}
			g.sendError(conn, sessionID, codeFor(err), err.Error())
			continue
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}

func (g *Gateway) handleUnsubscribe(conn interfaces.Connection, msg *types.ClientMessage) {
	for _, sessionID := range msg.SessionIDs {
		// Idempotent by contract: unknown session or non-subscriber is a
		// no-op, not an error.
		_, _ = g.lifecycle.UnsubscribeClient(sessionID, conn.ClientID())
	}
}

func (g *Gateway) handleCreateSession(conn interfaces.Connection, msg *types.ClientMessage) {
	s, err := g.lifecycle.CreateSession(msg.Name, conn.ClientID())
	if err != nil {
		// Only ErrClientDisconnected reaches here; the reply would go
		// nowhere anyway.
		return
	}
	g.reply(conn, &types.SessionCreated{
		Type:      types.ServerTypeSessionCreated,
		RequestID: msg.RequestID,
		Session:   s.Snapshot(conn.ClientID()),
	})
}

func (g *Gateway) handleRequestHistory(ctx context.Context, conn interfaces.Connection, msg *types.ClientMessage) {
	page, err := g.catchup.History(ctx, conn.ClientID(), msg.SessionID, msg.BeforeSeq, msg.Limit)
	if err != nil {
		g.sendError(conn, msg.SessionID, codeFor(err), err.Error())
		return
	}
	g.reply(conn, page)
}

// handleInput appends a subscriber's input as a session event. Any current
// subscriber may send input; ownership is not required.
func (g *Gateway) handleInput(ctx context.Context, conn interfaces.Connection, msg *types.ClientMessage) {
	s, exists := g.registry.Get(msg.SessionID)
	if !exists {
		g.sendError(conn, msg.SessionID, types.ErrorCodeSessionNotFound, interfaces.ErrSessionNotFound.Error())
		return
	}
	if !s.IsSubscriber(conn.ClientID()) {
		g.sendError(conn, msg.SessionID, types.ErrorCodePermissionDenied, interfaces.ErrNotSubscribed.Error())
		return
	}

	_, err := g.appendEvent(ctx, s, conn.ClientID(), types.EventKindInput, map[string]interface{}{
		"content": msg.Content,
	})
	if err != nil {
		g.sendError(conn, msg.SessionID, codeFor(err), err.Error())
	}
}

// handlePublish appends an owner-produced event (output or status). A
// status event naming a terminal state finishes the session after the
// event has been persisted and fanned out.
func (g *Gateway) handlePublish(ctx context.Context, conn interfaces.Connection, msg *types.ClientMessage) {
	s, exists := g.registry.Get(msg.SessionID)
	if !exists {
		g.sendError(conn, msg.SessionID, types.ErrorCodeSessionNotFound, interfaces.ErrSessionNotFound.Error())
		return
	}
	if !s.IsOwner(conn.ClientID()) {
		g.sendError(conn, msg.SessionID, types.ErrorCodePermissionDenied, interfaces.ErrPermissionDenied.Error())
		return
	}

	result, err := g.appendEvent(ctx, s, conn.ClientID(), msg.Kind, msg.Payload)
	if err != nil {
		g.sendError(conn, msg.SessionID, codeFor(err), err.Error())
		return
	}

	if types.IsTerminalState(result.State) {
		g.lifecycle.FinishSession(msg.SessionID)
	}
}

func (g *Gateway) handleListSessions(conn interfaces.Connection, msg *types.ClientMessage) {
	sessions := g.registry.Snapshot()
	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot(conn.ClientID()))
	}
	g.reply(conn, &types.SessionList{
		Type:      types.ServerTypeSessionList,
		RequestID: msg.RequestID,
		Sessions:  infos,
	})
}

func (g *Gateway) handleKillSession(conn interfaces.Connection, msg *types.ClientMessage) {
	if err := g.lifecycle.KillSession(msg.SessionID, conn.ClientID()); err != nil {
		g.sendError(conn, msg.SessionID, codeFor(err), err.Error())
	}
	// Success needs no direct reply: the requester is a subscriber and
	// receives the session_removed broadcast.
}

// appendEvent builds and appends one event through the session's critical
// section, so seq assignment and fan-out keep their ordering guarantee
func (g *Gateway) appendEvent(ctx context.Context, s *session.Session, from, kind string, payload map[string]interface{}) (session.AppendResult, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	event := &types.Event{
		ID:        uuid.New().String(),
		SessionID: s.ID(),
		Kind:      kind,
		From:      from,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return s.Append(ctx, g.eventLog, event)
}

func (g *Gateway) reply(conn interfaces.Connection, v interface{}) {
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("Failed to send reply to %s: %v", conn.ClientID(), err)
	}
}

func (g *Gateway) sendError(conn interfaces.Connection, sessionID, code, message string) {
	g.reply(conn, &types.ErrorMessage{
		Type:      types.ServerTypeError,
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
}

// codeFor maps coordination-layer errors to wire error codes
func codeFor(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return types.ErrorCodeSessionNotFound
	case errors.Is(err, interfaces.ErrPermissionDenied), errors.Is(err, interfaces.ErrNotSubscribed):
		return types.ErrorCodePermissionDenied
	case errors.Is(err, interfaces.ErrLogUnavailable):
		return types.ErrorCodeLogUnavailable
	default:
		return types.ErrorCodeLogUnavailable
	}
}
