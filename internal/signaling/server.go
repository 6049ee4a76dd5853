package signaling

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/overdive/call-relay/internal/auth"
	"github.com/overdive/call-relay/internal/metrics"
	"github.com/overdive/call-relay/internal/ratelimit"
	"github.com/overdive/call-relay/internal/room"
)

const wsWriteWait = 1 * time.Second

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Registry *room.Registry
	Verifier auth.Verifier

	// Metrics may be nil; counters become no-ops.
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// Server owns the WebSocket call-signaling endpoint and the set of live
// connections. The room table itself lives in the Registry; the Server only
// maps connection ids to transports for delivery.
type Server struct {
	registry *room.Registry
	verifier auth.Verifier
	metrics  *metrics.Metrics
	log      zerolog.Logger

	idleTimeout          time.Duration
	pingInterval         time.Duration
	maxMessageBytes      int64
	maxMessagesPerSecond int

	mu     sync.Mutex
	conns  map[string]*session
	closed bool
}

func NewServer(cfg Config) *Server {
	s := &Server{
		registry: cfg.Registry,
		verifier: cfg.Verifier,
		metrics:  cfg.Metrics,
		log:      cfg.Logger.With().Str("component", "signaling").Logger(),

		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,

		conns: make(map[string]*session),
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = 60 * time.Second
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 20 * time.Second
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = 64 * 1024
	}
	if s.maxMessagesPerSecond <= 0 {
		s.maxMessagesPerSecond = 50
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/call", s.HandleCall)
}

// HandleCall authenticates the handshake and, on success, upgrades it and
// runs the connection until the transport closes. Authentication failure is
// terminal for the attempt: the client must reconnect with a fresh
// credential, and no room logic ever runs for a rejected handshake.
func (s *Server) HandleCall(w http.ResponseWriter, r *http.Request) {
	cred, err := auth.CredentialFromRequest(r)
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	principal, err := s.verifier.Verify(cred)
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		// Origin policy is enforced by the outer httpserver middleware; for
		// unit tests that mount HandleCall directly, accept all origins here.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := &session{
		srv:       s,
		conn:      conn,
		id:        uuid.NewString(),
		principal: principal,
		limiter: ratelimit.NewTokenBucket(
			ratelimit.RealClock{},
			int64(s.maxMessagesPerSecond),
			int64(s.maxMessagesPerSecond),
		),
		done: make(chan struct{}),
	}

	if !s.register(sess) {
		_ = conn.Close()
		return
	}
	s.metrics.Inc(metrics.ConnectionsTotal)
	s.log.Info().Str("conn", sess.id).Str("user", principal.ID).Msg("connected")

	go sess.pingLoop()
	sess.run()
}

// Close tears down every live connection. Rooms empty out through the
// normal disconnect path as the read loops exit.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*session, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[sess.id] = sess
	return true
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.conns, sess.id)
	s.mu.Unlock()
}

// sendTo delivers a message to a connection by id. A missing or dead
// connection is not an error: the lifecycle path handles its cleanup.
func (s *Server) sendTo(connID string, msg Message) {
	s.mu.Lock()
	sess := s.conns[connID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.send(msg); err != nil {
		s.log.Debug().Str("conn", connID).Err(err).Msg("peer delivery failed")
	}
}

// session is one authenticated WebSocket connection. All inbound handling
// runs on its read goroutine; writes are serialized by writeMu.
type session struct {
	srv       *Server
	conn      *websocket.Conn
	id        string
	principal auth.Principal

	limiter *ratelimit.TokenBucket

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *session) run() {
	defer c.teardown()

	c.conn.SetReadLimit(c.srv.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.idleTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.idleTimeout))

		// Check the rate limit after reading so bytes already in the TCP
		// buffer are consumed; closing with unread data risks an abortive
		// close that hides the close code from the client.
		if !c.limiter.Allow(1) {
			c.srv.metrics.Inc(metrics.DropReasonRateLimited)
			c.close(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			c.close(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.close(websocket.ClosePolicyViolation, "bad message")
			return
		}

		c.dispatch(msg)
	}
}

func (c *session) dispatch(msg Message) {
	switch msg.Type {
	case TypeCheckRoom:
		c.handleCheckRoom(msg)
	case TypeAutoMatch:
		c.handleAutoMatch()
	case TypeJoinRoom:
		c.handleJoinRoom(msg)
	case TypeLeaveRoom:
		c.handleLeaveRoom(msg)
	case TypeOffer:
		c.relay(msg, metrics.RelayedOffers)
	case TypeAnswer:
		c.relay(msg, metrics.RelayedAnswers)
	case TypeICECandidate:
		c.relayCandidate(msg)
	}
}

func (c *session) handleCheckRoom(msg Message) {
	exists := c.srv.registry.Exists(msg.RoomID)
	c.srv.log.Debug().Str("conn", c.id).Str("room", msg.RoomID).Bool("exists", exists).Msg("check-room")
	_ = c.send(Message{
		Type:   TypeRoomStatus,
		RoomID: msg.RoomID,
		Exists: boolPtr(exists),
	})
}

func (c *session) handleAutoMatch() {
	res := c.srv.registry.AutoMatch(c.occupant())
	if res.IsCreator {
		c.srv.metrics.Inc(metrics.RoomsCreated)
	} else {
		c.srv.metrics.Inc(metrics.MatchesTotal)
	}
	c.srv.log.Info().Str("conn", c.id).Str("room", res.RoomID).Bool("creator", res.IsCreator).Msg("auto-match")

	_ = c.send(Message{
		Type:      TypeMatchResult,
		Success:   boolPtr(true),
		RoomID:    res.RoomID,
		IsCreator: boolPtr(res.IsCreator),
	})
	if res.Peer != nil {
		c.srv.sendTo(res.Peer.ConnID, Message{
			Type: TypeUserJoined,
			From: &c.principal,
		})
	}
}

func (c *session) handleJoinRoom(msg Message) {
	if msg.RoomID == "" {
		res := c.srv.registry.JoinOrCreate(c.occupant())
		c.srv.metrics.Inc(metrics.RoomsCreated)
		c.srv.log.Info().Str("conn", c.id).Str("room", res.RoomID).Msg("join-room created")
		_ = c.send(Message{
			Type:    TypeJoinResult,
			Success: boolPtr(true),
			RoomID:  res.RoomID,
		})
		return
	}

	res, err := c.srv.registry.Join(msg.RoomID, c.occupant())
	if err != nil {
		reason := errRoomNotFound
		if errors.Is(err, room.ErrRoomFull) {
			reason = errRoomFull
		}
		c.srv.log.Warn().Str("conn", c.id).Str("room", msg.RoomID).Err(err).Msg("join-room rejected")
		_ = c.send(Message{
			Type:    TypeJoinResult,
			Success: boolPtr(false),
			Error:   reason,
		})
		return
	}

	c.srv.log.Info().Str("conn", c.id).Str("room", res.RoomID).Msg("join-room")
	_ = c.send(Message{
		Type:    TypeJoinResult,
		Success: boolPtr(true),
		RoomID:  res.RoomID,
	})
	if res.Peer != nil {
		c.srv.sendTo(res.Peer.ConnID, Message{
			Type: TypeUserJoined,
			From: &c.principal,
		})
	}
}

func (c *session) handleLeaveRoom(msg Message) {
	current, inRoom := c.srv.registry.RoomOf(c.id)
	wasMember := inRoom && current == msg.RoomID

	c.srv.log.Info().Str("conn", c.id).Str("room", msg.RoomID).Msg("leave-room")
	peer := c.srv.registry.Leave(msg.RoomID, c.id)
	if peer != nil {
		c.srv.sendTo(peer.ConnID, Message{
			Type: TypeUserLeft,
			From: &c.principal,
		})
	} else if wasMember {
		c.srv.metrics.Inc(metrics.RoomsDeleted)
	}
}

// relay forwards an offer or answer to the counterparty. Addressing
// failures are reported to the sender only; the registry is never mutated.
func (c *session) relay(msg Message, counter string) {
	peer, err := c.srv.registry.Peer(msg.RoomID, c.id)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			c.srv.log.Warn().Str("conn", c.id).Str("room", msg.RoomID).Str("kind", string(msg.Type)).Msg("relay failed: room not found")
			c.sendError(CodeRoomNotFound, "Room not found")
		case errors.Is(err, room.ErrNoPeer):
			c.srv.log.Warn().Str("conn", c.id).Str("room", msg.RoomID).Str("kind", string(msg.Type)).Msg("relay failed: no peer")
			c.sendError(CodeNoPeer, "No peer in room")
		}
		return
	}

	c.srv.metrics.Inc(counter)
	c.srv.sendTo(peer.ConnID, Message{
		Type: msg.Type,
		SDP:  msg.SDP,
		From: &c.principal,
	})
}

// relayCandidate forwards an ICE candidate. A missing peer is silently
// dropped: candidates routinely race ahead of the peer's join.
func (c *session) relayCandidate(msg Message) {
	peer, err := c.srv.registry.Peer(msg.RoomID, c.id)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.sendError(CodeRoomNotFound, "Room not found")
			return
		}
		c.srv.metrics.Inc(metrics.DropReasonNoPeerCandidate)
		return
	}

	c.srv.metrics.Inc(metrics.RelayedCandidates)
	c.srv.sendTo(peer.ConnID, Message{
		Type:      TypeICECandidate,
		Candidate: msg.Candidate,
		From:      &c.principal,
	})
}

// teardown runs exactly once when the read loop exits, whatever the cause.
// Explicit leave may already have emptied the room; removal is idempotent.
func (c *session) teardown() {
	c.srv.unregister(c)
	roomID, peer, ok := c.srv.registry.RemoveConnection(c.id)
	if ok {
		c.srv.log.Info().Str("conn", c.id).Str("room", roomID).Msg("disconnected from room")
		if peer != nil {
			c.srv.sendTo(peer.ConnID, Message{
				Type: TypeUserLeft,
				From: &c.principal,
			})
		} else {
			c.srv.metrics.Inc(metrics.RoomsDeleted)
		}
	}
	c.close(websocket.CloseNormalClosure, "")
}

func (c *session) occupant() room.Occupant {
	return room.Occupant{ConnID: c.id, Principal: c.principal}
}

func (c *session) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *session) sendError(code, message string) {
	_ = c.send(Message{
		Type:    TypeError,
		Code:    code,
		Message: message,
	})
}

func (c *session) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *session) pingLoop() {
	ticker := time.NewTicker(c.srv.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
