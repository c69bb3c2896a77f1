package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/livetranslator/internal/identity"
	"github.com/ent0n29/livetranslator/internal/journal"
	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/protocol"
	"github.com/ent0n29/livetranslator/internal/registry"
	"github.com/ent0n29/livetranslator/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("client send buffer full")
)

// client owns one websocket. All data frames go through send and are written
// by writePump; control frames may be written from any goroutine.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, buffer int) *client {
	if buffer <= 0 {
		buffer = 256
	}
	return &client{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send queues payload for the writer. It never blocks.
func (c *client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		return errSendBufferFull
	}
}

// closeWith writes a close frame and tears the connection down. Only the
// first call has any effect.
func (c *client) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.metrics.ObserveDelivery("write", err)
				c.shutdown()
				return
			}
			s.metrics.ObserveMessage("outbound", "frame")
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	c := newClient(conn, s.cfg.SendBufferSize)
	if !s.track(c) {
		c.closeWith(websocket.CloseGoingAway, "server shutdown")
		return
	}
	defer s.untrack(c)
	defer c.shutdown()

	readLimit := s.cfg.WSReadLimit
	if readLimit <= 0 {
		readLimit = 1 << 20
	}
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	remote := r.RemoteAddr
	sess, ok := s.authenticate(c, remote)
	if !ok {
		return
	}
	s.serve(c, sess, remote)
}

// authenticate reads the first frame and verifies its token. On failure the
// connection is closed with a policy violation and nothing is registered.
func (s *Server) authenticate(c *client, remote string) (registry.Session, bool) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		s.log.Debug("connection closed before auth", zap.String("remote", remote), zap.Error(err))
		return registry.Session{}, false
	}

	reject := func(reason string, cause error) (registry.Session, bool) {
		s.log.Info("auth failed", zap.String("remote", remote), zap.String("reason", reason), zap.Error(cause))
		s.metrics.ConnectionEvent("auth_failed")
		s.record(journal.Event{Kind: journal.EventAuthFailed, Reason: reason, RemoteAddr: remote})
		c.closeWith(websocket.ClosePolicyViolation, reason)
		return registry.Session{}, false
	}

	if msgType != websocket.TextMessage {
		return reject("Invalid authentication message", protocol.ErrInvalidAuth)
	}
	auth, err := protocol.ParseAuth(data)
	if err != nil {
		return reject("Invalid authentication message", err)
	}
	id, err := s.identity.Verify(auth.Token)
	if err != nil {
		return reject("Invalid or expired token", err)
	}

	lang, ok := language.Parse(auth.Lang)
	if !ok {
		if strings.TrimSpace(auth.Lang) != "" {
			s.log.Warn("unsupported language, using default",
				zap.String("lang", auth.Lang),
				zap.String("default", string(language.Default)),
				zap.Strings("supported", supportedLanguages()),
			)
		}
		lang = language.Default
	}

	return registry.NewSession(registry.NewHandle(), displayName(auth.Name, id), id.ID, lang, c), true
}

func displayName(name string, id identity.Identity) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	short := id.ID
	if len(short) > 6 {
		short = short[:6]
	}
	return "User-" + short
}

// serve runs an authenticated connection until its transport fails. Cleanup
// removes the session and republishes presence exactly once on every exit
// path.
func (s *Server) serve(c *client, sess registry.Session, remote string) {
	log := s.log.With(
		zap.String("conn", string(sess.Handle)),
		zap.String("name", sess.DisplayName),
		zap.String("lang", string(sess.Language)),
	)

	go s.writePump(c)

	s.registry.Insert(sess)
	s.metrics.ConnectionEvent("connected")
	s.metrics.SetActiveConnections(s.registry.Len())
	s.record(journal.Event{
		Kind:        journal.EventConnected,
		Handle:      string(sess.Handle),
		IdentityID:  sess.IdentityID,
		DisplayName: sess.DisplayName,
		Language:    string(sess.Language),
		RemoteAddr:  remote,
	})
	log.Info("client connected")
	s.presence.Publish(s.ctx)

	queue := s.router.NewQueue(s.ctx, sess.Handle, s.cfg.SpeechQueueSize)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("connection panic", zap.Any("panic", rec))
		}
		queue.Close()
		c.shutdown()
		s.registry.Remove(sess.Handle)
		s.presence.Publish(s.ctx)
		s.metrics.ConnectionEvent("disconnected")
		s.metrics.SetActiveConnections(s.registry.Len())
		s.record(journal.Event{
			Kind:        journal.EventDisconnected,
			Handle:      string(sess.Handle),
			IdentityID:  sess.IdentityID,
			DisplayName: sess.DisplayName,
			Language:    string(sess.Language),
			RemoteAddr:  remote,
		})
		log.Info("client disconnected")
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleFrame(log, queue, sess.Handle, msgType, data)
	}
}

// handleFrame dispatches one post-auth frame. Bad frames are dropped and never
// end the connection.
func (s *Server) handleFrame(log *zap.Logger, queue *relay.SpeechQueue, h registry.Handle, msgType int, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("frame handler panic", zap.Any("panic", rec))
		}
	}()

	if len(data) > s.router.MaxSize() {
		s.metrics.DropFrame("too_large")
		log.Warn("frame too large", zap.Int("size", len(data)))
		return
	}
	if msgType != websocket.TextMessage {
		s.metrics.DropFrame("binary")
		return
	}

	parsed, err := protocol.ParseClientMessage(data)
	if err != nil {
		s.metrics.DropFrame("malformed")
		log.Debug("discarding frame", zap.Error(err))
		return
	}

	switch msg := parsed.(type) {
	case protocol.Status:
		s.metrics.ObserveMessage("inbound", string(protocol.TypeStatus))
		status := registry.StatusInactive
		if msg.Status != "" {
			var ok bool
			if status, ok = registry.ParseStatus(msg.Status); !ok {
				s.metrics.DropFrame("unknown_status")
				log.Debug("ignoring unknown status", zap.String("status", msg.Status))
				return
			}
		}
		if err := s.registry.UpdateStatus(h, status); err != nil {
			log.Debug("status update for removed session", zap.Error(err))
		}
	case protocol.Speech:
		s.metrics.ObserveMessage("inbound", string(protocol.TypeSpeech))
		queue.Enqueue(msg.Text)
	}
}

func (s *Server) record(ev journal.Event) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.journal.Record(ctx, ev); err != nil {
		s.log.Warn("journal record failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
