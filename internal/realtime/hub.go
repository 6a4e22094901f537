package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/messaging"
	"github.com/anonto42/reviewinn/backend/internal/metrics"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// Store is the persistence the hub needs; messaging.Service implements it.
type Store interface {
	IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error)
	Participants(ctx context.Context, conversationID uint) ([]uint, error)
	ConversationIDs(ctx context.Context, userID uint) ([]uint, error)
	Send(ctx context.Context, senderID uint, req models.SendMessageRequest) (*messaging.Delivery, error)
	MarkRead(ctx context.Context, userID, conversationID uint) ([]uint, error)
	React(ctx context.Context, userID, messageID uint, reactionType string) (*messaging.Reaction, error)
	Unreact(ctx context.Context, userID, messageID uint, reactionType string) (*messaging.Reaction, error)
}

// TokenVerifier resolves an access token to a user ID.
type TokenVerifier func(token string) (uint, error)

// Hub is the process-local connection registry.
type Hub struct {
	store    Store
	verify   TokenVerifier
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.RWMutex
	conns map[uint]map[*Client]struct{}
	rooms map[uint]map[uint]struct{}
}

// NewHub creates a hub. An empty origins list, or one containing "*", accepts
// any origin.
func NewHub(store Store, verify TokenVerifier, origins []string) *Hub {
	h := &Hub{
		store:  store,
		verify: verify,
		log:    logging.With("realtime"),
		conns:  make(map[uint]map[*Client]struct{}),
		rooms:  make(map[uint]map[uint]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(origins),
	}
	return h
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o == "*" {
			return func(*http.Request) bool { return true }
		} else if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// ServeWS upgrades the request, authenticates token and runs the read loop
// until the peer disconnects. An invalid token closes with code 4001.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, token string, channel Channel) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	userID, err := h.verify(token)
	if err != nil {
		h.log.Info().Err(err).Str("channel", string(channel)).Msg("websocket rejected: invalid token")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseInvalidToken, "invalid token"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := newClient(h, conn, userID, channel)
	first := h.register(c)
	c.sendFrame(Outbound{Type: TypeConnection, Status: "connected", UserID: userID, Timestamp: time.Now().UTC()})
	if first && channel == ChannelMessenger {
		h.announceOnline(r.Context(), userID)
	}

	go c.writePump()
	c.readPump(r.Context())
}

// register adds c and reports whether it is the user's first messenger
// connection.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	first := c.channel == ChannelMessenger && h.countLocked(c.userID, ChannelMessenger) == 1
	h.mu.Unlock()

	metrics.WSConnections.WithLabelValues(string(c.channel)).Inc()
	c.log.Info().Msg("websocket connected")
	return first
}

func (h *Hub) countLocked(userID uint, channel Channel) int {
	n := 0
	for c := range h.conns[userID] {
		if c.channel == channel {
			n++
		}
	}
	return n
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.conns[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
	var left []uint
	if c.channel == ChannelMessenger && h.countLocked(c.userID, ChannelMessenger) == 0 {
		for convID, members := range h.rooms {
			if _, in := members[c.userID]; in {
				delete(members, c.userID)
				left = append(left, convID)
				if len(members) == 0 {
					delete(h.rooms, convID)
				}
			}
		}
	}
	h.mu.Unlock()

	c.close()
	metrics.WSConnections.WithLabelValues(string(c.channel)).Dec()
	c.log.Info().Msg("websocket disconnected")

	if len(left) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.announceOffline(ctx, c.userID, left)
	}
}

// Online reports whether userID has at least one open connection.
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// RoomMembers returns the users currently joined to a conversation.
func (h *Hub) RoomMembers(conversationID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uint, 0, len(h.rooms[conversationID]))
	for id := range h.rooms[conversationID] {
		out = append(out, id)
	}
	return out
}

// sendToUser queues frame on every connection of userID on channel and
// returns how many accepted it.
func (h *Hub) sendToUser(userID uint, channel Channel, frame []byte) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		if c.channel == channel {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			n++
		}
	}
	return n
}

func (h *Hub) fanOut(users []uint, except uint, v interface{}) {
	frame, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal websocket frame")
		return
	}
	for _, id := range users {
		if id != except {
			h.sendToUser(id, ChannelMessenger, frame)
		}
	}
}

// PushNotification delivers n to the user's notification sockets. The frame
// is marshalled before returning, so callers may reuse n.
func (h *Hub) PushNotification(userID uint, n *models.Notification) bool {
	frame, err := json.Marshal(Outbound{Type: TypeNotification, Notification: n, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal notification frame")
		return false
	}
	return h.sendToUser(userID, ChannelNotifications, frame) > 0
}

func (h *Hub) announceOnline(ctx context.Context, userID uint) {
	convIDs, err := h.store.ConversationIDs(ctx, userID)
	if err != nil {
		h.log.Warn().Err(err).Uint("user_id", userID).Msg("presence lookup failed")
		return
	}
	seen := make(map[uint]struct{})
	var peers []uint
	for _, convID := range convIDs {
		ids, err := h.store.Participants(ctx, convID)
		if err != nil {
			h.log.Warn().Err(err).Uint("conversation_id", convID).Msg("presence lookup failed")
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; !dup && id != userID {
				seen[id] = struct{}{}
				peers = append(peers, id)
			}
		}
	}
	h.fanOut(peers, userID, Outbound{Type: TypeUserOnline, UserID: userID, Timestamp: time.Now().UTC()})
}

func (h *Hub) announceOffline(ctx context.Context, userID uint, conversations []uint) {
	for _, convID := range conversations {
		ids, err := h.store.Participants(ctx, convID)
		if err != nil {
			h.log.Warn().Err(err).Uint("conversation_id", convID).Msg("presence lookup failed")
			continue
		}
		h.fanOut(ids, userID, Outbound{Type: TypeUserOffline, UserID: userID, ConversationID: convID, Timestamp: time.Now().UTC()})
	}
}

// dispatch handles one inbound frame. Errors are reported to c only.
func (h *Hub) dispatch(ctx context.Context, c *Client, in Inbound) {
	now := time.Now().UTC()
	if in.Type == TypePing {
		c.sendFrame(Outbound{Type: TypePong, Timestamp: now})
		return
	}
	if c.channel != ChannelMessenger {
		c.sendFrame(errorFrame("unsupported frame type: " + in.Type))
		return
	}

	switch in.Type {
	case TypeJoinConversation:
		ok, err := h.store.IsParticipant(ctx, in.ConversationID, c.userID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if !ok {
			c.sendFrame(errorFrame("not a participant of this conversation"))
			return
		}
		h.mu.Lock()
		members, exists := h.rooms[in.ConversationID]
		if !exists {
			members = make(map[uint]struct{})
			h.rooms[in.ConversationID] = members
		}
		members[c.userID] = struct{}{}
		h.mu.Unlock()
		c.sendFrame(Outbound{Type: TypeJoined, ConversationID: in.ConversationID, Timestamp: now})

	case TypeLeaveConversation:
		h.mu.Lock()
		if members, ok := h.rooms[in.ConversationID]; ok {
			delete(members, c.userID)
			if len(members) == 0 {
				delete(h.rooms, in.ConversationID)
			}
		}
		h.mu.Unlock()

	case TypeTyping:
		members := h.RoomMembers(in.ConversationID)
		joined := false
		for _, id := range members {
			joined = joined || id == c.userID
		}
		if !joined {
			c.sendFrame(errorFrame("join the conversation first"))
			return
		}
		typing := in.IsTyping
		h.fanOut(members, c.userID, Outbound{Type: TypeTyping, ConversationID: in.ConversationID, UserID: c.userID, IsTyping: &typing, Timestamp: now})

	case TypeSendMessage:
		d, err := h.store.Send(ctx, c.userID, models.SendMessageRequest{
			ConversationID:   in.ConversationID,
			Content:          in.Content,
			MessageType:      in.MessageType,
			ReplyToMessageID: in.ReplyToMessageID,
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		h.publishMessage(c.userID, d, in.TempID)
		c.sendFrame(Outbound{Type: TypeMessageSent, ConversationID: in.ConversationID, Message: d.Message, TempID: in.TempID, Timestamp: now})

	case TypeMarkRead:
		participants, err := h.store.MarkRead(ctx, c.userID, in.ConversationID)
		if err != nil {
			h.fail(c, err)
			return
		}
		h.PublishRead(c.userID, in.ConversationID, participants)

	case TypeAddReaction, TypeRemoveReaction:
		var r *messaging.Reaction
		var err error
		if in.Type == TypeAddReaction {
			r, err = h.store.React(ctx, c.userID, in.MessageID, in.ReactionType)
		} else {
			r, err = h.store.Unreact(ctx, c.userID, in.MessageID, in.ReactionType)
		}
		if err != nil {
			h.fail(c, err)
			return
		}
		h.PublishReaction(r)

	default:
		c.sendFrame(errorFrame("unknown frame type: " + in.Type))
	}
}

// PublishMessage fans a message persisted outside the socket (HTTP) out to
// the other participants.
func (h *Hub) PublishMessage(senderID uint, d *messaging.Delivery) {
	h.publishMessage(senderID, d, "")
}

func (h *Hub) publishMessage(senderID uint, d *messaging.Delivery, tempID string) {
	h.fanOut(d.Participants, senderID, Outbound{
		Type: TypeNewMessage, ConversationID: d.Message.ConversationID, Message: d.Message,
		TempID: tempID, Timestamp: time.Now().UTC(),
	})
}

// PublishRead tells the other participants that userID read the conversation.
func (h *Hub) PublishRead(userID, conversationID uint, participants []uint) {
	h.fanOut(participants, userID, Outbound{
		Type: TypeMessageStatus, ConversationID: conversationID, UserID: userID,
		Status: "read", Timestamp: time.Now().UTC(),
	})
}

// PublishReaction sends a reaction change to every participant, the reactor
// included.
func (h *Hub) PublishReaction(r *messaging.Reaction) {
	action := "removed"
	if r.Added {
		action = "added"
	}
	h.fanOut(r.Participants, 0, Outbound{
		Type: TypeReaction, ConversationID: r.ConversationID, MessageID: r.MessageID,
		UserID: r.UserID, ReactionType: r.ReactionType, Action: action, Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) fail(c *Client, err error) {
	if domain.Known(err) {
		c.sendFrame(errorFrame(err.Error()))
		return
	}
	c.log.Error().Err(err).Msg("websocket request failed")
	c.sendFrame(errorFrame("internal error"))
}

// Serve blocks until ctx is cancelled, then closes every connection.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	var all []*Client
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		c.shutdown()
	}
	h.log.Info().Int("clients", len(all)).Msg("realtime hub stopped")
	return ctx.Err()
}

func (h *Hub) String() string { return "realtime-hub" }
