package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/messaging"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// memStore keeps conversations in memory.
type memStore struct {
	mu      sync.Mutex
	members map[uint][]uint
	nextID  uint
	sent    []models.Message
}

func newMemStore() *memStore {
	return &memStore{members: map[uint][]uint{10: {1, 2, 3}, 20: {1, 4}}}
}

func (s *memStore) IsParticipant(_ context.Context, conv, user uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.members[conv] {
		if id == user {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Participants(_ context.Context, conv uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.members[conv]...), nil
}

func (s *memStore) ConversationIDs(ctx context.Context, user uint) ([]uint, error) {
	var out []uint
	for _, conv := range []uint{10, 20} {
		if ok, _ := s.IsParticipant(ctx, conv, user); ok {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (s *memStore) Send(ctx context.Context, sender uint, req models.SendMessageRequest) (*messaging.Delivery, error) {
	if ok, _ := s.IsParticipant(ctx, req.ConversationID, sender); !ok {
		return nil, messaging.ErrNotParticipant
	}
	if req.Content == "boom" {
		return nil, errors.New("connection reset")
	}
	s.mu.Lock()
	s.nextID++
	msg := models.Message{ID: s.nextID, ConversationID: req.ConversationID, SenderID: sender, Content: req.Content, MessageType: models.MessageText}
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	participants, _ := s.Participants(ctx, req.ConversationID)
	return &messaging.Delivery{Message: &msg, Participants: participants}, nil
}

func (s *memStore) MarkRead(ctx context.Context, user, conv uint) ([]uint, error) {
	if ok, _ := s.IsParticipant(ctx, conv, user); !ok {
		return nil, messaging.ErrNotParticipant
	}
	return s.Participants(ctx, conv)
}

func (s *memStore) React(ctx context.Context, user, msgID uint, rt string) (*messaging.Reaction, error) {
	participants, _ := s.Participants(ctx, 10)
	return &messaging.Reaction{ConversationID: 10, MessageID: msgID, UserID: user, ReactionType: rt, Added: true, Participants: participants}, nil
}

func (s *memStore) Unreact(ctx context.Context, user, msgID uint, rt string) (*messaging.Reaction, error) {
	r, _ := s.React(ctx, user, msgID, rt)
	r.Added = false
	return r, nil
}

func verifyToken(token string) (uint, error) {
	switch token {
	case "u1":
		return 1, nil
	case "u2":
		return 2, nil
	case "u3":
		return 3, nil
	case "u4":
		return 4, nil
	}
	return 0, domain.ErrUnauthorized
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(newMemStore(), verifyToken, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		channel := ChannelMessenger
		if strings.HasPrefix(r.URL.Path, "/ws/notifications") {
			channel = ChannelNotifications
		}
		hub.ServeWS(w, r, r.URL.Query().Get("token"), channel)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials the messenger socket and consumes the connection frame.
func connect(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn := dial(t, srv, "/ws/messenger", token)
	f := next(t, conn)
	require.Equal(t, TypeConnection, f["type"])
	return conn
}

// next returns the next frame that is not a presence update.
func next(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &f))
		if f["type"] == TypeUserOnline || f["type"] == TypeUserOffline {
			continue
		}
		return f
	}
}

func send(t *testing.T, conn *websocket.Conn, in Inbound) {
	t.Helper()
	b, err := json.Marshal(in)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

// roundTrip pings and asserts the very next frame is the pong, proving
// nothing else was queued ahead of it.
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, Inbound{Type: TypePing})
	assert.Equal(t, TypePong, next(t, conn)["type"])
}

func TestInvalidTokenClosesWith4001(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "/ws/messenger", "nope")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseInvalidToken, closeErr.Code)
}

func TestSendMessageFanOut(t *testing.T) {
	_, srv := startHub(t)
	p1 := connect(t, srv, "u1")
	p2 := connect(t, srv, "u2")
	p3 := connect(t, srv, "u3")

	send(t, p1, Inbound{Type: TypeSendMessage, ConversationID: 10, Content: "hello", TempID: "tmp-1"})

	ack := next(t, p1)
	assert.Equal(t, TypeMessageSent, ack["type"])
	assert.Equal(t, "tmp-1", ack["temp_id"])
	assert.Equal(t, float64(10), ack["conversation_id"])

	for _, peer := range []*websocket.Conn{p2, p3} {
		f := next(t, peer)
		assert.Equal(t, TypeNewMessage, f["type"])
		msg := f["message"].(map[string]interface{})
		assert.Equal(t, "hello", msg["content"])
		roundTrip(t, peer)
	}
	roundTrip(t, p1)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	_, srv := startHub(t)
	p4 := connect(t, srv, "u4")

	send(t, p4, Inbound{Type: TypeSendMessage, ConversationID: 10, Content: "hi"})
	f := next(t, p4)
	assert.Equal(t, TypeError, f["type"])
	assert.Contains(t, f["message"], "not a participant")

	send(t, p4, Inbound{Type: TypeSendMessage, ConversationID: 20, Content: "boom"})
	f = next(t, p4)
	assert.Equal(t, TypeError, f["type"])
	assert.Equal(t, "internal error", f["message"])

	send(t, p4, Inbound{Type: TypeJoinConversation, ConversationID: 10})
	assert.Equal(t, TypeError, next(t, p4)["type"])
}

func TestTypingReachesRoomOnly(t *testing.T) {
	hub, srv := startHub(t)
	p1 := connect(t, srv, "u1")
	p2 := connect(t, srv, "u2")
	p3 := connect(t, srv, "u3")

	send(t, p1, Inbound{Type: TypeJoinConversation, ConversationID: 10})
	assert.Equal(t, TypeJoined, next(t, p1)["type"])
	send(t, p2, Inbound{Type: TypeJoinConversation, ConversationID: 10})
	assert.Equal(t, TypeJoined, next(t, p2)["type"])
	assert.ElementsMatch(t, []uint{1, 2}, hub.RoomMembers(10))

	send(t, p1, Inbound{Type: TypeTyping, ConversationID: 10, IsTyping: true})
	f := next(t, p2)
	assert.Equal(t, TypeTyping, f["type"])
	assert.Equal(t, true, f["is_typing"])
	assert.Equal(t, float64(1), f["user_id"])

	roundTrip(t, p1)
	roundTrip(t, p3)
}

func TestDisconnectLeavesRoomsAndAnnouncesOffline(t *testing.T) {
	hub, srv := startHub(t)
	p1 := connect(t, srv, "u1")
	p2 := connect(t, srv, "u2")

	send(t, p2, Inbound{Type: TypeJoinConversation, ConversationID: 10})
	assert.Equal(t, TypeJoined, next(t, p2)["type"])
	require.True(t, hub.Online(2))

	require.NoError(t, p2.Close())

	var offline map[string]interface{}
	for offline == nil {
		require.NoError(t, p1.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := p1.ReadMessage()
		require.NoError(t, err)
		var f map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &f))
		if f["type"] == TypeUserOffline {
			offline = f
		}
	}
	assert.Equal(t, float64(2), offline["user_id"])
	assert.Equal(t, float64(10), offline["conversation_id"])
	assert.False(t, hub.Online(2))
	assert.Empty(t, hub.RoomMembers(10))
}

func TestServeShutdownClosesSockets(t *testing.T) {
	hub, srv := startHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	conn := connect(t, srv, "u1")
	require.True(t, hub.Online(1))
	cancel()

	var closeErr *websocket.CloseError
	for closeErr == nil {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		if err != nil {
			require.ErrorAs(t, err, &closeErr)
		}
	}
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Eventually(t, func() bool { return !hub.Online(1) }, 2*time.Second, 10*time.Millisecond)
}

func TestPushNotificationTargetsNotificationSockets(t *testing.T) {
	hub, srv := startHub(t)
	assert.False(t, hub.PushNotification(1, &models.Notification{ID: 7}))

	messenger := connect(t, srv, "u1")
	assert.False(t, hub.PushNotification(1, &models.Notification{ID: 7}))

	notif := dial(t, srv, "/ws/notifications", "u1")
	require.Equal(t, TypeConnection, next(t, notif)["type"])

	n := &models.Notification{ID: 7, Title: "New comment"}
	require.True(t, hub.PushNotification(1, n))
	n.Title = "changed"

	f := next(t, notif)
	assert.Equal(t, TypeNotification, f["type"])
	payload := f["notification"].(map[string]interface{})
	assert.Equal(t, "New comment", payload["title"])

	roundTrip(t, messenger)
}

func TestEnqueueDropsOldest(t *testing.T) {
	hub := NewHub(newMemStore(), verifyToken, nil)
	c := newClient(hub, nil, 1, ChannelMessenger)
	for i := 0; i < sendQueueSize+5; i++ {
		require.True(t, c.enqueue([]byte{byte(i)}))
	}
	assert.Len(t, c.send, sendQueueSize)
	assert.Equal(t, byte(5), (<-c.send)[0])

	c.close()
	assert.False(t, c.enqueue([]byte("late")))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://reviewinn.com"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://reviewinn.com")
	assert.True(t, check(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))
	assert.True(t, originChecker([]string{"*"})(r))
}
