package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/jobchat/internal/chat"
	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/identity"
	"github.com/ashureev/jobchat/internal/store"
	"github.com/ashureev/jobchat/internal/support"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/poll"
)

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

var (
	employer  = &domain.User{ID: 1, Username: "acme", Role: domain.RoleEmployer}
	jobseeker = &domain.User{ID: 2, Username: "jane", Role: domain.RoleJobseeker}
	outsider  = &domain.User{ID: 9, Username: "mallory", Role: domain.RoleJobseeker}
)

type liveEnv struct {
	srv      *httptest.Server
	hub      *Broadcaster
	verifier *identity.Verifier
	repo     *store.SQLiteStore
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "live.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	verifier := identity.NewVerifier("live-secret")
	hub := NewBroadcaster(nil)
	opts := Options{IsDev: true, SendQueue: 16}

	chatSvc := chat.NewService(repo, chat.Options{})
	supportSvc := support.NewService(repo, support.NewSeededResponder(3, 4), nil)

	r := chi.NewRouter()
	r.With(identity.Middleware(repo, verifier)).Get("/ws/jobchat/{room}", NewChatHandler(chatSvc, hub, opts).ServeHTTP)
	r.Get("/ws/support", NewSupportHandler(supportSvc, hub, "", opts).ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &liveEnv{srv: srv, hub: hub, verifier: verifier, repo: repo}
}

func (e *liveEnv) dial(t *testing.T, path string, user *domain.User) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	if user != nil {
		token, err := e.verifier.Sign(user, time.Hour)
		assert.NilError(t, err)
		url += "?token=" + token
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	assert.NilError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func (e *liveEnv) waitMembers(t *testing.T, room string, n int) {
	t.Helper()
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if got := e.hub.Members(room); got != n {
			return poll.Continue("room %s has %d members, want %d", room, got, n)
		}
		return poll.Success()
	}, poll.WithTimeout(5*time.Second), poll.WithDelay(10*time.Millisecond))
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NilError(t, wsjson.Write(ctx, conn, v))
}

func receive(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NilError(t, wsjson.Read(ctx, conn, v))
}

func TestChatHandlerEndToEnd(t *testing.T) {
	env := newLiveEnv(t)
	room := domain.RoomName(employer.ID, jobseeker.ID)

	emp := env.dial(t, "/ws/jobchat/"+room, employer)
	seeker := env.dial(t, "/ws/jobchat/"+room, jobseeker)
	env.waitMembers(t, room, 2)

	// Jobseeker cold start is rejected on their own channel only.
	send(t, seeker, map[string]any{"message": "hire me", "receiver_id": employer.ID})
	var errFrame ErrorFrame
	receive(t, seeker, &errFrame)
	assert.Equal(t, errFrame.Type, FrameError)
	assert.Equal(t, errFrame.Message, chat.ReasonColdStart)

	// Incomplete frames are dropped silently.
	send(t, emp, map[string]any{"message": "no receiver"})
	send(t, emp, map[string]any{"message": "Welcome aboard", "receiver_id": "2"})

	for _, conn := range []*websocket.Conn{emp, seeker} {
		var ev ChatEvent
		receive(t, conn, &ev)
		assert.Equal(t, ev.Type, FrameChatMessage)
		assert.Equal(t, ev.Message, "Welcome aboard")
		assert.Equal(t, ev.Sender, "acme")
		assert.Equal(t, ev.SenderID, employer.ID)
		assert.Equal(t, ev.SenderType, domain.RoleEmployer)
		assert.Equal(t, ev.ReceiverID, jobseeker.ID)
		assert.Check(t, ev.MessageID > 0)
	}

	// The conversation now exists, so the jobseeker may reply.
	send(t, seeker, map[string]any{"message": "Thanks!", "receiver_id": employer.ID})
	var reply ChatEvent
	receive(t, emp, &reply)
	assert.Equal(t, reply.Message, "Thanks!")
	assert.Equal(t, reply.SenderType, domain.RoleJobseeker)

	conv, err := env.repo.FindConversation(context.Background(), employer.ID, jobseeker.ID)
	assert.NilError(t, err)
	assert.Assert(t, conv != nil)
	assert.Equal(t, *conv.InitiatedBy, employer.ID)
	msgs, err := env.repo.ListMessages(context.Background(), conv.ID, 0)
	assert.NilError(t, err)
	assert.Check(t, is.Len(msgs, 2))
}

func TestChatHandlerRejectsNonParticipantRoom(t *testing.T) {
	env := newLiveEnv(t)
	emp := env.dial(t, "/ws/jobchat/private_e", employer)
	env.waitMembers(t, "private_e", 1)

	for _, room := range []string{"chat_1_2", "chat_2_1"} {
		token, err := env.verifier.Sign(outsider, time.Hour)
		assert.NilError(t, err)
		url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/jobchat/" + room + "?token=" + token

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, resp, err := websocket.Dial(ctx, url, nil)
		cancel()
		assert.Check(t, err != nil)
		assert.Assert(t, resp != nil)
		assert.Equal(t, resp.StatusCode, 403)
	}
	assert.Equal(t, env.hub.Members("chat_1_2"), 0)

	// The participants themselves can still subscribe to the pair room.
	seeker := env.dial(t, "/ws/jobchat/chat_1_2", jobseeker)
	env.waitMembers(t, "chat_1_2", 1)

	send(t, emp, map[string]any{"message": "salary offer 90k", "receiver_id": jobseeker.ID})
	var ev ChatEvent
	receive(t, seeker, &ev)
	assert.Equal(t, ev.Message, "salary offer 90k")
	assert.Equal(t, env.hub.Members("chat_1_2"), 1)
}

func TestChatHandlerRepliesDisabled(t *testing.T) {
	env := newLiveEnv(t)
	room := domain.RoomName(employer.ID, jobseeker.ID)
	emp := env.dial(t, "/ws/jobchat/"+room, employer)
	seeker := env.dial(t, "/ws/jobchat/"+room, jobseeker)
	env.waitMembers(t, room, 2)

	send(t, emp, map[string]any{"message": "Please hold", "receiver_id": jobseeker.ID})
	for _, conn := range []*websocket.Conn{emp, seeker} {
		var ev ChatEvent
		receive(t, conn, &ev)
		assert.Equal(t, ev.Message, "Please hold")
	}

	ctx := context.Background()
	conv, err := env.repo.FindConversation(ctx, employer.ID, jobseeker.ID)
	assert.NilError(t, err)
	assert.Assert(t, conv != nil)
	assert.NilError(t, env.repo.SetJobseekerCanReply(ctx, conv.ID, false))

	send(t, seeker, map[string]any{"message": "Any news?", "receiver_id": employer.ID})
	var errFrame ErrorFrame
	receive(t, seeker, &errFrame)
	assert.Equal(t, errFrame.Type, FrameError)
	assert.Equal(t, errFrame.Message, chat.ReasonRepliesDisabled)

	// Nothing reached the employer: the next frame they see answers their ping.
	send(t, emp, map[string]string{"type": FramePing})
	var next map[string]any
	receive(t, emp, &next)
	assert.Equal(t, next["type"], FramePong)

	msgs, err := env.repo.ListMessages(ctx, conv.ID, 0)
	assert.NilError(t, err)
	assert.Check(t, is.Len(msgs, 1))
}

func TestChatHandlerPing(t *testing.T) {
	env := newLiveEnv(t)
	conn := env.dial(t, "/ws/jobchat/lobby", employer)

	send(t, conn, map[string]string{"type": FramePing})
	var pong map[string]string
	receive(t, conn, &pong)
	assert.Equal(t, pong["type"], FramePong)
}

func TestChatHandlerRequiresIdentity(t *testing.T) {
	env := newLiveEnv(t)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/jobchat/lobby"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	assert.Check(t, err != nil)
	assert.Assert(t, resp != nil)
	assert.Equal(t, resp.StatusCode, 401)
}

func TestSupportHandlerBroadcastsToSupportRoom(t *testing.T) {
	env := newLiveEnv(t)
	asker := env.dial(t, "/ws/support", nil)
	watcher := env.dial(t, "/ws/support", nil)
	env.waitMembers(t, DefaultSupportRoom, 2)

	send(t, asker, map[string]string{"message": "Where are the login instructions?"})

	for _, conn := range []*websocket.Conn{asker, watcher} {
		var user, bot SupportFrame
		receive(t, conn, &user)
		receive(t, conn, &bot)
		assert.Equal(t, user.Sender, domain.SupportSenderUser)
		assert.Equal(t, user.Message, "Where are the login instructions?")
		assert.Equal(t, bot.Sender, domain.SupportSenderBot)
		assert.Check(t, is.Contains(support.Replies(support.TopicLogin), bot.Message))
	}
}
