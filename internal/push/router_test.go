package push

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackitapp/stackit-sync/internal/sse"
	"github.com/stackitapp/stackit-sync/internal/transport"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

func startedHarness(t *testing.T, userID string) *harness {
	t.Helper()
	h := newHarness(transport.StateConnected)
	h.router.SetUser(userID)
	h.router.Start(context.Background())
	t.Cleanup(h.router.Stop)
	return h
}

func TestRouter_StartSubscribesBaseTopics(t *testing.T) {
	h := startedHarness(t, "42")

	for _, key := range []string{"all-questions", "user-status", "announcements", "pong", "notifications-42"} {
		assert.True(t, h.transport.subscribed(key), key)
	}
	assert.Equal(t, "/user/42/queue/notifications", h.transport.topic("notifications-42"))
}

func TestRouter_WatchBeforeConnectSubscribesOnConnect(t *testing.T) {
	h := newHarness(transport.StateIdle)
	h.router.Start(context.Background())
	t.Cleanup(h.router.Stop)

	h.router.WatchQuestion("5")
	assert.False(t, h.transport.subscribed("question-5"))
	assert.Contains(t, h.router.Watched(), "question-5")

	h.transport.setState(transport.StateConnected)

	assert.True(t, h.transport.subscribed("question-5"))
	assert.True(t, h.transport.subscribed("typing-5"))
	assert.Equal(t, "/topic/questions/5/typing", h.transport.topic("typing-5"))
}

func TestRouter_SetUserSwapsNotificationQueue(t *testing.T) {
	h := startedHarness(t, "1")

	h.router.SetUser("2")
	assert.False(t, h.transport.subscribed("notifications-1"))
	assert.True(t, h.transport.subscribed("notifications-2"))

	h.router.SetUser("")
	assert.False(t, h.transport.subscribed("notifications-2"))
	assert.NotContains(t, h.router.Watched(), "notifications-2")
}

func TestRouter_RoutesEntityEvents(t *testing.T) {
	h := startedHarness(t, "42")
	h.router.WatchQuestion("5")
	h.router.WatchAnswer("12")

	h.transport.deliver("all-questions", `{"type":"QUESTION_CREATED","data":{"id":5,"title":"Q"}}`)
	h.transport.deliver("question-5", `{"type":"NEW_ANSWER","data":{"id":12,"content":"A","questionId":5}}`)
	h.transport.deliver("question-5", `{"type":"ANSWER_ACCEPTED","questionId":5,"answerId":12}`)
	h.transport.deliver("answer-12", `{"type":"VOTE_CHANGED","answerId":12,"newScore":3}`)
	h.transport.deliver("notifications-42", `{"type":"NEW_NOTIFICATION","data":{"id":1,"message":"m"}}`)

	assert.Contains(t, h.questions.questions, "5")
	assert.Contains(t, h.answers.answers, "12")
	assert.Equal(t, "12", h.questions.accepted["5"])
	require.Len(t, h.votes.changes, 1)
	assert.Equal(t, 3, h.votes.changes[0].NewScore)
	require.Len(t, h.notifications.merged, 1)
	assert.Equal(t, "42", h.notifications.merged[0].RecipientID)

	assert.Equal(t, 1, h.observer.routed[wire.PushNewAnswer])
	assert.Empty(t, h.observer.dropped)
}

func TestRouter_DuplicateNewAnswerCountsOnce(t *testing.T) {
	h := startedHarness(t, "")
	h.router.WatchQuestion("5")

	body := `{"type":"NEW_ANSWER","data":{"id":12,"content":"A","questionId":5}}`
	h.transport.deliver("question-5", body)
	h.transport.deliver("question-5", body)

	assert.Equal(t, 1, h.questions.increments["5"])
	assert.Len(t, h.answers.answers, 1)
}

func TestRouter_MalformedPayloadIsDropped(t *testing.T) {
	h := startedHarness(t, "")

	h.transport.deliver("all-questions", `not json`)
	h.transport.deliver("all-questions", `{"type":"QUESTION_CREATED","data":{"id":8,"title":"ok"}}`)

	assert.Equal(t, 1, h.observer.dropped["all-questions"])
	assert.Contains(t, h.questions.questions, "8")
	assert.True(t, h.transport.subscribed("all-questions"))
	assert.Equal(t, transport.StateConnected, h.transport.State())
}

func TestRouter_TypingTracksSet(t *testing.T) {
	h := startedHarness(t, "")
	h.router.WatchQuestion("5")

	h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"bo","isTyping":true}`)
	h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"ana","isTyping":true}`)
	h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"ana","isTyping":true}`)
	assert.Equal(t, []string{"ana", "bo"}, h.router.Typing("5"))
	assert.True(t, h.router.AnyoneTyping("5"))

	h.transport.deliver("typing-5", `{"username":"ana","isTyping":false}`)
	h.transport.deliver("typing-5", `{"username":"bo","isTyping":false}`)
	assert.Empty(t, h.router.Typing("5"))
	assert.False(t, h.router.AnyoneTyping("5"))

	assert.Len(t, h.emitter.ofType(sse.EventTyping), 4)
}

func TestRouter_ReconnectResetsSubscriptionsAndTyping(t *testing.T) {
	h := startedHarness(t, "42")
	h.router.WatchQuestion("5")
	h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"ana","isTyping":true}`)
	require.True(t, h.router.AnyoneTyping("5"))

	h.transport.setState(transport.StateDisconnected)
	assert.False(t, h.router.AnyoneTyping("5"))
	assert.False(t, h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"ana","isTyping":true}`))

	h.transport.setState(transport.StateConnecting)
	h.transport.setState(transport.StateConnected)

	assert.Empty(t, h.router.Typing("5"))
	for _, key := range h.router.Watched() {
		assert.True(t, h.transport.subscribed(key), key)
	}

	h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"bo","isTyping":true}`)
	assert.Equal(t, []string{"bo"}, h.router.Typing("5"))
}

func TestRouter_ResyncAfterConnect(t *testing.T) {
	h := newHarness(transport.StateIdle)
	h.router.SetUser("42")
	h.router.Start(context.Background())
	t.Cleanup(h.router.Stop)

	h.transport.setState(transport.StateConnected)

	require.Eventually(t, func() bool {
		return h.questions.fetchCount() == 1 && len(h.notifications.fetched()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.questions.fetches[0].Page)
	assert.Equal(t, 15, h.questions.fetches[0].Size)
	assert.Equal(t, []string{"42"}, h.notifications.fetched())

	h.router.Stop()
	assert.Equal(t, 1, h.observer.resyncs)
}

func TestRouter_UnwatchQuestionForgetsTyping(t *testing.T) {
	h := startedHarness(t, "")
	h.router.WatchQuestion("5")
	h.transport.deliver("typing-5", `{"type":"TYPING_INDICATOR","username":"ana","isTyping":true}`)

	h.router.UnwatchQuestion("5")

	assert.False(t, h.transport.subscribed("question-5"))
	assert.False(t, h.transport.subscribed("typing-5"))
	assert.False(t, h.router.AnyoneTyping("5"))
}

func TestRouter_PresenceAndAnnouncements(t *testing.T) {
	h := startedHarness(t, "")

	h.transport.deliver("user-status", `{"type":"USER_STATUS","userId":7,"isOnline":true}`)
	h.transport.deliver("user-status", `{"type":"USER_STATUS","userId":7,"isOnline":true}`)
	h.transport.deliver("user-status", `{"type":"USER_STATUS","userId":8,"isOnline":false}`)
	h.transport.deliver("announcements", `{"type":"SYSTEM_ANNOUNCEMENT","title":"Hi","message":"there","announcementType":"INFO"}`)

	assert.True(t, h.router.Online("7"))
	assert.False(t, h.router.Online("8"))
	assert.Equal(t, []string{"7"}, h.router.OnlineUsers())
	assert.Len(t, h.emitter.ofType(sse.EventPresence), 2)
	require.Len(t, h.emitter.ofType(sse.EventAnnouncement), 1)

	h.router.Reset()
	assert.Empty(t, h.router.OnlineUsers())
}

func TestRouter_Publishing(t *testing.T) {
	h := startedHarness(t, "")
	now := time.UnixMilli(1700000000000)
	h.router.now = func() time.Time { return now }

	require.NoError(t, h.router.SendTyping("5", "ana", true))
	require.NoError(t, h.router.SendStatus("7", false))
	require.NoError(t, h.router.Ping())

	sent := h.transport.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "/app/question/5/typing", sent[0].destination)
	assert.Equal(t, wire.TypingMessage{Username: "ana", IsTyping: true}, sent[0].payload)
	assert.Equal(t, "/app/user/status", sent[1].destination)
	assert.Equal(t, wire.StatusMessage{UserID: "7", IsOnline: false}, sent[1].payload)
	assert.Equal(t, "/app/ping", sent[2].destination)
	assert.Equal(t, wire.PingMessage{Timestamp: 1700000000000}, sent[2].payload)
}

func TestRouter_PublishingRequiresConnection(t *testing.T) {
	h := newHarness(transport.StateIdle)

	err := h.router.SendTyping("5", "ana", true)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestRouter_PongRecordsTime(t *testing.T) {
	h := startedHarness(t, "")

	h.transport.deliver("pong", `{"type":"PONG","timestamp":1700000000000}`)

	assert.Equal(t, int64(1700000000000), h.router.LastPong().UnixMilli())
}
