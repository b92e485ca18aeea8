package tally

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/events"
	"presence/internal/queue"
)

func recorded(t *testing.T, course, status string) queue.Message {
	t.Helper()
	msg, err := queue.NewMessage(events.TypePresenceRecorded, events.PresenceRecorded{
		RecordID: 1, Name: "Alice", Course: course, Status: status, RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return msg
}

func TestRedisCounter(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCounter(client, "")
	ctx := context.Background()

	mock.ExpectHIncrBy("presence:tally:math1", "accepted", 1).SetVal(1)
	require.NoError(t, c.Incr(ctx, "math1", "accepted"))

	mock.ExpectHGetAll("presence:tally:math1").SetVal(map[string]string{"accepted": "4", "refused": "2"})
	got, err := c.Get(ctx, "math1")
	require.NoError(t, err)
	assert.Equal(t, Tally{Course: "math1", Accepted: 4, Refused: 2}, got)

	mock.ExpectHGetAll("presence:tally:empty").SetVal(map[string]string{})
	got, err = c.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, Tally{Course: "empty"}, got)

	mock.ExpectHGetAll("presence:tally:broken").SetVal(map[string]string{"accepted": "x"})
	_, err = c.Get(ctx, "broken")
	assert.Error(t, err)

	mock.ExpectHGetAll("presence:tally:down").SetErr(errors.New("connection refused"))
	_, err = c.Get(ctx, "down")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCounterAndApply(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	require.NoError(t, Apply(ctx, c, recorded(t, "math1", "accepted")))
	require.NoError(t, Apply(ctx, c, recorded(t, "math1", "accepted")))
	require.NoError(t, Apply(ctx, c, recorded(t, "math1", "refused")))
	require.NoError(t, Apply(ctx, c, queue.Message{Type: "something.else"}))
	assert.Error(t, Apply(ctx, c, recorded(t, "math1", "pending")))
	assert.Error(t, Apply(ctx, c, queue.Message{Type: events.TypePresenceRecorded, Body: json.RawMessage(`{`)}))

	got, err := c.Get(ctx, "math1")
	require.NoError(t, err)
	assert.Equal(t, Tally{Course: "math1", Accepted: 2, Refused: 1}, got)
}

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := queue.NewInMemory(4)
	c := NewMemoryCounter()

	require.NoError(t, q.Publish(ctx, recorded(t, "math1", "refused")))

	done := make(chan error, 1)
	go func() { done <- Run(ctx, q, c) }()

	assert.Eventually(t, func() bool {
		got, _ := c.Get(ctx, "math1")
		return got.Refused == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewMemoryCounter()
	require.NoError(t, c.Incr(context.Background(), "math1", "accepted"))

	r := gin.New()
	r.GET("/api/courses/:course/tally", Handler(c))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/courses/math1/tally", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got Tally
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, Tally{Course: "math1", Accepted: 1}, got)
}
