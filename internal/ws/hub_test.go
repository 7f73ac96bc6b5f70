package ws

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transferEvent struct {
	Amount string `json:"amount"`
}

func (transferEvent) EventName() string { return "Transfer" }

type docEvent struct{}

func (docEvent) EventName() string { return "DocumentUpdated" }

func TestTopicMatching(t *testing.T) {
	s := newSubscriber([]string{"main:*", "side:Transfer"})
	assert.True(t, s.isSubscribed("main:Issue"))
	assert.True(t, s.isSubscribed("side:Transfer"))
	assert.False(t, s.isSubscribed("side:Issue"))

	s.unsubscribe([]string{"main:*"})
	assert.False(t, s.isSubscribed("main:Issue"))

	all := newSubscriber([]string{"*"})
	assert.True(t, all.isSubscribed("anything:Else"))
}

func TestWebSocketFeed(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topics=main:Transfer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Sink("side").Publish(transferEvent{Amount: "1"})
	hub.Sink("main").Publish(docEvent{}, transferEvent{Amount: "2"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "main:Transfer", msg.Topic)
	assert.JSONEq(t, `{"amount":"2"}`, string(msg.Data))
}

func TestRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"http://allowed.example"}, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSSEFeed(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topics=side:*", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	hub.Sink("side").Publish(transferEvent{Amount: "3"})

	reader := bufio.NewReader(resp.Body)
	var dataLines []string
	for len(dataLines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data: ")))
		}
	}

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(dataLines[1]), &msg))
	assert.Equal(t, "side:Transfer", msg.Topic)
}

func TestRunDisconnectsOnShutdown(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	c := newSubscriber([]string{"*"})
	hub.add(context.Background(), c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, hub.Clients())
	_, open := <-c.send
	assert.False(t, open)
}
