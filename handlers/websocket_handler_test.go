package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeWsChecksOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := pyramid.NewHub(discard)
	go hub.Run(ctx)

	h := NewWebSocketHandler(hub, []string{"https://ladder.example"}, discard)
	r := chi.NewRouter()
	r.Get("/ws/pyramids/{pyramidID}", h.ServeWs)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pyramids/3"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://ladder.example"}})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.RoomSize(pyramid.RoomName(3)) == 1 }, time.Second, 10*time.Millisecond)
}

func TestServeWsRejectsBadPyramidID(t *testing.T) {
	h := NewWebSocketHandler(pyramid.NewHub(discard), []string{"*"}, discard)
	r := chi.NewRouter()
	r.Get("/ws/pyramids/{pyramidID}", h.ServeWs)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/pyramids/zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
