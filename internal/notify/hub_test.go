package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestHub_DeliversToRecipientOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	alice, _, err := dialHub(t, srv, "?user_id=1")
	require.NoError(t, err)
	defer alice.Close()

	bob, _, err := dialHub(t, srv, "?user_id=2")
	require.NoError(t, err)
	defer bob.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount(1) == 1 && hub.ClientCount(2) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Send(context.Background(), notification(1)))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got model.Notification
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, int64(1), got.RecipientID)
	assert.Equal(t, model.NotifySessionCreated, got.Kind)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err)
}

func TestHub_SendWithoutClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.NoError(t, hub.Send(context.Background(), notification(42)))
}

func TestHub_RejectsInvalidUserID(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	for _, query := range []string{"", "?user_id=abc", "?user_id=0", "?user_id=-5"} {
		_, resp, err := dialHub(t, srv, query)
		require.Error(t, err, query)
		require.NotNil(t, resp, query)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := dialHub(t, srv, "?user_id=3")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount(3) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount(3) == 0 }, 2*time.Second, 10*time.Millisecond)
}
