package prediction_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foresight/event-engine/internal/clock"
	"github.com/foresight/event-engine/internal/event"
	"github.com/foresight/event-engine/internal/metrics"
	"github.com/foresight/event-engine/internal/model"
	"github.com/foresight/event-engine/internal/prediction"
	"github.com/foresight/event-engine/internal/settlement"
	"github.com/foresight/event-engine/internal/store"
)

func dialHub(t *testing.T, hub *prediction.WSHub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.WebSocketClients) == 1
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) prediction.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg prediction.WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWSHub_PushesOddsAndSettlement(t *testing.T) {
	hub := prediction.NewWSHub()
	go hub.Run()
	t.Cleanup(func() {
		hub.Stop()
		assert.Eventually(t, func() bool {
			return testutil.ToFloat64(metrics.WebSocketClients) == 0
		}, 2*time.Second, 10*time.Millisecond)
	})
	conn := dialHub(t, hub)

	clk := clock.NewManual(base)
	svc := prediction.NewService(store.NewMemoryStore(), clk, event.DefaultBounds(), hub)
	ctx := context.Background()

	ev, err := svc.CreateEvent(ctx, "alice", event.Spec{
		Title:     "Rain on the company picnic",
		StartTime: base.Add(time.Hour),
		EndTime:   base.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.SubmitPrediction(ctx, "bob", ev.ID, 1, d(40))
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, prediction.MsgOddsUpdated, msg.Type)
	assert.Equal(t, ev.ID, msg.EventID)
	require.NotNil(t, msg.Stats)
	assert.True(t, msg.Stats.TotalPool.Equal(d(40)))
	assert.True(t, msg.Stats.Outcomes[1].Percentage.Equal(d(100)))

	clk.Set(ev.EndTime)
	_, err = svc.SettleEvent(ctx, ev.ID, settlement.Winner(0), "alice")
	require.NoError(t, err)

	msg = readMessage(t, conn)
	assert.Equal(t, prediction.MsgEventSettled, msg.Type)
	require.NotNil(t, msg.WinningOutcome)
	assert.Equal(t, model.Cancelled, *msg.WinningOutcome, "nobody backed outcome 0")
	assert.True(t, msg.Refunded)
}

func TestWSHub_StopClosesClients(t *testing.T) {
	hub := prediction.NewWSHub()
	go hub.Run()
	conn := dialHub(t, hub)

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.WebSocketClients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
