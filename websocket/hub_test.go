package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func testHub() *Hub {
	logger := logrus.New()
	logger.Level = logrus.PanicLevel

	hub := NewHub(logger)
	go hub.Run()

	return hub
}

func dialTestClient(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ServeWs(hub, w, r); err != nil {
			t.Errorf("ServeWs: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func waitForRoomSize(t *testing.T, hub *Hub, houseId uint64, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(houseId) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("room %d never reached %d subscribers", houseId, want)
}

func subscribe(t *testing.T, conn *websocket.Conn, houseId uint64) {
	t.Helper()

	msg := map[string]interface{}{"action": "subscribe", "houseId": houseId}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	hub := testHub()
	conn := dialTestClient(t, hub)

	subscribe(t, conn, 1)
	waitForRoomSize(t, hub, 1, 1)

	hub.BroadcastToHouse(1, "sensor:update", map[string]interface{}{
		"deviceId": 7,
		"value":    23.5,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Event   string `json:"event"`
		Payload struct {
			DeviceId uint64  `json:"deviceId"`
			Value    float64 `json:"value"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if msg.Event != "sensor:update" {
		t.Errorf("event = %s, want sensor:update", msg.Event)
	}
	if msg.Payload.DeviceId != 7 || msg.Payload.Value != 23.5 {
		t.Errorf("unexpected payload: %+v", msg.Payload)
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	hub := testHub()
	conn := dialTestClient(t, hub)

	subscribe(t, conn, 1)
	waitForRoomSize(t, hub, 1, 1)

	//A broadcast to another house must not reach this client
	hub.BroadcastToHouse(2, "sensor:update", map[string]interface{}{"deviceId": 99})
	hub.BroadcastToHouse(1, "sensor:update", map[string]interface{}{"deviceId": 7})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Payload struct {
			DeviceId uint64 `json:"deviceId"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if msg.Payload.DeviceId != 7 {
		t.Errorf("received broadcast for the wrong house: %+v", msg.Payload)
	}
}

func TestUnsubscribeLeavesRoom(t *testing.T) {
	hub := testHub()
	conn := dialTestClient(t, hub)

	subscribe(t, conn, 1)
	waitForRoomSize(t, hub, 1, 1)

	msg := map[string]interface{}{"action": "unsubscribe", "houseId": 1}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	waitForRoomSize(t, hub, 1, 0)
}

func TestDisconnectCleansRooms(t *testing.T) {
	hub := testHub()
	conn := dialTestClient(t, hub)

	subscribe(t, conn, 1)
	waitForRoomSize(t, hub, 1, 1)

	conn.Close()

	waitForRoomSize(t, hub, 1, 0)
}

func TestMalformedMessageIsIgnored(t *testing.T) {
	hub := testHub()
	conn := dialTestClient(t, hub)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	subscribe(t, conn, 1)
	waitForRoomSize(t, hub, 1, 1)
}
