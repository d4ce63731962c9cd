package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestClient_RegistersAndDispatches(t *testing.T) {
	hub := NewHub(allowAll{})
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	received := make(chan json.RawMessage, 1)
	client := NewClient(url, RegisterPayload{UserID: "patient-1"})
	client.On(EventIncomingCall, func(data json.RawMessage) {
		received <- data
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Connect(ctx)
	defer client.Close()

	// Wait until the client's registration lands at the hub, then call it
	// through a plain second connection.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := client.Send(EventRegister, RegisterPayload{UserID: "patient-1"}); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	caller, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer caller.Close()
	send(t, caller, EventRegister, RegisterPayload{UserID: "doctor-1"})
	time.Sleep(50 * time.Millisecond)
	send(t, caller, EventCallUser, CallUserPayload{
		TargetPatientID: "patient-1",
		Offer:           json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})

	select {
	case data := <-received:
		var p IncomingCallPayload
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.TargetPatientID != "patient-1" {
			t.Errorf("target = %q, want patient-1", p.TargetPatientID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestClient_SendBeforeConnectErrors(t *testing.T) {
	client := NewClient("ws://localhost:1/ws", RegisterPayload{UserID: "patient-1"})
	if err := client.Send(EventEndCall, TargetPayload{TargetSocketID: "x"}); err == nil {
		t.Error("Send() error = nil, want not-connected error")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client := NewClient("ws://localhost:1/ws", RegisterPayload{UserID: "patient-1"})
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
