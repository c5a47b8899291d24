package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/boostly/entitlementd/internal/entitlement"
	"github.com/boostly/entitlementd/internal/ledger"
	"github.com/boostly/entitlementd/internal/mockgateway"
)

func dialTestHub(t *testing.T) (*entitlement.Manager, *websocket.Conn) {
	t.Helper()

	manager := entitlement.NewManager(mockgateway.New(), ledger.NewMemory(), entitlement.Options{SubscriberBuffer: 16})
	t.Cleanup(manager.Close)

	hub := NewHub(manager)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return manager, conn
}

func readStatusMessage(t *testing.T, conn *websocket.Conn) entitlement.SubscriptionStatus {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var msg struct {
		Type string                         `json:"type"`
		Data entitlement.SubscriptionStatus `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if msg.Type != "status" {
		t.Fatalf("unexpected message type %q", msg.Type)
	}
	return msg.Data
}

func TestClientReceivesCurrentStatusOnConnect(t *testing.T) {
	_, conn := dialTestHub(t)

	status := readStatusMessage(t, conn)
	if status.Phase != entitlement.StatusNone {
		t.Fatalf("expected replayed none status, got %s", status.Phase)
	}
}

func TestClientReceivesLiveUpdates(t *testing.T) {
	manager, conn := dialTestHub(t)

	// Drain the replayed initial status first.
	readStatusMessage(t, conn)

	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := manager.Reconcile(context.Background(), []entitlement.TransactionRecord{
		{
			TransactionID: "tx-ws",
			ProductID:     "Influencer_01",
			PurchaseDate:  date,
			Verification:  entitlement.Verified,
		},
	}); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	status := readStatusMessage(t, conn)
	if status.Phase != entitlement.StatusActive || status.Subscription == nil || status.Subscription.ID != entitlement.SubInfluencer {
		t.Fatalf("expected active influencer update, got %+v", status)
	}
}

func TestMultipleClientsAreIndependent(t *testing.T) {
	manager := entitlement.NewManager(mockgateway.New(), ledger.NewMemory(), entitlement.Options{SubscriberBuffer: 16})
	t.Cleanup(manager.Close)

	hub := NewHub(manager)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("failed to dial client %d: %v", i, err)
		}
		t.Cleanup(func() { conn.Close() })
		conns[i] = conn
		readStatusMessage(t, conn)
	}

	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := [][]entitlement.TransactionRecord{
		{{TransactionID: "tx-1", ProductID: "beginner_01", PurchaseDate: date, Verification: entitlement.Verified}},
		{{TransactionID: "tx-2", ProductID: "Pro_01", PurchaseDate: date, Verification: entitlement.Verified}},
	}
	for _, recs := range records {
		if err := manager.Reconcile(context.Background(), recs); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
	}

	want := []entitlement.SubscriptionID{entitlement.SubBeginner, entitlement.SubPro}
	for i, conn := range conns {
		for _, id := range want {
			status := readStatusMessage(t, conn)
			if status.Phase != entitlement.StatusActive || status.Subscription.ID != id {
				t.Fatalf("client %d: expected active %s, got %+v", i, id, status)
			}
		}
	}
}
