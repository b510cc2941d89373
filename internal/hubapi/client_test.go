package hubapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmeshcher/picking-system/internal/model"
)

func TestCompleteOrder_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sync/complete-order" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}

		var req struct {
			Order *model.Order `json:"order"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Order.ID != "ord-1" {
			t.Fatalf("order id = %s", req.Order.ID)
		}

		json.NewEncoder(w).Encode(model.CompletionResult{
			Success: true, UpdatesApplied: 3, DocumentGenerated: true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	result, err := c.CompleteOrder(context.Background(), &model.Order{ID: "ord-1"})
	if err != nil {
		t.Fatalf("complete order: %v", err)
	}
	if !result.Success || result.UpdatesApplied != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCompleteOrder_ExplicitFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Транспортный 200 с success=false: операция не подтверждена.
		json.NewEncoder(w).Encode(model.CompletionResult{
			Success: false, Error: "inventory update failed",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	result, err := c.CompleteOrder(context.Background(), &model.Order{ID: "ord-1"})
	if err == nil {
		t.Fatalf("explicit failure must produce an error")
	}
	if result == nil || result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCompleteOrder_AlreadyProcessed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.CompletionResult{
			Success: true, AlreadyProcessed: true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	result, err := c.CompleteOrder(context.Background(), &model.Order{ID: "ord-1"})
	if err != nil {
		t.Fatalf("replay confirmation must not error: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatalf("already_processed flag lost: %+v", result)
	}
}

func TestHealth(t *testing.T) {
	up := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"success": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "status": "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}

	up = false
	if err := c.Health(context.Background()); err == nil {
		t.Fatalf("unhealthy hub must produce an error")
	}
}

func TestInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"products": []model.Product{
				{Code: "A001", Quantity: 10, PriceCents: 149},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	products, err := c.Inventory(context.Background())
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(products) != 1 || products[0].Code != "A001" {
		t.Fatalf("unexpected products: %+v", products)
	}
}

func TestUploadLogs_BatchDelivered(t *testing.T) {
	var received int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Logs []model.ActivityLog `json:"logs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		received = len(req.Logs)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "saved": received})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	logs := []model.ActivityLog{
		{ID: "log-1", Type: model.LogItemPicked},
		{ID: "log-2", Type: model.LogOrderCompleted},
	}
	if err := c.UploadLogs(context.Background(), logs); err != nil {
		t.Fatalf("upload logs: %v", err)
	}
	if received != 2 {
		t.Fatalf("received = %d, want 2", received)
	}
}

func TestStartSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "session_id": "sess-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	id, err := c.StartSession(context.Background(), "Mario")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if id != "sess-1" {
		t.Fatalf("session id = %s", id)
	}
}
