package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FeliciaLa/ExpertA-sub000/internal/upstream"
)

func TestSendReturnsAuthoritativeTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["expert_id"] != "exp-1" || body["message"] == "" {
			t.Fatalf("unexpected body %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"answer":         "hello",
			"total_messages": 8,
			"session_id":     "cs-1",
		})
	}))
	defer srv.Close()

	client := NewClient(upstream.New(srv.URL, 5*time.Second))
	reply, err := client.Send(context.Background(), "acc", "exp-1", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.TotalMessages != 8 || reply.Answer != "hello" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestSendWithoutTotalIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": "hello"})
	}))
	defer srv.Close()

	client := NewClient(upstream.New(srv.URL, 5*time.Second))
	if _, err := client.Send(context.Background(), "acc", "exp-1", "hi"); !errors.Is(err, upstream.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
