package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FeliciaLa/ExpertA-sub000/internal/config"
	"github.com/FeliciaLa/ExpertA-sub000/internal/logging"
)

// fakeMarketplace stands in for all three upstream services on one mux.
type fakeMarketplace struct {
	total int
}

func (f *fakeMarketplace) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tokens": map[string]string{"access": "acc-1", "refresh": "ref-1"},
			"user":   map[string]any{"id": "u-1", "email": "u@x.com", "name": "User", "role": "user"},
		})
	})
	mux.HandleFunc("/api/experts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"monetization_enabled": true,
			"free_turns":           1,
			"paid_turns":           2,
		})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.total += 2
		json.NewEncoder(w).Encode(map[string]any{"answer": "hi", "total_messages": f.total})
	})
	mux.HandleFunc("/api/payment/create-intent", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"client_secret": "cs-1", "amount": 500})
	})
	mux.HandleFunc("/api/payment/confirm", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "amount": 500})
	})
	return mux
}

func setupGateway(t *testing.T) *fiber.App {
	t.Helper()

	upstreamSrv := httptest.NewServer((&fakeMarketplace{}).handler())
	t.Cleanup(upstreamSrv.Close)

	cfg := config.Config{
		AppEnv:          "development",
		IdentityURL:     upstreamSrv.URL,
		ChatURL:         upstreamSrv.URL,
		PaymentURL:      upstreamSrv.URL,
		SessionTTL:      time.Hour,
		UpstreamTimeout: 5 * time.Second,
		IdempotencyTTL:  time.Minute,
		FreeTurns:       3,
		PaidTurns:       20,
	}

	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, sid, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if sid != "" {
		req.Header.Set("X-Session-ID", sid)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()

	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestSetupRequiresRedisOutsideDev(t *testing.T) {
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:    config.Config{AppEnv: "production"},
		Logger: logging.Discard(),
	})
	if err == nil {
		t.Fatalf("expected setup to fail without redis in production")
	}
}

func TestPingReportsRequestID(t *testing.T) {
	app := setupGateway(t)

	status, body := doJSON(t, app, fiber.MethodGet, "/api/v1/ping", "", "")
	if status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
	if reqID, _ := body["request_id"].(string); reqID == "" {
		t.Fatalf("expected a request id, got %v", body)
	}
}

func TestChatRequiresSessionHeader(t *testing.T) {
	app := setupGateway(t)

	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/chat/send", "", `{"expert_id":"e-1","message":"hi"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, status)
	}
}

func TestSignInChatQuotaPaymentFlow(t *testing.T) {
	app := setupGateway(t)

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/session/sign-in", "", `{"email":"u@x.com","password":"pw"}`)
	if status != fiber.StatusOK {
		t.Fatalf("sign in: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	sid, _ := body["session_id"].(string)
	if sid == "" {
		t.Fatalf("missing session id in %v", body)
	}

	// The expert allows one free turn.
	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/chat/send", sid, `{"expert_id":"e-1","message":"hi"}`)
	if status != fiber.StatusOK {
		t.Fatalf("first turn: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	if body["quota_state"] != "blocked" {
		t.Fatalf("expected the free allowance spent, got %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/chat/send", sid, `{"expert_id":"e-1","message":"again"}`)
	if status != fiber.StatusPaymentRequired {
		t.Fatalf("blocked turn: expected %d got %d (%v)", fiber.StatusPaymentRequired, status, body)
	}
	if body["error"] != "quota_exceeded" {
		t.Fatalf("expected quota_exceeded, got %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/payments/intent", sid, `{"expert_id":"e-1"}`)
	if status != fiber.StatusOK {
		t.Fatalf("intent: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/payments/confirm", sid, `{"expert_id":"e-1","payment_intent_id":"pi-1"}`)
	if status != fiber.StatusOK {
		t.Fatalf("confirm: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/chat/send", sid, `{"expert_id":"e-1","message":"paid"}`)
	if status != fiber.StatusOK {
		t.Fatalf("paid turn: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	if body["quota_state"] != "paid_tier" {
		t.Fatalf("expected paid tier, got %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/chat/e-1/quota", sid, "")
	if status != fiber.StatusOK {
		t.Fatalf("quota: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	if body["has_paid_credit"] != true {
		t.Fatalf("expected paid credit recorded, got %v", body)
	}

	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/payments/receipts", sid, "")
	if status != fiber.StatusOK {
		t.Fatalf("receipts: expected %d got %d (%v)", fiber.StatusOK, status, body)
	}
	receipts, _ := body["receipts"].([]any)
	if len(receipts) != 1 {
		t.Fatalf("expected one receipt, got %v", body)
	}

	status, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/session/sign-out", sid, "")
	if status != fiber.StatusOK {
		t.Fatalf("sign out: expected %d got %d", fiber.StatusOK, status)
	}
	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/session/me", sid, "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("me after sign-out: expected %d got %d (%v)", fiber.StatusUnauthorized, status, body)
	}
	if body["error"] != "session_expired" {
		t.Fatalf("expected session_expired, got %v", body)
	}
}
