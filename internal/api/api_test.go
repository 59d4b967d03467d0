package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"saleswatch/internal/aggregate"
	"saleswatch/internal/auth"
	"saleswatch/internal/metrics"
	"saleswatch/internal/persist"
	"saleswatch/internal/store"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	users := auth.NewStore()
	ts, err := store.New(5, 3, persist.NewStore(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	agg, err := aggregate.New(ts, 16)
	if err != nil {
		t.Fatalf("aggregate.New: %v", err)
	}
	saved := func() error { return nil }
	return NewServer(users, ts, agg, metrics.New(), testSecret, saved), ts
}

func doRequest(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "ops"}).
		SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestHealthAndStatus(t *testing.T) {
	srv, ts := newTestServer(t)
	router := srv.Router()

	rec := doRequest(t, router, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}

	ts.AddEvent("apple", 1, 1.0)
	rec = doRequest(t, router, "GET", "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["events_today"].(float64) != 1 {
		t.Fatalf("events_today = %v, want 1", status["events_today"])
	}
}

func TestAggregationEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	router := srv.Router()

	ts.AddEvent("apple", 2, 1.00)
	ts.AddEvent("apple", 3, 2.00)
	ts.NewDay()

	rec := doRequest(t, router, "GET", "/v1/aggregations/quantity?product=apple&days=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quantity = %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["value"].(float64) != 5 {
		t.Fatalf("quantity value = %v, want 5", out["value"])
	}

	rec = doRequest(t, router, "GET", "/v1/aggregations/revenue?product=apple&days=1", "")
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["value"].(float64) != 8.00 {
		t.Fatalf("revenue value = %v, want 8.00", out["value"])
	}

	// One completed day only.
	rec = doRequest(t, router, "GET", "/v1/aggregations/quantity?product=apple&days=3", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("insufficient window = %d, want 422", rec.Code)
	}

	rec = doRequest(t, router, "GET", "/v1/aggregations/quantity?product=apple", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing days = %d, want 400", rec.Code)
	}
}

func TestExtendedAggregationEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	router := srv.Router()

	ts.AddEvent("apple", 1, 1.0)
	ts.AddEvent("apple", 1, 1.0)
	ts.AddEvent("pear", 1, 1.0)
	ts.NewDay()

	rec := doRequest(t, router, "GET", "/v1/aggregations/common?product1=apple&product2=pear&days=1", "")
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusOK || out["value"].(float64) != 1 {
		t.Fatalf("common = %d %v, want 200 with value 1", rec.Code, out["value"])
	}

	rec = doRequest(t, router, "GET", "/v1/aggregations/maxrun?product=apple&days=1", "")
	json.Unmarshal(rec.Body.Bytes(), &out)
	if rec.Code != http.StatusOK || out["value"].(float64) != 2 {
		t.Fatalf("maxrun = %d %v, want 200 with value 2", rec.Code, out["value"])
	}
}

func TestAdminAuth(t *testing.T) {
	srv, ts := newTestServer(t)
	router := srv.Router()

	if rec := doRequest(t, router, "POST", "/admin/newday", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("newday without token = %d, want 401", rec.Code)
	}

	badToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{"sub": "ops"}).
		SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if rec := doRequest(t, router, "POST", "/admin/newday", badToken); rec.Code != http.StatusUnauthorized {
		t.Fatalf("newday with bad token = %d, want 401", rec.Code)
	}

	rec := doRequest(t, router, "POST", "/admin/newday", adminToken(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("newday with token = %d: %s", rec.Code, rec.Body.String())
	}
	if ts.CurrentDayID() != 1 {
		t.Fatalf("CurrentDayID = %d after admin newday, want 1", ts.CurrentDayID())
	}

	if rec := doRequest(t, router, "POST", "/admin/save", adminToken(t)); rec.Code != http.StatusOK {
		t.Fatalf("save with token = %d: %s", rec.Code, rec.Body.String())
	}
}
