// Package api is the HTTP admin and query surface: health and status,
// Prometheus metrics, JWT-guarded admin actions, read-only aggregation
// endpoints and a websocket feed of live sales.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"saleswatch/internal/aggregate"
	"saleswatch/internal/auth"
	"saleswatch/internal/metrics"
	"saleswatch/internal/protocol"
	"saleswatch/internal/store"
)

type Server struct {
	users *auth.Store
	ts    *store.Store
	agg   *aggregate.Service
	mets  *metrics.Metrics
	hub   *hub

	authMW *AuthMiddleware

	// saveAll persists users and time-series state; wired from main so the
	// HTTP layer does not own persistence.
	saveAll func() error
}

func NewServer(users *auth.Store, ts *store.Store, agg *aggregate.Service, mets *metrics.Metrics, jwtSecret string, saveAll func() error) *Server {
	return &Server{
		users:   users,
		ts:      ts,
		agg:     agg,
		mets:    mets,
		hub:     newHub(),
		authMW:  NewAuthMiddleware(jwtSecret),
		saveAll: saveAll,
	}
}

// Router builds the route table. Admin routes require a bearer token; the
// whole tree sits behind the per-IP rate limiter.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	if s.mets != nil {
		r.Handle("/metrics", s.mets.Handler()).Methods("GET")
	}
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	r.HandleFunc("/v1/aggregations/quantity", s.handleAggregation).Methods("GET")
	r.HandleFunc("/v1/aggregations/revenue", s.handleAggregation).Methods("GET")
	r.HandleFunc("/v1/aggregations/avgprice", s.handleAggregation).Methods("GET")
	r.HandleFunc("/v1/aggregations/maxprice", s.handleAggregation).Methods("GET")
	r.HandleFunc("/v1/aggregations/common", s.handleCommonDays).Methods("GET")
	r.HandleFunc("/v1/aggregations/maxrun", s.handleMaxRun).Methods("GET")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.authMW.Middleware)
	admin.HandleFunc("/newday", s.handleNewDay).Methods("POST")
	admin.HandleFunc("/save", s.handleSave).Methods("POST")

	return rateLimitMiddleware(r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.ts.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"users":           s.users.Count(),
		"current_day_id":  snap.CurrentDayID,
		"events_today":    snap.EventsToday,
		"historical_days": snap.HistoricalDays,
		"max_days":        snap.MaxDays,
		"memory_days":     snap.MemoryDays,
		"cache_entries":   s.agg.CacheLen(),
	})
}

// aggregationParams parses ?product=&days= shared by the windowed
// aggregation endpoints.
func aggregationParams(r *http.Request) (product string, days int32, ok bool) {
	product = r.URL.Query().Get("product")
	d, err := strconv.Atoi(r.URL.Query().Get("days"))
	if product == "" || err != nil || d < 1 {
		return "", 0, false
	}
	return product, int32(d), true
}

func (s *Server) handleAggregation(w http.ResponseWriter, r *http.Request) {
	product, days, ok := aggregationParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "product and positive days are required")
		return
	}

	var value any
	switch r.URL.Path {
	case "/v1/aggregations/quantity":
		v := s.agg.QuantitySold(product, days)
		if v == aggregate.Insufficient {
			writeError(w, http.StatusUnprocessableEntity, "Dados insuficientes")
			return
		}
		value = v
	case "/v1/aggregations/revenue":
		v := s.agg.SalesVolume(product, days)
		if v == aggregate.Insufficient {
			writeError(w, http.StatusUnprocessableEntity, "Dados insuficientes")
			return
		}
		value = v
	case "/v1/aggregations/avgprice":
		v := s.agg.AveragePrice(product, days)
		if v == aggregate.Insufficient {
			writeError(w, http.StatusUnprocessableEntity, "Dados insuficientes")
			return
		}
		value = v
	case "/v1/aggregations/maxprice":
		v := s.agg.MaxPrice(product, days)
		if v == aggregate.Insufficient {
			writeError(w, http.StatusUnprocessableEntity, "Dados insuficientes")
			return
		}
		value = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "days": days, "value": value})
}

func (s *Server) handleCommonDays(w http.ResponseWriter, r *http.Request) {
	p1 := r.URL.Query().Get("product1")
	p2 := r.URL.Query().Get("product2")
	d, err := strconv.Atoi(r.URL.Query().Get("days"))
	if p1 == "" || p2 == "" || err != nil || d < 1 {
		writeError(w, http.StatusBadRequest, "product1, product2 and positive days are required")
		return
	}
	v := s.agg.CountCommonDays(p1, p2, int32(d))
	if v == aggregate.Insufficient {
		writeError(w, http.StatusUnprocessableEntity, "Dados insuficientes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product1": p1, "product2": p2, "days": d, "value": v})
}

func (s *Server) handleMaxRun(w http.ResponseWriter, r *http.Request) {
	product, days, ok := aggregationParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "product and positive days are required")
		return
	}
	v := s.agg.MaxConsecutive(product, days)
	if v == aggregate.Insufficient {
		writeError(w, http.StatusUnprocessableEntity, "Dados insuficientes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "days": days, "value": v})
}

func (s *Server) handleNewDay(w http.ResponseWriter, r *http.Request) {
	s.ts.NewDay()
	if s.mets != nil {
		s.mets.DaysRotated.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"current_day_id": s.ts.CurrentDayID()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.saveAll == nil {
		writeError(w, http.StatusNotImplemented, "persistence not configured")
		return
	}
	if err := s.saveAll(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// BroadcastSale pushes one sale to the websocket clients.
func (s *Server) BroadcastSale(dayID int32, ev protocol.Event) {
	s.hub.broadcastJSON(wsMessage{Type: "sale.added", DayID: dayID, Sale: &wsSale{
		Product:   ev.Product,
		Quantity:  ev.Quantity,
		Price:     ev.Price,
		Timestamp: ev.Timestamp,
	}})
}

// BroadcastDayRotated pushes a rotation notice to the websocket clients.
func (s *Server) BroadcastDayRotated(newDayID, completedDayID int32, eventCount int) {
	s.hub.broadcastJSON(wsMessage{Type: "day.rotated", DayID: newDayID, CompletedDay: &wsCompletedDay{
		ID:         completedDayID,
		EventCount: eventCount,
	}})
}
