package server

import (
	"log"

	"saleswatch/internal/aggregate"
	"saleswatch/internal/auth"
	"saleswatch/internal/protocol"
)

// msgInsufficientData is pinned to this exact text; clients match on it.
const msgInsufficientData = "Dados insuficientes"

func (s *Server) dispatch(c *conn, req *protocol.Request) *protocol.Response {
	switch req.Op {
	case protocol.OpRegister:
		return s.handleRegister(req)
	case protocol.OpLogin:
		return s.handleLogin(c, req)
	case protocol.OpLogout:
		return s.handleLogout(c, req)
	}

	// Everything past the auth operations requires a login on this
	// connection.
	if c.authenticatedUser() == "" {
		return protocol.Errorf(req.RequestID, protocol.StatusNotAuthenticated, "login required")
	}

	switch req.Op {
	case protocol.OpAddEvent:
		return s.handleAddEvent(req)
	case protocol.OpQuantitySold, protocol.OpSalesVolume, protocol.OpAveragePrice, protocol.OpMaxPrice:
		return s.handleAggregation(req)
	case protocol.OpFilterEvents:
		return s.handleFilterEvents(req)
	case protocol.OpSimultaneousSales:
		return s.handleSimultaneousSales(c, req)
	case protocol.OpConsecutiveSales:
		return s.handleConsecutiveSales(c, req)
	case protocol.OpNewDay:
		return s.handleNewDay(req)
	default:
		return protocol.Errorf(req.RequestID, protocol.StatusError, "unknown operation")
	}
}

func (s *Server) handleRegister(req *protocol.Request) *protocol.Response {
	switch s.users.Register(req.Username, req.Password) {
	case auth.RegisterCreated:
		return protocol.OK(req.RequestID)
	case auth.RegisterExists:
		return protocol.Errorf(req.RequestID, protocol.StatusUserExists, "user already exists")
	default:
		return protocol.Errorf(req.RequestID, protocol.StatusInvalidParams, "username and password are required")
	}
}

func (s *Server) handleLogin(c *conn, req *protocol.Request) *protocol.Response {
	u, ok := s.users.Authenticate(req.Username, req.Password)
	if !ok {
		return protocol.Errorf(req.RequestID, protocol.StatusAuthFailed, "invalid credentials")
	}
	c.setUser(u.Username)
	return protocol.OK(req.RequestID)
}

func (s *Server) handleLogout(c *conn, req *protocol.Request) *protocol.Response {
	if c.authenticatedUser() == "" {
		return protocol.Errorf(req.RequestID, protocol.StatusNotAuthenticated, "not logged in")
	}
	c.setUser("")
	return protocol.OK(req.RequestID)
}

func (s *Server) handleAddEvent(req *protocol.Request) *protocol.Response {
	if req.Product == "" || req.Quantity <= 0 || req.Price < 0 {
		return protocol.Errorf(req.RequestID, protocol.StatusInvalidParams, "product, positive quantity and non-negative price are required")
	}
	if err := s.ts.AddEvent(req.Product, req.Quantity, req.Price); err != nil {
		return protocol.Errorf(req.RequestID, protocol.StatusError, err.Error())
	}
	if s.mets != nil {
		s.mets.EventsIngested.Inc()
	}
	return protocol.OK(req.RequestID)
}

func (s *Server) handleAggregation(req *protocol.Request) *protocol.Response {
	if req.Product == "" || req.Days < 1 || req.Days > s.ts.MaxDays() {
		return protocol.Errorf(req.RequestID, protocol.StatusInvalidParams, "product and days between 1 and the retention window are required")
	}

	res := protocol.OK(req.RequestID)
	switch req.Op {
	case protocol.OpQuantitySold:
		v := s.agg.QuantitySold(req.Product, req.Days)
		if v == aggregate.Insufficient {
			return protocol.Errorf(req.RequestID, protocol.StatusError, msgInsufficientData)
		}
		res.Quantity = int32(v)
	case protocol.OpSalesVolume:
		v := s.agg.SalesVolume(req.Product, req.Days)
		if v == aggregate.Insufficient {
			return protocol.Errorf(req.RequestID, protocol.StatusError, msgInsufficientData)
		}
		res.Revenue = v
	case protocol.OpAveragePrice:
		v := s.agg.AveragePrice(req.Product, req.Days)
		if v == aggregate.Insufficient {
			return protocol.Errorf(req.RequestID, protocol.StatusError, msgInsufficientData)
		}
		res.AvgPrice = v
	case protocol.OpMaxPrice:
		v := s.agg.MaxPrice(req.Product, req.Days)
		if v == aggregate.Insufficient {
			return protocol.Errorf(req.RequestID, protocol.StatusError, msgInsufficientData)
		}
		res.MaxPrice = v
	}
	return res
}

func (s *Server) handleFilterEvents(req *protocol.Request) *protocol.Response {
	if req.DayOffset < 0 {
		return protocol.Errorf(req.RequestID, protocol.StatusInvalidParams, "day offset must not be negative")
	}
	res := protocol.OK(req.RequestID)
	res.Events = s.ts.FilteredEvents(req.Products, req.DayOffset)
	if res.Events == nil {
		res.Events = []protocol.Event{}
	}
	return res
}

func (s *Server) handleSimultaneousSales(c *conn, req *protocol.Request) *protocol.Response {
	if req.Product1 == "" || req.Product2 == "" {
		return protocol.Errorf(req.RequestID, protocol.StatusInvalidParams, "two products are required")
	}
	ok, err := s.ts.WaitForSimultaneousSales(c.ctx, req.Product1, req.Product2)
	if err != nil {
		// Connection is gone; the response will not be delivered anyway.
		return protocol.Errorf(req.RequestID, protocol.StatusError, "wait canceled")
	}
	res := protocol.OK(req.RequestID)
	res.Result = ok
	return res
}

func (s *Server) handleConsecutiveSales(c *conn, req *protocol.Request) *protocol.Response {
	if req.N < 1 {
		return protocol.Errorf(req.RequestID, protocol.StatusInvalidParams, "n must be at least 1")
	}
	product, err := s.ts.WaitForConsecutiveSales(c.ctx, req.N)
	if err != nil {
		return protocol.Errorf(req.RequestID, protocol.StatusError, "wait canceled")
	}
	res := protocol.OK(req.RequestID)
	res.Product = product // empty when the day ended first
	return res
}

func (s *Server) handleNewDay(req *protocol.Request) *protocol.Response {
	s.ts.NewDay()
	if s.mets != nil {
		s.mets.DaysRotated.Inc()
	}
	log.Printf("server: day rotated, current day is now %d", s.ts.CurrentDayID())
	return protocol.OK(req.RequestID)
}
