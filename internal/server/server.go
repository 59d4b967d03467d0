// Package server accepts TCP connections speaking the framed sales
// protocol. Each connection gets one reader goroutine; decoded requests run
// on the shared worker pool, so several requests from the same connection
// execute in parallel and responses may return out of order. The frame tag
// is the only correlation mechanism.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"

	"saleswatch/internal/aggregate"
	"saleswatch/internal/auth"
	"saleswatch/internal/metrics"
	"saleswatch/internal/pool"
	"saleswatch/internal/protocol"
	"saleswatch/internal/store"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server: closed")

type Server struct {
	users *auth.Store
	ts    *store.Store
	agg   *aggregate.Service
	pool  *pool.Pool
	mets  *metrics.Metrics

	mu     sync.Mutex
	ln     net.Listener
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New wires a server. mets may be nil.
func New(users *auth.Store, ts *store.Store, agg *aggregate.Service, workers *pool.Pool, mets *metrics.Metrics) *Server {
	return &Server{
		users: users,
		ts:    ts,
		agg:   agg,
		pool:  workers,
		mets:  mets,
		conns: make(map[*conn]struct{}),
	}
}

// Serve accepts connections on ln until Close. It always returns a non-nil
// error; after Close the error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return err
		}

		c := newConn(s, nc)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			nc.Close()
			return ErrServerClosed
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		if s.mets != nil {
			s.mets.ActiveConnections.Inc()
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.readLoop()
		}()
	}
}

// Close stops accepting, closes every open connection and waits for the
// readers to drain. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	_, present := s.conns[c]
	delete(s.conns, c)
	s.mu.Unlock()
	if present && s.mets != nil {
		s.mets.ActiveConnections.Dec()
	}
}

// conn is one client connection: a reader goroutine, a writer mutex so
// response frames never interleave, and the connection-scoped login state
// shared by the handler tasks running for this connection.
type conn struct {
	srv *Server
	nc  net.Conn

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	userMu sync.Mutex
	user   string // authenticated username, "" when logged out

	closeOnce sync.Once
}

func newConn(s *Server, nc net.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{srv: s, nc: nc, ctx: ctx, cancel: cancel}
}

func (c *conn) readLoop() {
	defer c.close()
	for {
		tag, body, err := protocol.ReadFrame(c.nc)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Printf("server: %s: read: %v", c.nc.RemoteAddr(), err)
			}
			return
		}

		req, err := protocol.DecodeRequest(bytes.NewReader(body))
		if err != nil {
			// The frame itself was well-formed, so the connection can
			// survive a bad body.
			log.Printf("server: %s: decode: %v", c.nc.RemoteAddr(), err)
			c.writeResponse(tag, 0, protocol.Errorf(0, protocol.StatusError, "malformed request"))
			continue
		}

		if err := c.srv.pool.Execute(func() {
			res := c.srv.dispatch(c, req)
			c.writeResponse(tag, req.Op, res)
			if c.srv.mets != nil {
				c.srv.mets.RequestsTotal.WithLabelValues(protocol.OpName(req.Op), protocol.StatusName(res.Status)).Inc()
			}
		}); err != nil {
			return
		}
	}
}

// writeResponse frames and sends one response under the writer mutex.
// Write errors mean the connection is going away; the reader will notice.
func (c *conn) writeResponse(tag int32, op byte, res *protocol.Response) {
	body, err := res.EncodeToBytes(op)
	if err != nil {
		log.Printf("server: %s: encode %s: %v", c.nc.RemoteAddr(), protocol.OpName(op), err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WriteFrame(c.nc, tag, body); err != nil {
		log.Printf("server: %s: write: %v", c.nc.RemoteAddr(), err)
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.nc.Close()
		c.srv.removeConn(c)
	})
}

func (c *conn) authenticatedUser() string {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	return c.user
}

func (c *conn) setUser(username string) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	c.user = username
}
