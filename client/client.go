// Package client is the typed API over the framed sales protocol. One
// Client multiplexes any number of concurrent callers onto a single TCP
// connection: each call gets a fresh frame tag and waits on its own entry,
// so a blocking call (SimultaneousSales, ConsecutiveSales) never holds up
// the others.
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"saleswatch/internal/protocol"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client: connection closed")

// StatusError is a non-OK response from the server.
type StatusError struct {
	Status  byte
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: %s: %s", protocol.StatusName(e.Status), e.Message)
}

type result struct {
	body []byte
	err  error
}

// Client is safe for concurrent use.
type Client struct {
	nc net.Conn

	sendMu sync.Mutex // serializes frame writes

	mu      sync.Mutex // guards everything below
	nextTag int32
	pending map[int32]chan result
	err     error // sticky; set once the connection fails
}

// Dial connects to a server.
func Dial(addr string) (*Client, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(nc), nil
}

// NewClient wraps an established connection and starts the reader.
func NewClient(nc net.Conn) *Client {
	c := &Client{nc: nc, pending: make(map[int32]chan result)}
	go c.readLoop()
	return c
}

// Close tears down the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	err := c.nc.Close()
	c.fail(ErrClosed)
	return err
}

// readLoop dispatches response frames to their tag's entry. A read error is
// terminal: every pending call is unblocked with it.
func (c *Client) readLoop() {
	for {
		tag, body, err := protocol.ReadFrame(c.nc)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				c.fail(ErrClosed)
			} else {
				c.fail(err)
			}
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[tag]
		delete(c.pending, tag)
		c.mu.Unlock()
		if !ok {
			log.Printf("client: dropping response with unknown tag %d", tag)
			continue
		}
		ch <- result{body: body}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	for tag, ch := range c.pending {
		ch <- result{err: err}
		delete(c.pending, tag)
	}
}

// call sends one request and blocks until its response frame arrives.
func (c *Client) call(req *protocol.Request) (*protocol.Response, error) {
	body, err := req.EncodeToBytes()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	tag := c.nextTag
	c.nextTag++
	ch := make(chan result, 1)
	c.pending[tag] = ch
	c.mu.Unlock()

	c.sendMu.Lock()
	err = protocol.WriteFrame(c.nc, tag, body)
	c.sendMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, tag)
		c.mu.Unlock()
		c.fail(err)
		return nil, err
	}

	r := <-ch
	if r.err != nil {
		return nil, r.err
	}
	res, err := protocol.DecodeResponse(bytes.NewReader(r.body), req.Op)
	if err != nil {
		return nil, err
	}
	if res.Status != protocol.StatusOK {
		return nil, &StatusError{Status: res.Status, Message: res.ErrorMessage}
	}
	return res, nil
}

// Register creates a user account.
func (c *Client) Register(username, password string) error {
	_, err := c.call(&protocol.Request{Op: protocol.OpRegister, Username: username, Password: password})
	return err
}

// Login authenticates this connection.
func (c *Client) Login(username, password string) error {
	_, err := c.call(&protocol.Request{Op: protocol.OpLogin, Username: username, Password: password})
	return err
}

// Logout clears this connection's login.
func (c *Client) Logout() error {
	_, err := c.call(&protocol.Request{Op: protocol.OpLogout})
	return err
}

// AddEvent records a sale on the current day.
func (c *Client) AddEvent(product string, quantity int32, price float64) error {
	_, err := c.call(&protocol.Request{Op: protocol.OpAddEvent, Product: product, Quantity: quantity, Price: price})
	return err
}

// QuantitySold returns the total quantity of product over the last days
// completed days.
func (c *Client) QuantitySold(product string, days int32) (int32, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpQuantitySold, Product: product, Days: days})
	if err != nil {
		return 0, err
	}
	return res.Quantity, nil
}

// SalesVolume returns the total revenue of product over the window.
func (c *Client) SalesVolume(product string, days int32) (float64, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpSalesVolume, Product: product, Days: days})
	if err != nil {
		return 0, err
	}
	return res.Revenue, nil
}

// AveragePrice returns the quantity-weighted average price of product over
// the window.
func (c *Client) AveragePrice(product string, days int32) (float64, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpAveragePrice, Product: product, Days: days})
	if err != nil {
		return 0, err
	}
	return res.AvgPrice, nil
}

// MaxPrice returns the highest unit price of product over the window.
func (c *Client) MaxPrice(product string, days int32) (float64, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpMaxPrice, Product: product, Days: days})
	if err != nil {
		return 0, err
	}
	return res.MaxPrice, nil
}

// FilterEvents returns one day's events, optionally restricted to the
// given products. dayOffset 0 is the current day, k the k-th most recently
// completed one. An empty product list means all products.
func (c *Client) FilterEvents(products []string, dayOffset int32) ([]protocol.Event, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpFilterEvents, Products: products, DayOffset: dayOffset})
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}

// SimultaneousSales blocks until the current day has seen at least one sale
// of each product, or returns false if the day ends first.
func (c *Client) SimultaneousSales(product1, product2 string) (bool, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpSimultaneousSales, Product1: product1, Product2: product2})
	if err != nil {
		return false, err
	}
	return res.Result, nil
}

// ConsecutiveSales blocks until the last n sales of the current day share a
// product and returns it, or returns "" if the day ends first.
func (c *Client) ConsecutiveSales(n int32) (string, error) {
	res, err := c.call(&protocol.Request{Op: protocol.OpConsecutiveSales, N: n})
	if err != nil {
		return "", err
	}
	return res.Product, nil
}

// NewDay closes the current day and opens the next one.
func (c *Client) NewDay() error {
	_, err := c.call(&protocol.Request{Op: protocol.OpNewDay})
	return err
}
