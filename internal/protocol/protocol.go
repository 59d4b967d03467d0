// Package protocol defines the framed binary wire protocol shared by the
// saleswatch server and client: operation codes, status codes, the typed
// request/response payloads and their big-endian encoding.
package protocol

import "time"

// Operation codes.
const (
	OpRegister          byte = 0x01
	OpLogin             byte = 0x02
	OpLogout            byte = 0x03
	OpAddEvent          byte = 0x04
	OpQuantitySold      byte = 0x05
	OpSalesVolume       byte = 0x06
	OpAveragePrice      byte = 0x07
	OpMaxPrice          byte = 0x08
	OpFilterEvents      byte = 0x09
	OpSimultaneousSales byte = 0x0A
	OpConsecutiveSales  byte = 0x0B
	OpNewDay            byte = 0x0C
)

// Status codes.
const (
	StatusOK               byte = 0x00
	StatusError            byte = 0x01
	StatusAuthFailed       byte = 0x02
	StatusNotAuthenticated byte = 0x03
	StatusUserExists       byte = 0x04
	StatusInvalidParams    byte = 0x05
)

// Event is a single immutable sale: Quantity units of Product at Price.
// Timestamp is epoch milliseconds, assigned at creation when not supplied.
type Event struct {
	Product   string
	Quantity  int32
	Price     float64
	Timestamp int64
}

// NewEvent stamps the event with the current time.
func NewEvent(product string, quantity int32, price float64) Event {
	return Event{
		Product:   product,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.Now().UnixMilli(),
	}
}

// TotalValue is quantity times unit price.
func (e Event) TotalValue() float64 {
	return float64(e.Quantity) * e.Price
}

// Request is the closed union of all operation payloads. Only the fields
// relevant to Op are encoded on the wire; the rest stay zero. RequestID is
// written as 0 by clients: correlation uses the outer frame tag, and the
// inner id is opaque.
type Request struct {
	RequestID int32
	Op        byte

	Username string
	Password string

	Product  string
	Quantity int32
	Price    float64

	Days int32

	Products  []string
	DayOffset int32

	Product1 string
	Product2 string

	N int32
}

// Response carries a status and, on success, the operation-specific payload.
// On any non-OK status only ErrorMessage follows the status byte.
type Response struct {
	RequestID    int32
	Status       byte
	ErrorMessage string

	Quantity int32
	Revenue  float64
	AvgPrice float64
	MaxPrice float64
	Result   bool
	Product  string
	Events   []Event
}

// OK builds a success response.
func OK(requestID int32) *Response {
	return &Response{RequestID: requestID, Status: StatusOK}
}

// Errorf builds a failure response with the given status and message.
func Errorf(requestID int32, status byte, msg string) *Response {
	return &Response{RequestID: requestID, Status: status, ErrorMessage: msg}
}

// OpName returns the mnemonic for an operation code.
func OpName(op byte) string {
	switch op {
	case OpRegister:
		return "REGISTER"
	case OpLogin:
		return "LOGIN"
	case OpLogout:
		return "LOGOUT"
	case OpAddEvent:
		return "ADD_EVENT"
	case OpQuantitySold:
		return "QUANTITY_SOLD"
	case OpSalesVolume:
		return "SALES_VOLUME"
	case OpAveragePrice:
		return "AVERAGE_PRICE"
	case OpMaxPrice:
		return "MAX_PRICE"
	case OpFilterEvents:
		return "FILTER_EVENTS"
	case OpSimultaneousSales:
		return "SIMULTANEOUS_SALES"
	case OpConsecutiveSales:
		return "CONSECUTIVE_SALES"
	case OpNewDay:
		return "NEW_DAY"
	default:
		return "UNKNOWN"
	}
}

// StatusName returns the mnemonic for a status code.
func StatusName(status byte) string {
	switch status {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusAuthFailed:
		return "AUTH_FAILED"
	case StatusNotAuthenticated:
		return "NOT_AUTHENTICATED"
	case StatusUserExists:
		return "USER_EXISTS"
	case StatusInvalidParams:
		return "INVALID_PARAMS"
	default:
		return "UNKNOWN"
	}
}
