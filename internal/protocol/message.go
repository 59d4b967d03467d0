package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// ErrUnknownOp reports an operation code outside the defined set.
type ErrUnknownOp byte

func (e ErrUnknownOp) Error() string {
	return fmt.Sprintf("protocol: unknown operation 0x%02X", byte(e))
}

// Encode serializes the request body: requestId, opcode, then the
// operation-specific payload.
func (req *Request) Encode(w io.Writer) error {
	if err := WriteInt32(w, req.RequestID); err != nil {
		return err
	}
	if err := writeByte(w, req.Op); err != nil {
		return err
	}

	switch req.Op {
	case OpRegister, OpLogin:
		if err := WriteString(w, req.Username); err != nil {
			return err
		}
		return WriteString(w, req.Password)

	case OpAddEvent:
		if err := WriteString(w, req.Product); err != nil {
			return err
		}
		if err := WriteInt32(w, req.Quantity); err != nil {
			return err
		}
		return WriteFloat64(w, req.Price)

	case OpQuantitySold, OpSalesVolume, OpAveragePrice, OpMaxPrice:
		if err := WriteString(w, req.Product); err != nil {
			return err
		}
		return WriteInt32(w, req.Days)

	case OpFilterEvents:
		if err := writeStringList(w, req.Products); err != nil {
			return err
		}
		return WriteInt32(w, req.DayOffset)

	case OpSimultaneousSales:
		if err := WriteString(w, req.Product1); err != nil {
			return err
		}
		return WriteString(w, req.Product2)

	case OpConsecutiveSales:
		return WriteInt32(w, req.N)

	case OpLogout, OpNewDay:
		return nil

	default:
		return ErrUnknownOp(req.Op)
	}
}

// DecodeRequest parses a request body.
func DecodeRequest(r io.Reader) (*Request, error) {
	id, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	op, err := readByte(r)
	if err != nil {
		return nil, err
	}
	req := &Request{RequestID: id, Op: op}

	switch op {
	case OpRegister, OpLogin:
		if req.Username, err = ReadString(r); err != nil {
			return nil, err
		}
		if req.Password, err = ReadString(r); err != nil {
			return nil, err
		}

	case OpAddEvent:
		if req.Product, err = ReadString(r); err != nil {
			return nil, err
		}
		if req.Quantity, err = ReadInt32(r); err != nil {
			return nil, err
		}
		if req.Price, err = ReadFloat64(r); err != nil {
			return nil, err
		}

	case OpQuantitySold, OpSalesVolume, OpAveragePrice, OpMaxPrice:
		if req.Product, err = ReadString(r); err != nil {
			return nil, err
		}
		if req.Days, err = ReadInt32(r); err != nil {
			return nil, err
		}

	case OpFilterEvents:
		if req.Products, err = readStringList(r); err != nil {
			return nil, err
		}
		if req.DayOffset, err = ReadInt32(r); err != nil {
			return nil, err
		}

	case OpSimultaneousSales:
		if req.Product1, err = ReadString(r); err != nil {
			return nil, err
		}
		if req.Product2, err = ReadString(r); err != nil {
			return nil, err
		}

	case OpConsecutiveSales:
		if req.N, err = ReadInt32(r); err != nil {
			return nil, err
		}

	case OpLogout, OpNewDay:
		// no parameters

	default:
		return nil, ErrUnknownOp(op)
	}
	return req, nil
}

// Encode serializes the response body for the given operation. Non-OK
// statuses carry only the error message.
func (res *Response) Encode(w io.Writer, op byte) error {
	if err := WriteInt32(w, res.RequestID); err != nil {
		return err
	}
	if err := writeByte(w, res.Status); err != nil {
		return err
	}

	if res.Status != StatusOK {
		return WriteString(w, res.ErrorMessage)
	}

	switch op {
	case OpRegister, OpLogin, OpLogout, OpAddEvent, OpNewDay:
		return nil
	case OpQuantitySold:
		return WriteInt32(w, res.Quantity)
	case OpSalesVolume:
		return WriteFloat64(w, res.Revenue)
	case OpAveragePrice:
		return WriteFloat64(w, res.AvgPrice)
	case OpMaxPrice:
		return WriteFloat64(w, res.MaxPrice)
	case OpSimultaneousSales:
		return writeBool(w, res.Result)
	case OpConsecutiveSales:
		return WriteString(w, res.Product)
	case OpFilterEvents:
		return writeEventList(w, res.Events)
	default:
		return ErrUnknownOp(op)
	}
}

// DecodeResponse parses a response body. The caller supplies the operation
// of the originating request; the payload shape depends on it.
func DecodeResponse(r io.Reader, op byte) (*Response, error) {
	id, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	status, err := readByte(r)
	if err != nil {
		return nil, err
	}
	res := &Response{RequestID: id, Status: status}

	if status != StatusOK {
		if res.ErrorMessage, err = ReadString(r); err != nil {
			return nil, err
		}
		return res, nil
	}

	switch op {
	case OpRegister, OpLogin, OpLogout, OpAddEvent, OpNewDay:
		// no payload
	case OpQuantitySold:
		if res.Quantity, err = ReadInt32(r); err != nil {
			return nil, err
		}
	case OpSalesVolume:
		if res.Revenue, err = ReadFloat64(r); err != nil {
			return nil, err
		}
	case OpAveragePrice:
		if res.AvgPrice, err = ReadFloat64(r); err != nil {
			return nil, err
		}
	case OpMaxPrice:
		if res.MaxPrice, err = ReadFloat64(r); err != nil {
			return nil, err
		}
	case OpSimultaneousSales:
		if res.Result, err = readBool(r); err != nil {
			return nil, err
		}
	case OpConsecutiveSales:
		if res.Product, err = ReadString(r); err != nil {
			return nil, err
		}
	case OpFilterEvents:
		if res.Events, err = readEventList(r); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownOp(op)
	}
	return res, nil
}

// EncodeToBytes is a convenience wrapper for the request body.
func (req *Request) EncodeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeToBytes is a convenience wrapper for the response body.
func (res *Response) EncodeToBytes(op byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := res.Encode(&buf, op); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
