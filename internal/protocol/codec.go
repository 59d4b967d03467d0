package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Wire primitives. Everything is big-endian. Strings are int32 length +
// UTF-8 bytes; string lists are int32 count + strings; booleans one byte.

const (
	// maxStringLen bounds a single decoded string; malformed or hostile
	// frames must not trigger huge allocations.
	maxStringLen = 1 << 20
	// maxListLen bounds decoded list element counts.
	maxListLen = 1 << 20
)

func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func writeInt16(w io.Writer, v int16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt16(r io.Reader) (int16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(buf[:])), nil
}

func WriteInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func WriteFloat64(w io.Writer, v float64) error {
	return WriteInt64(w, int64(math.Float64bits(v)))
}

func ReadFloat64(r io.Reader) (float64, error) {
	v, err := ReadInt64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeBool(w io.Writer, v bool) error {
	if v {
		return writeByte(w, 1)
	}
	return writeByte(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	b, err := readByte(r)
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func WriteString(w io.Writer, s string) error {
	if err := WriteInt32(w, int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func ReadString(r io.Reader) (string, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxStringLen {
		return "", fmt.Errorf("protocol: bad string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStringList(w io.Writer, ss []string) error {
	if err := WriteInt32(w, int32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringList(r io.Reader) ([]string, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxListLen {
		return nil, fmt.Errorf("protocol: bad list length %d", n)
	}
	ss := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := ReadString(r)
		if err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	return ss, nil
}

// writeEventList encodes events with a product dictionary: repeated product
// names are written once and referenced by index, which saves most of the
// bandwidth on realistic workloads. A dictSize of -1 marks a nil list.
func writeEventList(w io.Writer, events []Event) error {
	if events == nil {
		return WriteInt32(w, -1)
	}

	dict := make(map[string]int16)
	var products []string
	for _, ev := range events {
		if _, ok := dict[ev.Product]; !ok {
			dict[ev.Product] = int16(len(products))
			products = append(products, ev.Product)
		}
	}

	if err := WriteInt32(w, int32(len(products))); err != nil {
		return err
	}
	for _, p := range products {
		if err := WriteString(w, p); err != nil {
			return err
		}
	}

	if err := WriteInt32(w, int32(len(events))); err != nil {
		return err
	}
	for _, ev := range events {
		if err := writeInt16(w, dict[ev.Product]); err != nil {
			return err
		}
		if err := WriteInt32(w, ev.Quantity); err != nil {
			return err
		}
		if err := WriteFloat64(w, ev.Price); err != nil {
			return err
		}
		if err := WriteInt64(w, ev.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

func readEventList(r io.Reader) ([]Event, error) {
	dictSize, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if dictSize == -1 {
		return nil, nil
	}
	if dictSize < 0 || dictSize > maxListLen {
		return nil, fmt.Errorf("protocol: bad dictionary size %d", dictSize)
	}

	dict := make([]string, dictSize)
	for i := range dict {
		dict[i], err = ReadString(r)
		if err != nil {
			return nil, err
		}
	}

	count, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxListLen {
		return nil, fmt.Errorf("protocol: bad event count %d", count)
	}

	events := make([]Event, 0, count)
	for i := int32(0); i < count; i++ {
		idx, err := readInt16(r)
		if err != nil {
			return nil, err
		}
		if int(idx) < 0 || int(idx) >= len(dict) {
			return nil, fmt.Errorf("protocol: product index %d out of range", idx)
		}
		qty, err := ReadInt32(r)
		if err != nil {
			return nil, err
		}
		price, err := ReadFloat64(r)
		if err != nil {
			return nil, err
		}
		ts, err := ReadInt64(r)
		if err != nil {
			return nil, err
		}
		events = append(events, Event{Product: dict[idx], Quantity: qty, Price: price, Timestamp: ts})
	}
	return events, nil
}
