package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame body. Frames larger than this are
// treated as protocol corruption and tear down the connection.
const MaxFrameSize = 16 << 20

// WriteFrame writes tag, body length and body as one frame. Callers that
// share a connection must serialize WriteFrame calls themselves.
func WriteFrame(w io.Writer, tag int32, body []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(tag))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one tag-prefixed frame.
func ReadFrame(r io.Reader) (tag int32, body []byte, err error) {
	var hdr [8]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	tag = int32(binary.BigEndian.Uint32(hdr[0:4]))
	n := int32(binary.BigEndian.Uint32(hdr[4:8]))
	if n < 0 || n > MaxFrameSize {
		return 0, nil, fmt.Errorf("protocol: bad frame length %d", n)
	}
	body = make([]byte, n)
	if _, err = io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return tag, body, nil
}
