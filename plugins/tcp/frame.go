// Package tcp implements the native "mindroid" scheme's transport plugin:
// a length-prefixed TCP wire protocol carrying transactions between nodes,
// grounded directly on the original Mindroid.cpp runtime's Mindroid.h
// Server/Client pair.
package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	frameTypeTransaction          = 1
	frameTypeExceptionTransaction = 2
)

// MaxFrameSize is the largest accepted frame body, per spec §4.4's
// recommendation. A frame whose declared size exceeds this is rejected and
// the connection is closed.
const MaxFrameSize = 64 * 1024 * 1024

// frame is the in-memory form of one wire message (spec §4.4):
//
//	size:u32  type:u32  uri:utf  transactionId:u32  what:u32  payloadLen:u32  payload
type frame struct {
	Type          uint32
	URI           string
	TransactionID uint32
	What          uint32
	Payload       []byte
}

func (f *frame) body() []byte {
	buf := make([]byte, 0, 4+2+len(f.URI)+4+4+4+len(f.Payload))
	buf = appendUint32(buf, f.Type)
	buf = appendUint16(buf, uint16(len(f.URI)))
	buf = append(buf, f.URI...)
	buf = appendUint32(buf, f.TransactionID)
	buf = appendUint32(buf, f.What)
	buf = appendUint32(buf, uint32(len(f.Payload)))
	buf = append(buf, f.Payload...)
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// writeFrame serializes f and writes it to w as size-prefixed bytes. Writes
// to w must already be serialized by the caller (one writer goroutine per
// connection, per spec §4.4's concurrency note).
func writeFrame(w io.Writer, f *frame) error {
	body := f.body()
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(body)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("tcp: write frame size: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("tcp: write frame body: %w", err)
	}
	return nil
}

// readFrame blocks until a complete frame has been read from r, or returns
// an error (including io.EOF on a clean disconnect). Oversize frames are
// rejected without reading their payload.
func readFrame(r io.Reader) (*frame, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("tcp: frame size %d exceeds limit %d", size, MaxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("tcp: read frame body: %w", err)
	}

	f := &frame{}
	pos := 0
	readU32 := func() (uint32, error) {
		if len(body)-pos < 4 {
			return 0, fmt.Errorf("tcp: truncated frame")
		}
		v := binary.BigEndian.Uint32(body[pos:])
		pos += 4
		return v, nil
	}

	var err error
	if f.Type, err = readU32(); err != nil {
		return nil, err
	}
	if len(body)-pos < 2 {
		return nil, fmt.Errorf("tcp: truncated frame")
	}
	uriLen := int(binary.BigEndian.Uint16(body[pos:]))
	pos += 2
	if len(body)-pos < uriLen {
		return nil, fmt.Errorf("tcp: truncated frame")
	}
	f.URI = string(body[pos : pos+uriLen])
	pos += uriLen

	if f.TransactionID, err = readU32(); err != nil {
		return nil, err
	}
	if f.What, err = readU32(); err != nil {
		return nil, err
	}
	payloadLen, err := readU32()
	if err != nil {
		return nil, err
	}
	if len(body)-pos < int(payloadLen) {
		return nil, fmt.Errorf("tcp: truncated frame")
	}
	f.Payload = body[pos : pos+int(payloadLen)]
	return f, nil
}
