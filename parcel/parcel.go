// Package parcel implements the typed, append-only byte buffer used as the
// unit of transaction payload: primitives, length-prefixed strings and byte
// arrays, and binder references written as a pair of URI strings.
//
// Wire layout matches spec §4.4/§6: integers are big-endian, strings are a
// u16 length followed by raw UTF-8 bytes, byte arrays are a u32 length
// followed by raw bytes.
package parcel

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrUnderflow is returned by Get* methods when the read cursor would run
// past the end of the buffer. It is returned as is: the transport plugins do
// not convert it into a core.TransactionFailure.
var ErrUnderflow = errors.New("parcel: read past end of buffer")

// Parcel is an append-only byte buffer plus a read cursor.
type Parcel struct {
	buf []byte
	pos int
}

// New returns an empty Parcel ready for writing.
func New() *Parcel {
	return &Parcel{buf: make([]byte, 0, 64)}
}

// NewFromBytes wraps buf for reading; writes append after the existing
// content.
func NewFromBytes(buf []byte) *Parcel {
	return &Parcel{buf: buf}
}

// Size returns the total number of bytes written into the parcel.
func (p *Parcel) Size() int { return len(p.buf) }

// Bytes returns the full underlying buffer.
func (p *Parcel) Bytes() []byte { return p.buf }

// Reset rewinds the read cursor to the start without discarding content.
func (p *Parcel) Reset() { p.pos = 0 }

func (p *Parcel) need(n int) error {
	if len(p.buf)-p.pos < n {
		return ErrUnderflow
	}
	return nil
}

// --- primitives ---

func (p *Parcel) PutBool(v bool) {
	if v {
		p.buf = append(p.buf, 1)
	} else {
		p.buf = append(p.buf, 0)
	}
}

func (p *Parcel) GetBool() (bool, error) {
	if err := p.need(1); err != nil {
		return false, err
	}
	v := p.buf[p.pos] != 0
	p.pos++
	return v, nil
}

func (p *Parcel) PutByte(v uint8) {
	p.buf = append(p.buf, v)
}

func (p *Parcel) GetByte() (uint8, error) {
	if err := p.need(1); err != nil {
		return 0, err
	}
	v := p.buf[p.pos]
	p.pos++
	return v, nil
}

func (p *Parcel) PutInt16(v int16) { p.PutUint16(uint16(v)) }

func (p *Parcel) GetInt16() (int16, error) {
	v, err := p.GetUint16()
	return int16(v), err
}

func (p *Parcel) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *Parcel) GetUint16() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(p.buf[p.pos:])
	p.pos += 2
	return v, nil
}

func (p *Parcel) PutInt32(v int32) { p.PutUint32(uint32(v)) }

func (p *Parcel) GetInt32() (int32, error) {
	v, err := p.GetUint32()
	return int32(v), err
}

func (p *Parcel) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *Parcel) GetUint32() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v, nil
}

func (p *Parcel) PutInt64(v int64) { p.PutUint64(uint64(v)) }

func (p *Parcel) GetInt64() (int64, error) {
	v, err := p.GetUint64()
	return int64(v), err
}

func (p *Parcel) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *Parcel) GetUint64() (uint64, error) {
	if err := p.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v, nil
}

// PutFloat32 writes v using the intBitsToFloat wire convention (§6): the
// IEEE 754 bit pattern passed through a plain big-endian uint32.
func (p *Parcel) PutFloat32(v float32) {
	p.PutUint32(math.Float32bits(v))
}

func (p *Parcel) GetFloat32() (float32, error) {
	bits, err := p.GetUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// PutFloat64 writes v using the longBitsToDouble wire convention (§6).
func (p *Parcel) PutFloat64(v float64) {
	p.PutUint64(math.Float64bits(v))
}

func (p *Parcel) GetFloat64() (float64, error) {
	bits, err := p.GetUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// --- strings and byte arrays ---

// PutString writes a u16 length followed by the raw UTF-8 bytes of v.
func (p *Parcel) PutString(v string) {
	p.PutUint16(uint16(len(v)))
	p.buf = append(p.buf, v...)
}

func (p *Parcel) GetString() (string, error) {
	n, err := p.GetUint16()
	if err != nil {
		return "", err
	}
	if err := p.need(int(n)); err != nil {
		return "", err
	}
	s := string(p.buf[p.pos : p.pos+int(n)])
	p.pos += int(n)
	return s, nil
}

// PutBytes writes a u32 length followed by the raw contents of v.
func (p *Parcel) PutBytes(v []byte) {
	p.PutUint32(uint32(len(v)))
	p.buf = append(p.buf, v...)
}

func (p *Parcel) GetBytes() ([]byte, error) {
	n, err := p.GetUint32()
	if err != nil {
		return nil, err
	}
	if err := p.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, p.buf[p.pos:p.pos+int(n)])
	p.pos += int(n)
	return v, nil
}

// --- binder references ---

// PutBinderURIs writes a binder reference as two length-prefixed UTF-8
// strings: the base URI (this node's transport endpoint) and the target
// binder's URI. Resolving the reference into an IBinder or a Proxy is the
// Runtime's job, not the Parcel's — see core.ResolveBinderRef.
func (p *Parcel) PutBinderURIs(base, target string) {
	p.PutString(base)
	p.PutString(target)
}

func (p *Parcel) GetBinderURIs() (base, target string, err error) {
	base, err = p.GetString()
	if err != nil {
		return "", "", err
	}
	target, err = p.GetString()
	if err != nil {
		return "", "", err
	}
	return base, target, nil
}
