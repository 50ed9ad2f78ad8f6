package parcel_test

import (
	"testing"

	"github.com/loopwire/binder/parcel"
)

// TestRoundTrip follows spec §8 scenario 4: write a fixed sequence of typed
// values and read them back in the same order. Parcel has no char accessor,
// so no char value is written.
func TestRoundTrip(t *testing.T) {
	p := parcel.New()
	p.PutBool(true)
	p.PutByte(42)
	p.PutInt16(17)
	p.PutInt32(12345)
	p.PutInt64(123456789)
	p.PutFloat64(123.456)
	p.PutFloat32(17.42)
	p.PutString("Hello")

	r := parcel.NewFromBytes(p.Bytes())

	if v, err := r.GetBool(); err != nil || v != true {
		t.Fatalf("GetBool() = %v, %v", v, err)
	}
	if v, err := r.GetByte(); err != nil || v != 42 {
		t.Fatalf("GetByte() = %v, %v", v, err)
	}
	if v, err := r.GetInt16(); err != nil || v != 17 {
		t.Fatalf("GetInt16() = %v, %v", v, err)
	}
	if v, err := r.GetInt32(); err != nil || v != 12345 {
		t.Fatalf("GetInt32() = %v, %v", v, err)
	}
	if v, err := r.GetInt64(); err != nil || v != 123456789 {
		t.Fatalf("GetInt64() = %v, %v", v, err)
	}
	if v, err := r.GetFloat64(); err != nil || v != 123.456 {
		t.Fatalf("GetFloat64() = %v, %v", v, err)
	}
	if v, err := r.GetFloat32(); err != nil || v != 17.42 {
		t.Fatalf("GetFloat32() = %v, %v", v, err)
	}
	if v, err := r.GetString(); err != nil || v != "Hello" {
		t.Fatalf("GetString() = %q, %v", v, err)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	p := parcel.New()
	want := []byte{1, 2, 3, 4, 5}
	p.PutBytes(want)

	r := parcel.NewFromBytes(p.Bytes())
	got, err := r.GetBytes()
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBinderURIRoundTrip(t *testing.T) {
	p := parcel.New()
	p.PutBinderURIs("mindroid://1/1", "mindroid://2/a")

	r := parcel.NewFromBytes(p.Bytes())
	base, target, err := r.GetBinderURIs()
	if err != nil {
		t.Fatalf("GetBinderURIs: %v", err)
	}
	if base != "mindroid://1/1" || target != "mindroid://2/a" {
		t.Fatalf("got base=%q target=%q", base, target)
	}
}

func TestUnderflow(t *testing.T) {
	p := parcel.New()
	p.PutByte(1)
	r := parcel.NewFromBytes(p.Bytes())
	if _, err := r.GetByte(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.GetByte(); err != parcel.ErrUnderflow {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
	if _, err := parcel.New().GetInt32(); err != parcel.ErrUnderflow {
		t.Fatalf("expected ErrUnderflow reading int32 from empty parcel")
	}
}

func TestSameWritesProduceIdenticalBytes(t *testing.T) {
	// Writes happen in declaration order; a parcel is just a flat buffer so
	// two independently-built parcels with the same writes produce identical
	// bytes.
	a := parcel.New()
	a.PutInt32(1)
	a.PutString("x")

	b := parcel.New()
	b.PutInt32(1)
	b.PutString("x")

	if string(a.Bytes()) != string(b.Bytes()) {
		t.Fatal("expected identical encodings")
	}
}
