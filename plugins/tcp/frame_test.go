package tcp

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	want := &frame{
		Type:          frameTypeTransaction,
		URI:           "mindroid://1/11",
		TransactionID: 42,
		What:          7,
		Payload:       []byte("hello"),
	}

	var buf bytes.Buffer
	if err := writeFrame(&buf, want); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}

	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}

	if got.Type != want.Type || got.URI != want.URI || got.TransactionID != want.TransactionID ||
		got.What != want.What || !bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // declared size far exceeds MaxFrameSize
	if _, err := readFrame(&buf); err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

func TestExceptionFrameRoundTrip(t *testing.T) {
	want := &frame{
		Type:          frameTypeExceptionTransaction,
		URI:           "mindroid://1/11",
		TransactionID: 5,
		What:          1,
		Payload:       binderTransactionFailure,
	}
	var buf bytes.Buffer
	if err := writeFrame(&buf, want); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(got.Payload) != "Binder transaction failure" {
		t.Fatalf("got payload %q", got.Payload)
	}
}
