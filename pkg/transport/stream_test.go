package transport

import (
	"testing"

	"github.com/adblink/adblink/pkg/wire"
)

func TestPipeTransportRoundTrip(t *testing.T) {
	a, b := NewPipeTransportPair(Options{})
	defer a.Close()
	defer b.Close()

	sent := wire.Packet{Command: wire.CommandOPEN, Arg0: 7, Arg1: 0, Payload: []byte("shell:")}

	done := make(chan error, 1)
	go func() {
		done <- a.WritePacket(sent)
	}()

	received, err := b.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if writeErr := <-done; writeErr != nil {
		t.Fatalf("WritePacket failed: %v", writeErr)
	}

	if received.Command != sent.Command || received.Arg0 != sent.Arg0 {
		t.Fatalf("packet mismatch: got %+v, expected %+v", received, sent)
	}
	if string(received.Payload) != string(sent.Payload) {
		t.Fatalf("payload mismatch: got %q, expected %q", received.Payload, sent.Payload)
	}
}

func TestStreamTransportCloseUnblocksRead(t *testing.T) {
	a, b := NewPipeTransportPair(Options{})
	defer b.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := a.ReadPacket()
		errCh <- err
	}()

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := <-errCh; err == nil {
		t.Fatal("expected ReadPacket to fail after Close")
	}
}
