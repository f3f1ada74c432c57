package wsproto

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestNetTransportConnectNilConn(t *testing.T) {
	tr := NewNetTransport(nil)
	if err := tr.Connect(context.Background(), ""); err == nil {
		t.Fatal("Connect() error = nil, want error for nil conn")
	}
}

func TestNetTransportWriteRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr := NewNetTransport(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		n, err := server.Read(buf)
		if err != nil {
			t.Errorf("server.Read() error = %v", err)
			return
		}
		if string(buf[:n]) != "hello" {
			t.Errorf("server.Read() = %q, want %q", buf[:n], "hello")
		}
	}()

	if err := tr.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	<-done
}

func TestNetTransportWaitReadableAndPending(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr := NewNetTransport(client)

	go func() {
		_, _ = server.Write([]byte("x"))
	}()

	if err := tr.WaitReadable(context.Background(), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("WaitReadable() error = %v", err)
	}
	if !tr.Pending() {
		t.Fatal("Pending() = false after WaitReadable observed data")
	}

	buf := make([]byte, 1)
	n, err := tr.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 1 || buf[0] != 'x' {
		t.Fatalf("Read() = %q, want %q", buf[:n], "x")
	}
	if tr.Pending() {
		t.Fatal("Pending() = true after pushback drained")
	}
}

func TestNetTransportWaitReadableTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tr := NewNetTransport(client)
	err := tr.WaitReadable(context.Background(), time.Now().Add(10*time.Millisecond))
	if err != nil {
		t.Fatalf("WaitReadable() error = %v, want nil on timeout", err)
	}
	if tr.Pending() {
		t.Fatal("Pending() = true, want false when nothing was written")
	}
}

func TestNetTransportShutdownIdempotent(t *testing.T) {
	client, _ := net.Pipe()
	tr := NewNetTransport(client)
	if err := tr.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := tr.Shutdown(); err != nil {
		t.Fatalf("second Shutdown() error = %v, want nil", err)
	}
}
