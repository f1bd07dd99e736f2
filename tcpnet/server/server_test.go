package server

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/dNet/lib/framing"
	"github.com/ValentinKolb/dNet/tcpnet/common"
	"io"
	"net"
	"testing"
	"time"
)

// startServer starts a server on a random loopback port
func startServer(t *testing.T, handler HandleFunc) *Server {
	t.Helper()

	config := common.DefaultServerConfig()
	config.Endpoint = "127.0.0.1:0"

	srv, err := NewServer(config, handler)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	t.Cleanup(func() {
		srv.Close()
		select {
		case err := <-done:
			if !errors.Is(err, ErrServerClosed) {
				t.Errorf("Serve returned %v, want ErrServerClosed", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Serve did not return after Close")
		}
	})

	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads exactly one frame from conn
func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var header [framing.HeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		t.Fatalf("Failed to read frame header: %v", err)
	}
	payload := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("Failed to read frame payload: %v", err)
	}
	return payload
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEcho(t *testing.T) {
	srv := startServer(t, EchoHandler)
	conn := dial(t, srv)

	packets := [][]byte{[]byte("ping"), {}, bytes.Repeat([]byte{0xAB}, 100_000)}
	for _, p := range packets {
		if _, err := conn.Write(framing.Encode(p)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for i, want := range packets {
		got := readFrame(t, conn)
		if !bytes.Equal(got, want) {
			t.Errorf("Packet %d: got %d bytes, want %d bytes", i, len(got), len(want))
		}
	}
}

func TestFragmentedInput(t *testing.T) {
	srv := startServer(t, EchoHandler)
	conn := dial(t, srv)

	// two frames written one byte at a time
	stream := append(framing.Encode([]byte("abc")), framing.Encode([]byte("de"))...)
	for i := range stream {
		if _, err := conn.Write(stream[i : i+1]); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if got := readFrame(t, conn); string(got) != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
	if got := readFrame(t, conn); string(got) != "de" {
		t.Errorf("Expected de, got %q", got)
	}
}

func TestHandlerResponses(t *testing.T) {
	seen := make(chan uint64, 2)
	handler := func(sessionID uint64, payload []byte) [][]byte {
		seen <- sessionID
		if string(payload) == "silent" {
			return nil
		}
		return [][]byte{[]byte("a"), append([]byte("re:"), payload...)}
	}

	srv := startServer(t, handler)
	conn := dial(t, srv)

	conn.Write(framing.Encode([]byte("silent")))
	conn.Write(framing.Encode([]byte("x")))

	if got := readFrame(t, conn); string(got) != "a" {
		t.Errorf("Expected a, got %q", got)
	}
	if got := readFrame(t, conn); string(got) != "re:x" {
		t.Errorf("Expected re:x, got %q", got)
	}

	first, second := <-seen, <-seen
	if first != second {
		t.Errorf("Expected two calls for the same session, got %d and %d", first, second)
	}
}

func TestMalformedFrameClosesSession(t *testing.T) {
	config := common.DefaultServerConfig()
	config.Endpoint = "127.0.0.1:0"
	config.MaxFrameSize = 16

	srv, err := NewServer(config, EchoHandler)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	go srv.Serve()
	defer srv.Close()

	conn := dial(t, srv)
	conn.Write(framing.Encode(make([]byte, 17)))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	if err == nil {
		t.Fatalf("Expected session to be closed")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatalf("Session was not closed: %v", err)
	}

	waitFor(t, func() bool { return srv.SessionCount() == 0 }, "session removal")
}

func TestSessionCount(t *testing.T) {
	srv := startServer(t, EchoHandler)

	c1 := dial(t, srv)
	c2 := dial(t, srv)
	waitFor(t, func() bool { return srv.SessionCount() == 2 }, "two sessions")

	c1.Close()
	waitFor(t, func() bool { return srv.SessionCount() == 1 }, "one session")

	c2.Close()
	waitFor(t, func() bool { return srv.SessionCount() == 0 }, "no sessions")
}

// TestSequentialSessionsReuseBuffers runs sessions one after another so each one
// takes the read buffer the previous session returned to the pool
func TestSequentialSessionsReuseBuffers(t *testing.T) {
	srv := startServer(t, EchoHandler)

	bufp, ok := srv.bufferPool.Get().(*[]byte)
	if !ok {
		t.Fatalf("Buffer pool must hold *[]byte")
	}
	srv.bufferPool.Put(bufp)

	for i := 0; i < 5; i++ {
		conn := dial(t, srv)

		want := bytes.Repeat([]byte{byte('a' + i)}, 1000*(i+1))
		if _, err := conn.Write(framing.Encode(want)); err != nil {
			t.Fatalf("Session %d: write failed: %v", i, err)
		}
		if got := readFrame(t, conn); !bytes.Equal(got, want) {
			t.Fatalf("Session %d: got %d bytes, want %d bytes", i, len(got), len(want))
		}

		conn.Close()
		waitFor(t, func() bool { return srv.SessionCount() == 0 }, "session to end")
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	config := common.DefaultServerConfig()
	config.Endpoint = "127.0.0.1:0"

	srv, err := NewServer(config, EchoHandler)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	go srv.Serve()

	conn := dial(t, srv)
	waitFor(t, func() bool { return srv.SessionCount() == 1 }, "session")

	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// second close is a no-op
	if err := srv.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("Expected connection to be closed by server")
	}
}

func TestListenFailure(t *testing.T) {
	config := common.DefaultServerConfig()
	config.Endpoint = "not-an-address"

	if _, err := NewServer(config, EchoHandler); err == nil {
		t.Fatalf("Expected listen error")
	}
}
