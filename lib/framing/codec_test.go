package framing

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

// testPayloads returns payloads of different shapes used across the tests
func testPayloads() map[string][]byte {
	large := make([]byte, 1<<20)
	rand.New(rand.NewSource(42)).Read(large)

	return map[string][]byte{
		"empty":  {},
		"single": {0x7f},
		"text":   []byte("hello world"),
		"header": {0x00, 0x00, 0x00, 0x04},
		"1MiB":   large,
	}
}

// feedAll feeds all chunks into a fresh buffer and collects the decoded payloads
func feedAll(t *testing.T, chunks ...[]byte) ([][]byte, *Buffer) {
	t.Helper()
	buf := NewBuffer(0)
	var out [][]byte
	for _, chunk := range chunks {
		frames, err := buf.Feed(chunk)
		if err != nil {
			t.Fatalf("unexpected feed error: %v", err)
		}
		out = append(out, frames...)
	}
	return out, buf
}

func assertPayloads(t *testing.T, got, want [][]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d payloads, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("payload %d differs: expected %d bytes, got %d bytes", i, len(want[i]), len(got[i]))
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	frame := Encode([]byte("abc"))
	want := []byte{0x00, 0x00, 0x00, 0x03, 'a', 'b', 'c'}
	if !bytes.Equal(frame, want) {
		t.Fatalf("expected %v, got %v", want, frame)
	}

	if got := Encode(nil); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Fatalf("expected empty frame header, got %v", got)
	}

	// AppendFrame must keep whatever dst already holds
	dst := AppendFrame([]byte("x"), []byte("yz"))
	if !bytes.Equal(dst, []byte{'x', 0, 0, 0, 2, 'y', 'z'}) {
		t.Fatalf("unexpected AppendFrame result %v", dst)
	}
}

// TestRoundTrip verifies Feed(Encode(P)) == [P]
func TestRoundTrip(t *testing.T) {
	for name, payload := range testPayloads() {
		t.Run(name, func(t *testing.T) {
			got, buf := feedAll(t, Encode(payload))
			assertPayloads(t, got, [][]byte{payload})
			if buf.Len() != 0 {
				t.Errorf("expected empty buffer, %d bytes left", buf.Len())
			}
		})
	}
}

// TestIncrementalFeed verifies that any split of a frame decodes like the whole frame
func TestIncrementalFeed(t *testing.T) {
	payload := []byte("incremental feed payload")
	frame := Encode(payload)

	// every single split point
	for i := 0; i <= len(frame); i++ {
		got, _ := feedAll(t, frame[:i], frame[i:])
		assertPayloads(t, got, [][]byte{payload})
	}

	// byte by byte
	chunks := make([][]byte, len(frame))
	for i := range frame {
		chunks[i] = frame[i : i+1]
	}
	got, _ := feedAll(t, chunks...)
	assertPayloads(t, got, [][]byte{payload})

	// random chunking of several frames
	rng := rand.New(rand.NewSource(7))
	for name, p := range testPayloads() {
		t.Run(name, func(t *testing.T) {
			stream := append(Encode(p), Encode([]byte(name))...)
			var parts [][]byte
			for rest := stream; len(rest) > 0; {
				n := 1 + rng.Intn(4096)
				if n > len(rest) {
					n = len(rest)
				}
				parts = append(parts, rest[:n])
				rest = rest[n:]
			}
			got, _ := feedAll(t, parts...)
			assertPayloads(t, got, [][]byte{p, []byte(name)})
		})
	}
}

func TestMultiFrameOrdering(t *testing.T) {
	p1, p2, p3 := []byte("first"), []byte("second"), []byte("third")

	var stream []byte
	stream = AppendFrame(stream, p1)
	stream = AppendFrame(stream, p2)
	stream = AppendFrame(stream, p3)

	got, _ := feedAll(t, stream)
	assertPayloads(t, got, [][]byte{p1, p2, p3})
}

func TestPartialTrailingFrame(t *testing.T) {
	p1, p2 := []byte("complete"), []byte("split across two reads")
	second := Encode(p2)
	half := len(second) / 2

	buf := NewBuffer(0)
	frames, err := buf.Feed(append(Encode(p1), second[:half]...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPayloads(t, frames, [][]byte{p1})

	if !bytes.Equal(buf.Buffered(), second[:half]) {
		t.Fatalf("expected buffer to hold the partial frame %v, got %v", second[:half], buf.Buffered())
	}

	frames, err = buf.Feed(second[half:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertPayloads(t, frames, [][]byte{p2})
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", buf.Len())
	}
}

func TestPayloadsAreCopies(t *testing.T) {
	buf := NewBuffer(0)
	frames, _ := buf.Feed(Encode([]byte("keep")))

	// further feeds reuse the internal storage
	for i := 0; i < 10; i++ {
		_, _ = buf.Feed(Encode([]byte(fmt.Sprintf("overwrite-%d", i))))
	}

	if string(frames[0]) != "keep" {
		t.Fatalf("decoded payload was modified: %q", frames[0])
	}
}

func TestMaxFrameSize(t *testing.T) {
	buf := NewBuffer(8)

	// a frame at the limit is fine
	frames, err := buf.Feed(Encode(make([]byte, 8)))
	if err != nil || len(frames) != 1 {
		t.Fatalf("expected one frame at the limit, got %d (err %v)", len(frames), err)
	}

	// a valid frame followed by an oversized prefix returns the valid frame and the error
	stream := append(Encode([]byte("ok")), 0xff, 0xff, 0xff, 0xff)
	frames, err = buf.Feed(stream)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
	assertPayloads(t, frames, [][]byte{[]byte("ok")})
}

func TestReset(t *testing.T) {
	buf := NewBuffer(0)
	_, _ = buf.Feed([]byte{0, 0, 0, 9, 'p'})
	if buf.Len() != 5 {
		t.Fatalf("expected 5 buffered bytes, got %d", buf.Len())
	}

	buf.Reset()
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after reset, got %d", buf.Len())
	}

	got, _ := buf.Feed(Encode([]byte("fresh")))
	assertPayloads(t, got, [][]byte{[]byte("fresh")})
}

func BenchmarkFeed(b *testing.B) {
	frame := Encode(make([]byte, 1024))
	buf := NewBuffer(0)
	b.SetBytes(int64(len(frame)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := buf.Feed(frame); err != nil {
			b.Fatal(err)
		}
	}
}
