package hub

import (
	"testing"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-c.Frames():
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestToGameReachesAllWatchers(t *testing.T) {
	h := New()
	a := NewClient("p1", "g1")
	b := NewClient("p2", "g1")
	other := NewClient("p3", "g2")
	for _, c := range []*Client{a, b, other} {
		h.Register(c)
	}

	h.ToGame("g1", []byte("hello"))

	if got := drain(a); len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("a got %q", got)
	}
	if got := drain(b); len(got) != 1 {
		t.Fatalf("b got %d frames", len(got))
	}
	if got := drain(other); len(got) != 0 {
		t.Fatalf("other game received %d frames", len(got))
	}
}

func TestToPlayerTargetsOnePlayer(t *testing.T) {
	h := New()
	a := NewClient("p1", "g1")
	b := NewClient("p2", "g1")
	h.Register(a)
	h.Register(b)

	h.ToPlayer("p1", []byte("secret"))

	if got := drain(a); len(got) != 1 {
		t.Fatalf("p1 got %d frames", len(got))
	}
	if got := drain(b); len(got) != 0 {
		t.Fatalf("p2 should not receive p1 frames, got %d", len(got))
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	h := New()
	a := NewClient("p1", "g1")
	h.Register(a)
	if n := h.GameClients("g1"); n != 1 {
		t.Fatalf("GameClients = %d", n)
	}
	h.Unregister(a)
	if n := h.GameClients("g1"); n != 0 {
		t.Fatalf("GameClients after unregister = %d", n)
	}
	h.ToGame("g1", []byte("x"))
	if _, ok := <-a.Frames(); ok {
		t.Fatal("send channel should be closed and empty")
	}
}

func TestFullBufferDropsFrame(t *testing.T) {
	h := New()
	a := NewClient("p1", "g1")
	h.Register(a)
	for i := 0; i < sendBuffer+10; i++ {
		h.ToGame("g1", []byte{byte(i)})
	}
	if got := drain(a); len(got) != sendBuffer {
		t.Fatalf("want %d buffered frames, got %d", sendBuffer, len(got))
	}
}
