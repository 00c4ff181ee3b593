package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakePeerConn struct {
	mu        sync.Mutex
	deadlines int
	closed    bool
}

func (c *fakePeerConn) SetWriteDeadline(time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines++
	return nil
}

func (c *fakePeerConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakePeerConn) state() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadlines, c.closed
}

func TestStalledPeerDoesNotBlockRoom(t *testing.T) {
	dispatcher, err := NewDispatcher(DispatcherConfig{
		IdleTick: time.Hour,
		Pick:     func(int) int { return 0 },
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	defer dispatcher.Close()
	ctx := context.Background()

	reader, writer := io.Pipe()
	stalled := newWSPeer("conn-alice", json.NewEncoder(writer), nil)
	dispatcher.peers.register(stalled)
	bob := newWSPeer("conn-bob", json.NewEncoder(io.Discard), nil)
	dispatcher.peers.register(bob)
	defer bob.close()

	if err := dispatcher.dispatch(ctx, "conn-alice", eventJoin, eventPayload{Room: "lobby", Username: "alice"}); err != nil {
		t.Fatalf("alice join: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- dispatcher.dispatch(ctx, "conn-bob", eventJoin, eventPayload{Room: "lobby", Username: "bob"})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("bob join: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join blocked on a peer that never reads")
	}

	flooded := make(chan struct{})
	go func() {
		for i := 0; i < peerOutboxSize*2; i++ {
			dispatcher.peers.broadcast("lobby", newFrame(eventMessage, messagePayload{User: "bob", Text: "hi"}))
		}
		close(flooded)
	}()
	select {
	case <-flooded:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked once the stalled peer's outbox filled")
	}
	if err := stalled.writeFrame(newFrame(eventMessage, messagePayload{})); !errors.Is(err, errPeerOutboxFull) {
		t.Fatalf("write to full outbox = %v, want %v", err, errPeerOutboxFull)
	}

	_ = reader.Close()
	stalled.close()
}

func TestPeerWriteFailureClosesConn(t *testing.T) {
	reader, writer := io.Pipe()
	_ = reader.Close()
	conn := &fakePeerConn{}
	peer := newWSPeer("conn-1", json.NewEncoder(writer), conn)

	if err := peer.writeFrame(newFrame(eventMessage, messagePayload{User: "a", Text: "b"})); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	select {
	case <-peer.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop after a failed write")
	}

	deadlines, closed := conn.state()
	if deadlines != 1 {
		t.Fatalf("write deadlines = %d, want 1", deadlines)
	}
	if !closed {
		t.Fatal("expected connection closed after failed write")
	}
	if err := peer.writeFrame(newFrame(eventMessage, messagePayload{})); !errors.Is(err, errPeerClosed) {
		t.Fatalf("write after failure = %v, want %v", err, errPeerClosed)
	}
}

func TestPeerCloseFlushesQueuedFrames(t *testing.T) {
	var buf bytes.Buffer
	peer := newWSPeer("conn-1", json.NewEncoder(&buf), nil)
	for _, text := range []string{"one", "two", "three"} {
		if err := peer.writeFrame(newFrame(eventMessage, messagePayload{User: "a", Text: text})); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	peer.close()

	decoder := json.NewDecoder(&buf)
	var got []string
	for decoder.More() {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		var payload messagePayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		got = append(got, payload.Text)
	}
	if !equalStrings(got, []string{"one", "two", "three"}) {
		t.Fatalf("flushed = %v, want [one two three]", got)
	}
}
