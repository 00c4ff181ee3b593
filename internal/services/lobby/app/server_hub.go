package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/louisbranch/lobby/internal/platform/timeouts"
)

// peerOutboxSize bounds the frames queued for one peer. Frames beyond it are
// dropped rather than stalling the broadcaster.
const peerOutboxSize = 64

var (
	errPeerClosed     = errors.New("peer closed")
	errPeerOutboxFull = errors.New("peer outbox full")
)

// peerConn is the part of the socket a peer's writer controls.
type peerConn interface {
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsPeer owns one connection's outbound frames. writeFrame only enqueues; a
// dedicated writer goroutine encodes frames onto the socket.
type wsPeer struct {
	connectionID string
	encoder      *json.Encoder
	conn         peerConn

	outbox    chan wsFrame
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// newWSPeer starts the peer's writer. conn may be nil, in which case writes
// have no deadline and a failed write only stops the writer.
func newWSPeer(connectionID string, encoder *json.Encoder, conn peerConn) *wsPeer {
	p := &wsPeer{
		connectionID: connectionID,
		encoder:      encoder,
		conn:         conn,
		outbox:       make(chan wsFrame, peerOutboxSize),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	select {
	case <-p.done:
		return errPeerClosed
	default:
	}
	select {
	case p.outbox <- frame:
		return nil
	default:
		return errPeerOutboxFull
	}
}

func (p *wsPeer) writeLoop() {
	defer close(p.stopped)
	for {
		select {
		case frame := <-p.outbox:
			if err := p.encode(frame); err != nil {
				p.fail()
				return
			}
		case <-p.done:
			p.flush()
			return
		}
	}
}

// flush writes whatever is still queued once the peer is closed.
func (p *wsPeer) flush() {
	for {
		select {
		case frame := <-p.outbox:
			if err := p.encode(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *wsPeer) encode(frame wsFrame) error {
	if p.conn != nil {
		if err := p.conn.SetWriteDeadline(time.Now().Add(timeouts.WSWrite)); err != nil {
			return err
		}
	}
	return p.encoder.Encode(frame)
}

// fail closes a peer whose socket stopped accepting writes. Closing the
// connection ends its read loop, which disconnects the member.
func (p *wsPeer) fail() {
	p.closeOnce.Do(func() { close(p.done) })
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// close stops accepting frames and waits for queued ones to be written.
func (p *wsPeer) close() {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
}

// roomHub tracks connected peers and the room broadcasts each one receives.
// Subscriptions are transport state only; membership lives in the registry.
type roomHub struct {
	mu          sync.Mutex
	peers       map[string]*wsPeer
	subscribers map[string]map[string]struct{}
}

func newRoomHub() *roomHub {
	return &roomHub{
		peers:       make(map[string]*wsPeer),
		subscribers: make(map[string]map[string]struct{}),
	}
}

func (h *roomHub) register(peer *wsPeer) {
	h.mu.Lock()
	h.peers[peer.connectionID] = peer
	h.mu.Unlock()
}

// unregister forgets the peer and drops every subscription it held.
func (h *roomHub) unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.peers, connectionID)
	for roomName, members := range h.subscribers {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.subscribers, roomName)
		}
	}
}

func (h *roomHub) subscribe(roomName string, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.subscribers[roomName]
	if !ok {
		members = make(map[string]struct{})
		h.subscribers[roomName] = members
	}
	members[connectionID] = struct{}{}
}

func (h *roomHub) unsubscribe(roomName string, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.subscribers[roomName]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.subscribers, roomName)
	}
}

func (h *roomHub) roomPeers(roomName string) []*wsPeer {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.subscribers[roomName]
	peers := make([]*wsPeer, 0, len(members))
	for connectionID := range members {
		if peer, ok := h.peers[connectionID]; ok {
			peers = append(peers, peer)
		}
	}
	return peers
}

// broadcast queues frame for every subscriber of the room. A peer that is
// closed or too far behind misses the frame.
func (h *roomHub) broadcast(roomName string, frame wsFrame) {
	for _, peer := range h.roomPeers(roomName) {
		_ = peer.writeFrame(frame)
	}
}
