package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// peerServer upgrades one connection and hands the server-side peer to the test.
func peerServer(t *testing.T, opts PeerOptions, run bool) (*httptest.Server, chan *WSPeer) {
	t.Helper()
	peers := make(chan *WSPeer, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		peer := NewWSPeer(conn, opts)
		peers <- peer
		if run {
			peer.Run()
		}
	}))
	return srv, peers
}

func dialPeer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitPeer(t *testing.T, peers chan *WSPeer) *WSPeer {
	t.Helper()
	select {
	case p := <-peers:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the peer")
		return nil
	}
}

func TestWSPeerDeliversFrames(t *testing.T) {
	srv, peers := peerServer(t, PeerOptions{Buffer: 4}, true)
	defer srv.Close()

	client := dialPeer(t, srv)
	defer client.Close()
	peer := waitPeer(t, peers)

	hub := newTestHub()
	hub.Register(peer)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"type":"status","status":"connected"}` {
		t.Fatalf("unexpected first frame %s", data)
	}
}

func TestWSPeerSlowConsumerDropsFrames(t *testing.T) {
	srv, peers := peerServer(t, PeerOptions{Buffer: 1}, false)
	defer srv.Close()

	client := dialPeer(t, srv)
	defer client.Close()
	peer := waitPeer(t, peers)

	if err := peer.Send([]byte("one")); err != nil {
		t.Fatalf("first send should be buffered: %v", err)
	}
	if err := peer.Send([]byte("two")); !errors.Is(err, ErrPeerSlow) {
		t.Fatalf("expected ErrPeerSlow, got %v", err)
	}

	peer.Close()
	peer.Close()
	if err := peer.Send([]byte("three")); !errors.Is(err, ErrPeerClosed) {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
}

func TestWSPeerStopsWhenClientLeaves(t *testing.T) {
	srv, peers := peerServer(t, PeerOptions{}, true)
	defer srv.Close()

	client := dialPeer(t, srv)
	peer := waitPeer(t, peers)
	_ = client.Close()

	select {
	case <-peer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer should shut down after the client disconnects")
	}
}
