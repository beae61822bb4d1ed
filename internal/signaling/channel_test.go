package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type relayStub struct {
	t *testing.T

	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

func newRelayStub(t *testing.T) (*relayStub, string) {
	t.Helper()

	stub := &relayStub{
		t:     t,
		conns: make(chan *websocket.Conn, 1),
	}
	ts := httptest.NewServer(stub)
	t.Cleanup(ts.Close)

	return stub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (s *relayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.conns <- conn
}

func (s *relayStub) accept() *websocket.Conn {
	s.t.Helper()

	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(5 * time.Second):
		s.t.Fatal("timed out waiting for relay connection")
		return nil
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func TestChannel_DeliversValidMessages(t *testing.T) {
	stub, url := newRelayStub(t)

	msgs := make(chan Message, 4)
	ch, err := Dial(context.Background(), url, ChannelCallbacks{
		OnMessage: func(m Message) { msgs <- m },
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })

	conn := stub.accept()
	defer conn.Close()

	writes := []string{
		`{"type":"welcome","peerId":"p1"}`,
		`{"type":"bogusType"}`,
		`not json`,
		`{"type":"sessionStarted","sessionId":"S1"}`,
	}
	for _, w := range writes {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(w)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	got := waitFor(t, msgs, "welcome")
	if got.Type != MessageTypeWelcome {
		t.Fatalf("first message type=%q", got.Type)
	}
	got = waitFor(t, msgs, "grant")
	if got.Type != MessageTypeSessionStarted || got.SessionID != "S1" {
		t.Fatalf("second message: %#v", got)
	}
}

func TestChannel_SendReachesRelay(t *testing.T) {
	stub, url := newRelayStub(t)

	ch, err := Dial(context.Background(), url, ChannelCallbacks{}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })

	conn := stub.accept()
	defer conn.Close()

	if err := ch.Send(StartSession("producer-7")); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Type != MessageTypeStartSession || got.PeerID != "producer-7" {
		t.Fatalf("unexpected message: %#v", got)
	}
}

func TestChannel_RemoteCloseFiresOnClosedOnce(t *testing.T) {
	stub, url := newRelayStub(t)

	closed := make(chan struct{}, 2)
	errs := make(chan error, 2)
	ch, err := Dial(context.Background(), url, ChannelCallbacks{
		OnError:  func(err error) { errs <- err },
		OnClosed: func() { closed <- struct{}{} },
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })

	conn := stub.accept()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
	_ = conn.Close()

	waitFor(t, closed, "OnClosed")
	select {
	case <-closed:
		t.Fatal("OnClosed fired twice")
	case err := <-errs:
		t.Fatalf("unexpected OnError: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChannel_CloseSuppressesCallbacks(t *testing.T) {
	stub, url := newRelayStub(t)

	closed := make(chan struct{}, 1)
	errs := make(chan error, 1)
	ch, err := Dial(context.Background(), url, ChannelCallbacks{
		OnError:  func(err error) { errs <- err },
		OnClosed: func() { closed <- struct{}{} },
	}, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	conn := stub.accept()
	defer conn.Close()

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case <-closed:
		t.Fatal("OnClosed fired after caller close")
	case err := <-errs:
		t.Fatalf("OnError fired after caller close: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}
