package viewer

import (
	"context"

	"github.com/pion/rtp"

	"github.com/frame-bucket/viewer/internal/signaling"
)

// State is the session lifecycle phase. Transitions only ever move forward,
// and StateClosed is reachable from anywhere.
type State string

const (
	StateConnecting    State = "connecting"
	StateAwaitingGrant State = "awaiting_grant"
	StateNegotiating   State = "negotiating"
	StateConnected     State = "connected"
	StateClosed        State = "closed"
)

// PeerState is the aggregate peer-connection state as seen by the session.
type PeerState string

const (
	PeerStateConnected    PeerState = "connected"
	PeerStateDisconnected PeerState = "disconnected"
	PeerStateFailed       PeerState = "failed"
	PeerStateClosed       PeerState = "closed"
)

// Callbacks is the session's caller-facing event surface. All fields are
// optional. Close permanently stops callback delivery, with one caveat: a
// delivery already in flight when Close is called from another goroutine
// may still complete. Callbacks may themselves call Close. None of them
// are retried or deduplicated beyond what their doc states.
type Callbacks struct {
	// OnConnected fires exactly once, when the first remote media track has
	// been bound to the sink.
	OnConnected func()

	// OnDisconnected fires when the peer connection degrades or the control
	// channel closes underneath the session. The session stays open; the
	// caller decides whether to Close and retry.
	OnDisconnected func()

	// OnError receives every reportable failure exactly once: control
	// transport errors, relay-reported errors, and negotiation failures.
	OnError func(error)
}

// ControlChannel is the send side of an established relay connection.
type ControlChannel interface {
	Send(signaling.Message) error
	Close() error
}

// DialFunc establishes the control channel and wires its event callbacks.
// The context is scoped to connection establishment.
type DialFunc func(ctx context.Context, relayURL string, cb signaling.ChannelCallbacks) (ControlChannel, error)

// RemoteTrack is a single inbound media track.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() string
	ReadRTP() (*rtp.Packet, error)
}

// MediaSink receives remote tracks as they arrive. Bind must not block; the
// sink owns any goroutines it starts to drain the track.
type MediaSink interface {
	Bind(RemoteTrack)
}

// PeerObservers are the three local observers the session registers on a
// freshly created peer connection.
type PeerObservers struct {
	OnRemoteTrack    func(RemoteTrack)
	OnLocalCandidate func(signaling.ICECandidate)
	OnStateChange    func(PeerState)
}

// PeerConnection is the consumed peer-connection capability. Observe is
// called exactly once, before any other method. HandleOffer applies the
// remote offer and returns the local answer SDP, with the description
// roles already applied. Implementations must accept candidates added
// before the remote description (buffering them as needed).
type PeerConnection interface {
	Observe(PeerObservers)
	HandleOffer(offerSDP string) (answerSDP string, err error)
	AddRemoteCandidate(signaling.ICECandidate) error
	Close() error
}

// PeerFactory creates the peer connection once a session is granted.
type PeerFactory func() (PeerConnection, error)
