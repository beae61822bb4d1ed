package webrtcpeer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/frame-bucket/viewer/internal/signaling"
	"github.com/frame-bucket/viewer/internal/viewer"
)

// DefaultKeyframeInterval is how often a PLI is sent for each video track
// when the options leave the interval unset.
const DefaultKeyframeInterval = 3 * time.Second

// Options configures a single peer connection.
type Options struct {
	// ICEServers must contain at least one entry; the viewer is expected to
	// sit behind NAT and needs a STUN-derived candidate at minimum.
	ICEServers []webrtc.ICEServer

	// KeyframeInterval is the PLI cadence for inbound video tracks.
	// Negative disables keyframe requests; zero means DefaultKeyframeInterval.
	KeyframeInterval time.Duration

	Logger *slog.Logger
}

// Peer adapts a pion RTCPeerConnection to the session's consumed
// peer-connection capability.
type Peer struct {
	pc               *webrtc.PeerConnection
	logger           *slog.Logger
	keyframeInterval time.Duration

	// ctx bounds the per-track keyframe request loops.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the underlying peer connection. Candidate gathering starts
// once the answer is applied; candidates trickle out through the observer.
func New(api *webrtc.API, opts Options) (*Peer, error) {
	if len(opts.ICEServers) == 0 {
		return nil, fmt.Errorf("at least one ICE server is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keyframeInterval := opts.KeyframeInterval
	if keyframeInterval == 0 {
		keyframeInterval = DefaultKeyframeInterval
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: opts.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		pc:               pc,
		logger:           logger,
		keyframeInterval: keyframeInterval,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// Observe registers the session's observers on the underlying connection.
// Called exactly once, before HandleOffer.
func (p *Peer) Observe(obs viewer.PeerObservers) {
	p.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Debug("remote track arrived",
			"track_id", tr.ID(),
			"kind", tr.Kind().String(),
			"ssrc", uint32(tr.SSRC()),
		)
		if tr.Kind() == webrtc.RTPCodecTypeVideo && p.keyframeInterval > 0 {
			go p.requestKeyframes(tr)
		}
		if obs.OnRemoteTrack != nil {
			obs.OnRemoteTrack(remoteTrack{tr: tr})
		}
	})

	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks end of gathering; the protocol has no end-of-candidates
		// signal, so there is nothing to send.
		if c == nil {
			return
		}
		if obs.OnLocalCandidate != nil {
			obs.OnLocalCandidate(signaling.ICECandidateFromPion(c.ToJSON()))
		}
	})

	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("peer connection state", "state", state.String())
		mapped, ok := mapPeerState(state)
		if !ok {
			return
		}
		if obs.OnStateChange != nil {
			obs.OnStateChange(mapped)
		}
	})
}

// HandleOffer applies the remote offer and produces the local answer. The
// answer is returned as soon as it is applied; gathering continues in the
// background and trickles candidates through the observer.
func (p *Peer) HandleOffer(offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	return p.pc.LocalDescription().SDP, nil
}

// AddRemoteCandidate feeds a trickled candidate into ICE. Pion buffers
// candidates that arrive before the remote description.
func (p *Peer) AddRemoteCandidate(candidate signaling.ICECandidate) error {
	return p.pc.AddICECandidate(candidate.ToPion())
}

// Close stops the keyframe loops and releases the connection.
func (p *Peer) Close() error {
	p.cancel()
	return p.pc.Close()
}

func mapPeerState(state webrtc.PeerConnectionState) (viewer.PeerState, bool) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		return viewer.PeerStateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return viewer.PeerStateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return viewer.PeerStateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return viewer.PeerStateClosed, true
	default:
		return "", false
	}
}

type remoteTrack struct {
	tr *webrtc.TrackRemote
}

func (t remoteTrack) ID() string       { return t.tr.ID() }
func (t remoteTrack) StreamID() string { return t.tr.StreamID() }
func (t remoteTrack) Kind() string     { return t.tr.Kind().String() }

func (t remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.tr.ReadRTP()
	return pkt, err
}
