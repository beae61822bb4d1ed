package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/frame-bucket/viewer/internal/metrics"
	"github.com/frame-bucket/viewer/internal/signaling"
)

// RelayError is a protocol error reported by the signaling relay. The
// message is the relay-provided details, verbatim.
type RelayError struct {
	Details string
}

func (e *RelayError) Error() string {
	return e.Details
}

// Options configures a Session beyond the required Open arguments.
type Options struct {
	// Dial establishes the control channel. Required.
	Dial DialFunc

	// NewPeer creates the peer connection once a session is granted.
	// Required.
	NewPeer PeerFactory

	// DisplayName is the name sent in the listener registration.
	DisplayName string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Session negotiates and owns a single viewer connection. See the package
// documentation for the lifecycle.
//
// Event handlers (control-channel and peer-connection callbacks) are
// serialized on the session mutex and run to completion one at a time.
// Caller callbacks are invoked outside the mutex so they may call Close.
type Session struct {
	relayURL   string
	producerID string
	sink       MediaSink
	cb         Callbacks
	opts       Options
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu         sync.Mutex
	state      State
	sessionID  string
	control    ControlChannel
	peer       PeerConnection
	answered   bool
	connected  bool
	closed     bool
	dialCancel context.CancelFunc

	closeOnce sync.Once
}

// Open begins connecting immediately and returns the session handle. It
// never fails synchronously; every failure is reported through
// Callbacks.OnError.
func Open(sink MediaSink, relayURL, producerID string, cb Callbacks, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		relayURL:   relayURL,
		producerID: producerID,
		sink:       sink,
		cb:         cb,
		opts:       opts,
		logger:     logger.With("producer_id", producerID),
		metrics:    opts.Metrics,
		state:      StateConnecting,
	}
	go s.connect()
	return s
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the peer connection and then the control channel,
// suppressing any errors either raises, and permanently stops callback
// delivery. Safe to call from any state, any number of times, including
// from inside a callback.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.state = StateClosed
		peer, control := s.peer, s.control
		s.peer, s.control = nil, nil
		cancel := s.dialCancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		// Peer connection first: its teardown can surface a disconnected
		// state change through the control channel's own close, and the
		// closed flag is already set so neither release reaches the caller.
		if peer != nil {
			_ = peer.Close()
		}
		if control != nil {
			_ = control.Close()
		}

		s.logger.Info("session closed")
	})
}

func (s *Session) connect() {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.dialCancel = cancel
	s.mu.Unlock()

	ch, err := s.opts.Dial(ctx, s.relayURL, signaling.ChannelCallbacks{
		OnMessage: s.handleControlMessage,
		OnError:   s.handleControlError,
		OnClosed:  s.handleControlClosed,
	})
	if err != nil {
		s.reportError(fmt.Errorf("connect to relay: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ch.Close()
		return
	}
	s.control = ch
	s.state = StateAwaitingGrant
	s.mu.Unlock()

	s.logger.Info("control channel open, requesting session")

	// Registration and the session request are unacknowledged; the relay's
	// later grant is the only acknowledgment consumed.
	if err := ch.Send(signaling.SetPeerStatus(s.opts.DisplayName)); err != nil {
		s.reportError(fmt.Errorf("register as listener: %w", err))
		return
	}
	if err := ch.Send(signaling.StartSession(s.producerID)); err != nil {
		s.reportError(fmt.Errorf("request session: %w", err))
	}
}

func (s *Session) handleControlMessage(msg signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeWelcome:
		s.logger.Debug("relay assigned peer id", "peer_id", msg.PeerID)
	case signaling.MessageTypeSessionStarted:
		s.handleGrant(msg.SessionID)
	case signaling.MessageTypePeer:
		s.handlePeerPayload(msg)
	case signaling.MessageTypeEndSession:
		s.handleEndSession(msg.SessionID)
	case signaling.MessageTypeError:
		s.metrics.Inc(metrics.CounterRelayErrors)
		s.reportError(&RelayError{Details: msg.Details})
	default:
		s.logger.Debug("ignoring control message", "message_type", msg.Type)
	}
}

func (s *Session) handleGrant(sessionID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if active := s.sessionID; active != "" {
		s.mu.Unlock()
		// The relay is not expected to grant twice; keep the active session.
		s.logger.Warn("ignoring duplicate session grant",
			"active_session_id", active,
			"session_id", sessionID,
		)
		return
	}
	s.mu.Unlock()

	// Constructing the peer connection can do real work (ICE agent setup);
	// keep it off the state lock so other events are not stalled behind it.
	peer, err := s.opts.NewPeer()
	if err != nil {
		s.reportError(fmt.Errorf("create peer connection: %w", err))
		return
	}

	s.mu.Lock()
	if s.closed || s.sessionID != "" {
		s.mu.Unlock()
		_ = peer.Close()
		return
	}
	s.sessionID = sessionID
	s.peer = peer
	s.state = StateNegotiating
	s.mu.Unlock()

	peer.Observe(PeerObservers{
		OnRemoteTrack:    s.handleRemoteTrack,
		OnLocalCandidate: s.handleLocalCandidate,
		OnStateChange:    s.handlePeerState,
	})

	s.metrics.Inc(metrics.CounterSessionGrants)
	s.logger.Info("session granted", "session_id", sessionID)
}

func (s *Session) handlePeerPayload(msg signaling.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.sessionID == "" || msg.SessionID != s.sessionID {
		// Stray traffic for a stale or unknown session.
		s.mu.Unlock()
		s.metrics.Inc(metrics.CounterStalePayloads)
		s.logger.Debug("discarding payload for inactive session", "session_id", msg.SessionID)
		return
	}
	peer, control, sessionID := s.peer, s.control, s.sessionID
	alreadyAnswered := s.answered
	if msg.SDP != nil && !alreadyAnswered {
		s.answered = true
	}
	s.mu.Unlock()

	if peer == nil {
		return
	}

	switch {
	case msg.SDP != nil:
		if alreadyAnswered {
			// Single offer/answer exchange; no renegotiation.
			s.logger.Warn("ignoring additional sdp after answer", "sdp_type", msg.SDP.Type)
			return
		}
		s.answerOffer(peer, control, sessionID, msg.SDP.SDP)
	case msg.ICE != nil:
		s.metrics.Inc(metrics.CounterCandidatesReceived)
		// Late or duplicate candidates race session teardown; failures here
		// must not abort the session.
		if err := peer.AddRemoteCandidate(*msg.ICE); err != nil {
			s.logger.Debug("dropping remote candidate", "err", err)
		}
	}
}

// answerOffer runs the one negotiation path that produces an answer: apply
// the remote offer, synthesize and apply the local answer, send it back
// tagged with the session. Any failure is reported and no answer is sent.
func (s *Session) answerOffer(peer PeerConnection, control ControlChannel, sessionID, offerSDP string) {
	answerSDP, err := peer.HandleOffer(offerSDP)
	if err != nil {
		s.reportError(fmt.Errorf("negotiate offer: %w", err))
		return
	}
	msg := signaling.PeerSDP(sessionID, signaling.SDP{Type: "answer", SDP: answerSDP})
	if err := control.Send(msg); err != nil {
		s.reportError(fmt.Errorf("send answer: %w", err))
		return
	}
	s.metrics.Inc(metrics.CounterAnswersSent)
	s.logger.Info("answer sent", "session_id", sessionID)
}

func (s *Session) handleEndSession(sessionID string) {
	s.mu.Lock()
	if s.closed || s.sessionID == "" || sessionID != s.sessionID {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info("producer ended session", "session_id", sessionID)
	if s.cb.OnDisconnected != nil {
		s.cb.OnDisconnected()
	}
}

func (s *Session) handleRemoteTrack(track RemoteTrack) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	first := !s.connected
	if first {
		s.connected = true
		s.state = StateConnected
	}
	s.mu.Unlock()

	s.metrics.Inc(metrics.CounterTracksBound)
	s.logger.Info("remote track bound",
		"track_id", track.ID(),
		"stream_id", track.StreamID(),
		"kind", track.Kind(),
	)
	s.sink.Bind(track)

	if first && s.cb.OnConnected != nil {
		s.cb.OnConnected()
	}
}

func (s *Session) handleLocalCandidate(candidate signaling.ICECandidate) {
	s.mu.Lock()
	if s.closed || s.control == nil || s.sessionID == "" {
		s.mu.Unlock()
		return
	}
	control, sessionID := s.control, s.sessionID
	s.mu.Unlock()

	if err := control.Send(signaling.PeerICE(sessionID, candidate)); err != nil {
		s.reportError(fmt.Errorf("send candidate: %w", err))
		return
	}
	s.metrics.Inc(metrics.CounterCandidatesSent)
}

func (s *Session) handlePeerState(state PeerState) {
	switch state {
	case PeerStateFailed, PeerStateDisconnected:
	default:
		return
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.logger.Warn("peer connection degraded", "peer_state", state)
	// The session does not tear itself down; the caller decides.
	if s.cb.OnDisconnected != nil {
		s.cb.OnDisconnected()
	}
}

func (s *Session) handleControlError(err error) {
	s.reportError(err)
}

func (s *Session) handleControlClosed() {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.logger.Warn("control channel closed by relay")
	if s.cb.OnDisconnected != nil {
		s.cb.OnDisconnected()
	}
}

func (s *Session) reportError(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.logger.Error("session error", "err", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}
