package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	// Sent by the relay right after the control channel opens. Carries the
	// peer id the relay assigned to this connection.
	MessageTypeWelcome MessageType = "welcome"

	MessageTypeSetPeerStatus  MessageType = "setPeerStatus"
	MessageTypeStartSession   MessageType = "startSession"
	MessageTypeSessionStarted MessageType = "sessionStarted"
	MessageTypePeer           MessageType = "peer"
	MessageTypeEndSession     MessageType = "endSession"
	MessageTypeError          MessageType = "error"
)

// RoleListener is the peer role a viewer registers with.
const RoleListener = "listener"

var (
	ErrUnknownMessageType = errors.New("signaling: unknown message type")
	errMissingSessionID   = errors.New("signaling: missing sessionId")
	errMissingPayload     = errors.New("signaling: peer message carries neither sdp nor ice")
	errConflictingPayload = errors.New("signaling: peer message carries both sdp and ice")
)

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SDPFromPion(desc webrtc.SessionDescription) SDP {
	return SDP{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (s SDP) Validate() error {
	if s.Type != "offer" && s.Type != "answer" {
		return fmt.Errorf("signaling: unsupported sdp type %q", s.Type)
	}
	if s.SDP == "" {
		return errors.New("signaling: empty sdp body")
	}
	return nil
}

// ICECandidate is the wire form of a trickled candidate. The fields mirror
// the browser's RTCIceCandidateInit; this component only routes them.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	SDPMid        string `json:"sdpMid"`
}

func ICECandidateFromPion(init webrtc.ICECandidateInit) ICECandidate {
	c := ICECandidate{Candidate: init.Candidate}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = *init.SDPMLineIndex
	}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	return c
}

func (c ICECandidate) ToPion() webrtc.ICECandidateInit {
	mLineIndex := c.SDPMLineIndex
	mid := c.SDPMid
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &mLineIndex,
		SDPMid:        &mid,
	}
}

type PeerMeta struct {
	Name string `json:"name"`
}

// Message is the tagged union exchanged over the control channel. Exactly
// which fields are populated depends on Type; Validate enforces the shape
// for inbound messages.
type Message struct {
	Type      MessageType   `json:"type"`
	PeerID    string        `json:"peerId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	Roles     []string      `json:"roles,omitempty"`
	Meta      *PeerMeta     `json:"meta,omitempty"`
	SDP       *SDP          `json:"sdp,omitempty"`
	ICE       *ICECandidate `json:"ice,omitempty"`
	Details   string        `json:"details,omitempty"`
}

// SetPeerStatus builds the viewer-registration message.
func SetPeerStatus(name string) Message {
	return Message{
		Type:  MessageTypeSetPeerStatus,
		Roles: []string{RoleListener},
		Meta:  &PeerMeta{Name: name},
	}
}

// StartSession builds the session request naming the target producer.
func StartSession(producerID string) Message {
	return Message{
		Type:   MessageTypeStartSession,
		PeerID: producerID,
	}
}

// PeerSDP wraps a session description in a peer payload for the session.
func PeerSDP(sessionID string, sdp SDP) Message {
	return Message{
		Type:      MessageTypePeer,
		SessionID: sessionID,
		SDP:       &sdp,
	}
}

// PeerICE wraps a trickled candidate in a peer payload for the session.
func PeerICE(sessionID string, candidate ICECandidate) Message {
	return Message{
		Type:      MessageTypePeer,
		SessionID: sessionID,
		ICE:       &candidate,
	}
}

// Parse decodes and validates an inbound control-channel message.
//
// Relays are free to extend the protocol, so decoding is lenient about extra
// fields; validation is strict about the fields each known type requires.
// Unknown types surface as ErrUnknownMessageType so callers can skip them.
func Parse(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("signaling: decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) Validate() error {
	switch m.Type {
	case MessageTypeWelcome:
		return nil
	case MessageTypeSessionStarted, MessageTypeEndSession:
		if m.SessionID == "" {
			return fmt.Errorf("%w in %q message", errMissingSessionID, m.Type)
		}
		return nil
	case MessageTypePeer:
		if m.SessionID == "" {
			return fmt.Errorf("%w in %q message", errMissingSessionID, m.Type)
		}
		switch {
		case m.SDP == nil && m.ICE == nil:
			return errMissingPayload
		case m.SDP != nil && m.ICE != nil:
			return errConflictingPayload
		case m.SDP != nil:
			return m.SDP.Validate()
		default:
			if m.ICE.Candidate == "" {
				return errors.New("signaling: empty ice candidate")
			}
			return nil
		}
	case MessageTypeError:
		// Details may legitimately be empty; the relay owns the text.
		return nil
	case MessageTypeSetPeerStatus, MessageTypeStartSession:
		// Valid protocol traffic, but addressed to the relay; a viewer never
		// expects to receive these and the session layer ignores them.
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
}
