// Package signaling speaks the viewer side of the relay's control-channel
// protocol: peer-status registration, session start, and the SDP/ICE
// exchange that trickles through the relay while the media connection is
// negotiated.
//
// The wire format is JSON text messages over a single WebSocket connection.
package signaling
