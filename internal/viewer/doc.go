// Package viewer negotiates a live media connection to a single named
// producer peer through a signaling relay.
//
// A Session owns one control-channel connection and at most one peer
// connection. It registers as a listener, requests a session with the
// producer, answers the producer's SDP offer, trickles ICE candidates in
// both directions, and hands the first remote media track to the caller's
// sink. A session that fails or stalls never tears itself down; Close on
// the session handle is the only release path, and restarting is the
// caller's responsibility.
//
// The control channel and peer connection are consumed through small
// interfaces so the state machine can be driven by fakes in tests.
package viewer
