// Package webrtcpeer backs the viewer's peer-connection capability with a
// pion RTCPeerConnection configured for receive-only media.
package webrtcpeer

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// NewAPI builds the shared webrtc.API: default media codecs and pion's
// internal logging bridged to the structured logger.
func NewAPI(logger *slog.Logger) (*webrtc.API, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	se := webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(logger),
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}
