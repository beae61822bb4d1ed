package webrtcpeer

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// requestKeyframes periodically asks the producer for a full frame. Without
// a PLI a viewer joining mid-stream can sit on undecodable deltas until the
// producer's own keyframe cadence catches up.
func (p *Peer) requestKeyframes(tr *webrtc.TrackRemote) {
	ssrc := uint32(tr.SSRC())
	ticker := time.NewTicker(p.keyframeInterval)
	defer ticker.Stop()

	for {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}
		if err := p.pc.WriteRTCP(pli); err != nil {
			// The connection is going away; the session handles teardown.
			p.logger.Debug("stopping keyframe requests", "err", err, "ssrc", ssrc)
			return
		}

		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
