// Package sink provides the viewer's media sinks. A sink takes ownership of
// each remote track handed to it and drains RTP until the track ends.
package sink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/frame-bucket/viewer/internal/viewer"
)

// TrackTotals is a point-in-time view of one track's counters.
type TrackTotals struct {
	Packets uint64
	Bytes   uint64
}

// Stats drains tracks and keeps per-track packet and byte counts, logging
// them periodically and once more when the track ends.
type Stats struct {
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	totals map[string]TrackTotals

	wg sync.WaitGroup
}

func NewStats(logger *slog.Logger, interval time.Duration) *Stats {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stats{
		logger:   logger,
		interval: interval,
		totals:   make(map[string]TrackTotals),
	}
}

// Bind starts a reader goroutine for the track and returns immediately.
func (s *Stats) Bind(track viewer.RemoteTrack) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drain(track)
	}()
}

func (s *Stats) drain(track viewer.RemoteTrack) {
	logger := s.logger.With(
		"track_id", track.ID(),
		"stream_id", track.StreamID(),
		"kind", track.Kind(),
	)
	lastLogged := time.Now()

	for {
		pkt, err := track.ReadRTP()
		if err != nil {
			// Track over; the session reports disconnects separately.
			totals := s.trackTotals(track.ID())
			logger.Info("track ended",
				"packets", totals.Packets,
				"bytes", totals.Bytes,
				"err", err,
			)
			return
		}

		s.mu.Lock()
		totals := s.totals[track.ID()]
		totals.Packets++
		totals.Bytes += uint64(len(pkt.Payload))
		s.totals[track.ID()] = totals
		s.mu.Unlock()

		if time.Since(lastLogged) >= s.interval {
			lastLogged = time.Now()
			logger.Info("track stats",
				"packets", totals.Packets,
				"bytes", totals.Bytes,
			)
		}
	}
}

func (s *Stats) trackTotals(trackID string) TrackTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[trackID]
}

// Totals returns a copy of all per-track counters.
func (s *Stats) Totals() map[string]TrackTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TrackTotals, len(s.totals))
	for id, totals := range s.totals {
		out[id] = totals
	}
	return out
}

// Close waits for all track readers to finish. Callers must release the
// peer connection first so the reads unblock.
func (s *Stats) Close() error {
	s.wg.Wait()
	return nil
}
