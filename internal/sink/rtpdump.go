package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/frame-bucket/viewer/internal/viewer"
)

// RTPDump writes every received RTP packet to a single stream as
// 2-byte big-endian length-prefixed records, all tracks interleaved in
// arrival order. The format is deliberately trivial to replay from a
// short script.
type RTPDump struct {
	logger *slog.Logger

	writeMu sync.Mutex
	w       io.Writer

	wg sync.WaitGroup
}

func NewRTPDump(w io.Writer, logger *slog.Logger) *RTPDump {
	if logger == nil {
		logger = slog.Default()
	}
	return &RTPDump{
		logger: logger,
		w:      w,
	}
}

// Bind starts a reader goroutine for the track and returns immediately.
func (d *RTPDump) Bind(track viewer.RemoteTrack) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.drain(track)
	}()
}

func (d *RTPDump) drain(track viewer.RemoteTrack) {
	logger := d.logger.With("track_id", track.ID(), "kind", track.Kind())
	var written uint64

	for {
		pkt, err := track.ReadRTP()
		if err != nil {
			logger.Info("track ended", "records", written, "err", err)
			return
		}
		if err := d.writeRecord(pkt.Marshal()); err != nil {
			logger.Error("dump write failed, dropping track", "err", err)
			return
		}
		written++
	}
}

func (d *RTPDump) writeRecord(data []byte, marshalErr error) error {
	if marshalErr != nil {
		return fmt.Errorf("marshal rtp packet: %w", marshalErr)
	}
	if len(data) > 0xFFFF {
		return fmt.Errorf("rtp packet too large for record format: %d bytes", len(data))
	}

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(data)))

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := d.w.Write(data)
	return err
}

// Close waits for all track readers to finish and closes the underlying
// writer if it is closable.
func (d *RTPDump) Close() error {
	d.wg.Wait()
	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
