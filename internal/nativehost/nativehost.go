// Package nativehost implements the browser-side ingress: Chrome
// native messaging frames on stdio, 4-byte little-endian length prefix
// followed by a JSON payload. Stdout belongs to the protocol, so all
// diagnostics must go to a file-backed logger.
package nativehost

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/event"
)

// Chrome messages are small; anything bigger is protocol garbage.
const maxFrame = 10 << 20

// Ingest is the external-event entry point, the same path /ext_event
// feeds.
type Ingest interface {
	HandleExternal(event.ExternalEvent) (merged bool, screenshotPath string)
}

type Host struct {
	in     io.Reader
	out    io.Writer
	ingest Ingest
	logger *zap.Logger
}

func New(in io.Reader, out io.Writer, ingest Ingest, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		in:     in,
		out:    out,
		ingest: ingest,
		logger: logger.Named("nativehost"),
	}
}

// Run services frames until stdin closes, which is the browser's
// shutdown signal and returns nil. A malformed payload gets an error
// reply and the loop continues; a broken frame stream is fatal.
func (h *Host) Run() error {
	for {
		payload, err := h.readFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var ev event.ExternalEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			h.logger.Warn("undecodable frame payload", zap.Error(err))
			if err := h.writeFrame(map[string]string{"status": "error", "error": "invalid JSON payload"}); err != nil {
				return err
			}
			continue
		}

		merged, shot := h.ingest.HandleExternal(ev)
		h.logger.Info("external event ingested",
			zap.Int("x", ev.X), zap.Int("y", ev.Y),
			zap.String("url", ev.PageURL()),
			zap.Bool("merged", merged),
			zap.String("screenshot", shot))

		if err := h.writeFrame(map[string]string{"status": "ok"}); err != nil {
			return err
		}
	}
}

func (h *Host) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(h.in, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("nativehost: truncated length prefix")
		}
		return nil, err // io.EOF passes through for a clean shutdown
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxFrame {
		return nil, fmt.Errorf("nativehost: frame length %d out of range", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.in, buf); err != nil {
		return nil, fmt.Errorf("nativehost: truncated frame: %w", err)
	}
	return buf, nil
}

func (h *Host) writeFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nativehost: marshal reply: %w", err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := h.out.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("nativehost: write reply: %w", err)
	}
	if _, err := h.out.Write(payload); err != nil {
		return fmt.Errorf("nativehost: write reply: %w", err)
	}
	return nil
}
