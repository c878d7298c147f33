package nativehost

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/clicktrail/clicktrail/internal/event"
)

type recordingIngest struct {
	evs []event.ExternalEvent
}

func (r *recordingIngest) HandleExternal(ev event.ExternalEvent) (bool, string) {
	r.evs = append(r.evs, ev)
	return false, ""
}

func frame(t *testing.T, payload string) []byte {
	t.Helper()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	return append(lenBuf[:], payload...)
}

// readReplies parses every length-prefixed frame out of the host's
// stdout stream.
func readReplies(t *testing.T, out []byte) []map[string]string {
	t.Helper()
	var replies []map[string]string
	for len(out) > 0 {
		if len(out) < 4 {
			t.Fatalf("trailing garbage on stdout: % x", out)
		}
		n := binary.LittleEndian.Uint32(out[:4])
		out = out[4:]
		if uint32(len(out)) < n {
			t.Fatalf("reply frame truncated: want %d bytes, have %d", n, len(out))
		}
		var reply map[string]string
		if err := json.Unmarshal(out[:n], &reply); err != nil {
			t.Fatalf("reply is not JSON: %v", err)
		}
		replies = append(replies, reply)
		out = out[n:]
	}
	return replies
}

func TestRunIngestsFramesAndReplies(t *testing.T) {
	var in bytes.Buffer
	in.Write(frame(t, `{"x": 10, "y": 20, "url": "https://example.com/", "title": "Example"}`))
	in.Write(frame(t, `{"x": 30, "y": 40, "browser_url": "https://other.example/"}`))

	var out bytes.Buffer
	ing := &recordingIngest{}
	if err := New(&in, &out, ing, nil).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ing.evs) != 2 {
		t.Fatalf("ingested %d events, want 2", len(ing.evs))
	}
	if ing.evs[0].X != 10 || ing.evs[0].URL != "https://example.com/" {
		t.Errorf("first event = %+v", ing.evs[0])
	}
	if ing.evs[1].PageURL() != "https://other.example/" {
		t.Errorf("second event url = %q", ing.evs[1].PageURL())
	}

	replies := readReplies(t, out.Bytes())
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	for i, r := range replies {
		if r["status"] != "ok" {
			t.Errorf("reply %d status = %q, want ok", i, r["status"])
		}
	}
}

func TestRunRepliesErrorOnBadPayloadAndContinues(t *testing.T) {
	var in bytes.Buffer
	in.Write(frame(t, `not json at all`))
	in.Write(frame(t, `{"x": 1, "y": 2}`))

	var out bytes.Buffer
	ing := &recordingIngest{}
	if err := New(&in, &out, ing, nil).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ing.evs) != 1 {
		t.Fatalf("ingested %d events, want 1 (bad frame skipped)", len(ing.evs))
	}
	replies := readReplies(t, out.Bytes())
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if replies[0]["status"] != "error" {
		t.Errorf("first reply status = %q, want error", replies[0]["status"])
	}
	if replies[1]["status"] != "ok" {
		t.Errorf("second reply status = %q, want ok", replies[1]["status"])
	}
}

func TestRunCleanExitOnEOF(t *testing.T) {
	if err := New(bytes.NewReader(nil), &bytes.Buffer{}, &recordingIngest{}, nil).Run(); err != nil {
		t.Fatalf("Run on empty stdin: %v", err)
	}
}

func TestRunFailsOnTruncatedFrame(t *testing.T) {
	full := frame(t, `{"x": 1}`)
	in := bytes.NewReader(full[:len(full)-3])

	if err := New(in, &bytes.Buffer{}, &recordingIngest{}, nil).Run(); err == nil {
		t.Fatal("Run accepted a truncated frame")
	}
}

func TestRunFailsOnTruncatedLengthPrefix(t *testing.T) {
	in := bytes.NewReader([]byte{0x01, 0x02})

	if err := New(in, &bytes.Buffer{}, &recordingIngest{}, nil).Run(); err == nil {
		t.Fatal("Run accepted a truncated length prefix")
	}
}

func TestRunFailsOnAbsurdLength(t *testing.T) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 1<<31)

	if err := New(bytes.NewReader(lenBuf[:]), &bytes.Buffer{}, &recordingIngest{}, nil).Run(); err == nil {
		t.Fatal("Run accepted an out-of-range frame length")
	}
}
