package store

import (
	"path/filepath"
	"testing"

	"github.com/clicktrail/clicktrail/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(ts string, src event.Source) event.ActivityRecord {
	return event.ActivityRecord{
		TimestampUTC: ts,
		X:            100,
		Y:            200,
		Source:       src,
	}
}

func TestOpenCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "index.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if n, err := s.Count(); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil", n, err)
	}
}

func TestInsertAndRecent(t *testing.T) {
	s := newTestStore(t)

	recs := []event.ActivityRecord{
		{
			TimestampUTC:   "2026-08-25T14-03-22.123Z",
			X:              640,
			Y:              360,
			AppName:        "chrome",
			ProcessID:      4242,
			WindowTitle:    "Example Domain",
			DisplayID:      1,
			Source:         event.SourceMerged,
			URLOrPath:      "https://example.com/",
			Text:           "More information",
			ScreenshotPath: "/data/2026-08-25/2026-08-25T14-03-22.123Z.png",
		},
		rec("2026-08-25T14-03-23.500Z", event.SourceOS),
	}
	for _, r := range recs {
		if err := s.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Recent(Query{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d records, want 2", len(got))
	}
	// Newest first.
	if got[0].TimestampUTC != "2026-08-25T14-03-23.500Z" {
		t.Errorf("first record ts = %q, want the newer one", got[0].TimestampUTC)
	}
	// Full round-trip of the merged record.
	if got[1] != recs[0] {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", got[1], recs[0])
	}
}

func TestInsertRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	if err := s.Insert(event.ActivityRecord{Source: event.SourceOS}); err == nil {
		t.Error("Insert accepted record with empty timestamp")
	}
	if err := s.Insert(event.ActivityRecord{TimestampUTC: "2026-08-25T00-00-00.000Z", Source: "bogus"}); err == nil {
		t.Error("Insert accepted record with unknown source")
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("Count = %d after rejected inserts, want 0", n)
	}
}

func TestRecentSourceFilter(t *testing.T) {
	s := newTestStore(t)

	for i, src := range []event.Source{event.SourceOS, event.SourceExternal, event.SourceMerged, event.SourceOS} {
		r := rec("2026-08-25T10-00-0"+string(rune('0'+i))+".000Z", src)
		if err := s.Insert(r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Recent(Query{Source: event.SourceOS})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("os filter returned %d records, want 2", len(got))
	}
	for _, r := range got {
		if r.Source != event.SourceOS {
			t.Errorf("filtered result has source %q", r.Source)
		}
	}
}

func TestRecentSinceAndLimit(t *testing.T) {
	s := newTestStore(t)

	stamps := []string{
		"2026-08-25T09-00-00.000Z",
		"2026-08-25T10-00-00.000Z",
		"2026-08-25T11-00-00.000Z",
		"2026-08-25T12-00-00.000Z",
	}
	for _, ts := range stamps {
		if err := s.Insert(rec(ts, event.SourceOS)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := s.Recent(Query{Since: "2026-08-25T10-00-00.000Z"})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("since filter returned %d records, want 3 (bound is inclusive)", len(got))
	}
	if got[0].TimestampUTC != stamps[3] || got[2].TimestampUTC != stamps[1] {
		t.Errorf("since results out of order: %q .. %q", got[0].TimestampUTC, got[2].TimestampUTC)
	}

	got, err = s.Recent(Query{Limit: 2})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit 2 returned %d records", len(got))
	}
	if got[0].TimestampUTC != stamps[3] || got[1].TimestampUTC != stamps[2] {
		t.Errorf("limit kept wrong rows: %q, %q", got[0].TimestampUTC, got[1].TimestampUTC)
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.Insert(rec("2026-08-25T14-00-00.00"+string(rune('0'+i))+"Z", event.SourceExternal)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 5 {
		t.Errorf("Count = %d, want 5", n)
	}
}
