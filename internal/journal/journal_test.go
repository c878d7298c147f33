package journal

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/clicktrail/clicktrail/internal/event"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func testRecord(ts string) event.ActivityRecord {
	return event.ActivityRecord{
		TimestampUTC: ts,
		X:            100,
		Y:            200,
		AppName:      "chrome",
		ProcessID:    4242,
		WindowTitle:  "Example - Chrome",
		Source:       event.SourceMerged,
		URLOrPath:    "https://example.com",
		Text:         "clicked link",
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestAppendWritesBothFormats(t *testing.T) {
	j := newTestJournal(t)
	rec := testRecord("2026-08-25T14-03-22.123Z")

	if err := j.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(j.NDJSONPath("2026-08-25"))
	if err != nil {
		t.Fatalf("read ndjson: %v", err)
	}
	var got event.ActivityRecord
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &got); err != nil {
		t.Fatalf("unmarshal ndjson line: %v", err)
	}
	if got != rec {
		t.Fatalf("ndjson round-trip mismatch:\n got %+v\nwant %+v", got, rec)
	}

	rows := readCSV(t, j.CSVPath("2026-08-25"))
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "timestamp_utc" || rows[0][9] != "doc_path" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != rec.TimestampUTC || rows[1][1] != "100" || rows[1][7] != "merged" {
		t.Fatalf("unexpected csv row: %v", rows[1])
	}
}

func TestCSVHeaderWrittenOncePerDay(t *testing.T) {
	j := newTestJournal(t)
	for i := 0; i < 3; i++ {
		if err := j.Append(testRecord("2026-08-25T14-03-22.123Z")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	rows := readCSV(t, j.CSVPath("2026-08-25"))
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	for _, row := range rows[1:] {
		if row[0] == "timestamp_utc" {
			t.Fatal("header repeated mid-file")
		}
	}
}

func TestCSVHeaderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(testRecord("2026-08-25T14-03-22.123Z")); err != nil {
		t.Fatalf("append: %v", err)
	}
	j.Close()

	j2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j2.Close()
	if err := j2.Append(testRecord("2026-08-25T15-00-00.000Z")); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	rows := readCSV(t, j2.CSVPath("2026-08-25"))
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
}

func TestAppendRollsToNewDayFolder(t *testing.T) {
	j := newTestJournal(t)
	if err := j.Append(testRecord("2026-08-25T23-59-59.900Z")); err != nil {
		t.Fatalf("append day 1: %v", err)
	}
	if err := j.Append(testRecord("2026-08-26T00-00-00.100Z")); err != nil {
		t.Fatalf("append day 2: %v", err)
	}

	for _, day := range []string{"2026-08-25", "2026-08-26"} {
		if _, err := os.Stat(j.NDJSONPath(day)); err != nil {
			t.Errorf("missing ndjson for %s: %v", day, err)
		}
		rows := readCSV(t, j.CSVPath(day))
		if len(rows) != 2 {
			t.Errorf("day %s: expected header + 1 row, got %d", day, len(rows))
		}
	}
}

func TestAppendStampsMissingTimestamp(t *testing.T) {
	j := newTestJournal(t)
	rec := testRecord("")
	if err := j.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := os.ReadDir(j.Root())
	if err != nil {
		t.Fatal(err)
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() {
			days = append(days, e.Name())
		}
	}
	if len(days) != 1 {
		t.Fatalf("expected one day folder, got %v", days)
	}
	data, err := os.ReadFile(j.NDJSONPath(days[0]))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"timestamp_utc":""`) {
		t.Fatal("record persisted without a timestamp")
	}
}

func TestCSVFlattensMultilineText(t *testing.T) {
	j := newTestJournal(t)
	rec := testRecord("2026-08-25T14-03-22.123Z")
	rec.Text = "  line one\nline two\n"
	if err := j.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := readCSV(t, j.CSVPath("2026-08-25"))
	if rows[1][10] != "line one line two" {
		t.Fatalf("csv text = %q, want flattened", rows[1][10])
	}

	// NDJSON keeps the raw text.
	data, _ := os.ReadFile(j.NDJSONPath("2026-08-25"))
	var got event.ActivityRecord
	json.Unmarshal([]byte(strings.TrimSpace(string(data))), &got)
	if got.Text != rec.Text {
		t.Fatalf("ndjson text = %q, want raw", got.Text)
	}
}

func TestConcurrentAppendsProduceCompleteLines(t *testing.T) {
	j := newTestJournal(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Append(testRecord("2026-08-25T14-03-22.123Z"))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(j.NDJSONPath("2026-08-25"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Fatalf("expected 50 ndjson lines, got %d", len(lines))
	}
	for i, line := range lines {
		var rec event.ActivityRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", i+1, err)
		}
	}

	rows := readCSV(t, j.CSVPath("2026-08-25"))
	if len(rows) != 51 {
		t.Fatalf("expected header + 50 csv rows, got %d", len(rows))
	}
}

func TestUnresolvedPidIsEmptyCSVCell(t *testing.T) {
	j := newTestJournal(t)
	rec := testRecord("2026-08-25T14-03-22.123Z")
	rec.ProcessID = 0
	if err := j.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows := readCSV(t, j.CSVPath("2026-08-25"))
	if rows[1][4] != "" {
		t.Fatalf("pid cell = %q, want empty", rows[1][4])
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	j := newTestJournal(t)
	if err := j.Append(testRecord("2026-08-25T14-03-22.123Z")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := j.Append(testRecord("2026-08-25T14-03-23.456Z")); err == nil {
		t.Fatal("append after close succeeded, want error")
	}
}
