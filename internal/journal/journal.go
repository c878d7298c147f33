// Package journal is the durable activity log: every record is appended
// to two sibling files per UTC day, activity.ndjson and activity.csv,
// and synced to disk before the append returns. The two formats fail
// independently; losing one never blocks the other.
package journal

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clicktrail/clicktrail/internal/event"
)

// csvHeader is the fixed column order. Readers depend on it; never
// reorder.
var csvHeader = []string{
	"timestamp_utc",
	"x",
	"y",
	"app_name",
	"process_id",
	"window_title",
	"display_id",
	"source",
	"url_or_path",
	"doc_path",
	"text",
	"screenshot_path",
}

// Journal appends activity records under <root>/<YYYY-MM-DD>/. Each
// format holds its own lock and file handle so a stall in one cannot
// back up the other.
type Journal struct {
	root string

	ndMu     sync.Mutex
	nd       *os.File
	ndDay    string
	ndClosed bool

	csvMu     sync.Mutex
	csv       *os.File
	csvDay    string
	csvClosed bool
}

// Open prepares a journal rooted at dir. Day folders are created
// lazily on first append.
func Open(root string) (*Journal, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("journal: create root: %w", err)
	}
	return &Journal{root: root}, nil
}

// Root returns the output root the journal writes under.
func (j *Journal) Root() string { return j.root }

// NDJSONPath returns the NDJSON file for a given day folder name.
func (j *Journal) NDJSONPath(day string) string {
	return filepath.Join(j.root, day, "activity.ndjson")
}

// CSVPath returns the CSV file for a given day folder name.
func (j *Journal) CSVPath(day string) string {
	return filepath.Join(j.root, day, "activity.csv")
}

// Append writes the record to both formats and syncs each. Both
// formats are always attempted; the returned error joins whichever
// failed. Failed writes are retried once on a fresh handle before
// giving up.
func (j *Journal) Append(rec event.ActivityRecord) error {
	if rec.TimestampUTC == "" {
		rec.TimestampUTC = event.UTCMillis(time.Now())
	}
	day := dayOf(rec.TimestampUTC)

	return errors.Join(j.appendNDJSON(rec, day), j.appendCSV(rec, day))
}

// Close flushes and closes both file handles. Appends racing Close
// finish first (they hold the format lock); later appends fail instead
// of reopening handles under a retired root.
func (j *Journal) Close() error {
	j.ndMu.Lock()
	if j.nd != nil {
		j.nd.Close()
		j.nd = nil
	}
	j.ndClosed = true
	j.ndMu.Unlock()

	j.csvMu.Lock()
	if j.csv != nil {
		j.csv.Close()
		j.csv = nil
	}
	j.csvClosed = true
	j.csvMu.Unlock()
	return nil
}

func (j *Journal) appendNDJSON(rec event.ActivityRecord, day string) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}
	line = append(line, '\n')

	j.ndMu.Lock()
	defer j.ndMu.Unlock()

	if j.ndClosed {
		return fmt.Errorf("journal: ndjson append after close")
	}
	if j.nd == nil || j.ndDay != day {
		if err := j.rollNDJSON(day); err != nil {
			return err
		}
	}
	if err := writeSync(j.nd, line); err != nil {
		// One retry on a fresh handle covers rotated-away or deleted
		// day files without losing the record.
		if rerr := j.rollNDJSON(day); rerr != nil {
			return fmt.Errorf("journal: ndjson append: %w", err)
		}
		if rerr := writeSync(j.nd, line); rerr != nil {
			return fmt.Errorf("journal: ndjson append after retry: %w", rerr)
		}
	}
	return nil
}

func (j *Journal) appendCSV(rec event.ActivityRecord, day string) error {
	j.csvMu.Lock()
	defer j.csvMu.Unlock()

	if j.csvClosed {
		return fmt.Errorf("journal: csv append after close")
	}
	if j.csv == nil || j.csvDay != day {
		if err := j.rollCSV(day); err != nil {
			return err
		}
	}
	if err := writeCSVRow(j.csv, rec); err != nil {
		if rerr := j.rollCSV(day); rerr != nil {
			return fmt.Errorf("journal: csv append: %w", err)
		}
		if rerr := writeCSVRow(j.csv, rec); rerr != nil {
			return fmt.Errorf("journal: csv append after retry: %w", rerr)
		}
	}
	return nil
}

// rollNDJSON closes any open handle and opens the file for the given
// day. Caller holds ndMu.
func (j *Journal) rollNDJSON(day string) error {
	if j.nd != nil {
		j.nd.Close()
		j.nd = nil
	}
	f, err := j.openAppend(j.NDJSONPath(day))
	if err != nil {
		return fmt.Errorf("journal: open ndjson: %w", err)
	}
	j.nd, j.ndDay = f, day
	return nil
}

// rollCSV opens the day's CSV file and writes the header when the file
// is new or empty. Caller holds csvMu.
func (j *Journal) rollCSV(day string) error {
	if j.csv != nil {
		j.csv.Close()
		j.csv = nil
	}
	f, err := j.openAppend(j.CSVPath(day))
	if err != nil {
		return fmt.Errorf("journal: open csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("journal: stat csv: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return fmt.Errorf("journal: csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("journal: csv header: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("journal: csv header sync: %w", err)
		}
	}
	j.csv, j.csvDay = f, day
	return nil
}

func (j *Journal) openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}

func writeSync(f *os.File, line []byte) error {
	if _, err := f.Write(line); err != nil {
		return err
	}
	return f.Sync()
}

func writeCSVRow(f *os.File, rec event.ActivityRecord) error {
	w := csv.NewWriter(f)
	if err := w.Write(csvRow(rec)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// csvRow renders a record in csvHeader order. Unresolved pids become
// empty cells, and text is flattened to a single line.
func csvRow(rec event.ActivityRecord) []string {
	pid := ""
	if rec.ProcessID != 0 {
		pid = strconv.Itoa(rec.ProcessID)
	}
	return []string{
		rec.TimestampUTC,
		strconv.Itoa(rec.X),
		strconv.Itoa(rec.Y),
		rec.AppName,
		pid,
		rec.WindowTitle,
		strconv.Itoa(rec.DisplayID),
		string(rec.Source),
		rec.URLOrPath,
		rec.DocPath,
		strings.TrimSpace(strings.ReplaceAll(rec.Text, "\n", " ")),
		rec.ScreenshotPath,
	}
}

// dayOf extracts the day-folder name from a record timestamp,
// falling back to today for malformed stamps.
func dayOf(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return event.Day(time.Now())
}
