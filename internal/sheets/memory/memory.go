package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"workhours/internal/core"
)

// SeedFile is the optional file NewFromFiles reads entries from.
const SeedFile = "seed_worklog.txt"

// Store keeps the work log in process memory.
type Store struct {
	mu   sync.Mutex
	days core.DaySet
}

func New(entries []core.DayEntry) *Store {
	return &Store{days: core.NewDaySet(entries)}
}

// NewFromFiles seeds the store from base/seed_worklog.txt. Each line holds a
// date and hours separated by whitespace or a comma; blank lines, comments
// and malformed lines are skipped.
func NewFromFiles(base string) *Store {
	if base == "" {
		return New(nil)
	}
	return New(readEntries(filepath.Join(base, SeedFile)))
}

func (s *Store) QueryAll(_ context.Context) ([]core.DayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.days.Entries(), nil
}

func (s *Store) Upsert(_ context.Context, entries []core.DayEntry) error {
	for _, e := range entries {
		if err := e.Date.Validate(); err != nil {
			return err
		}
		if err := core.ValidateHours(e.Hours); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.days.Set(e.Date, e.Hours)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, dates []core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range dates {
		s.days.Delete(d)
	}
	return nil
}

// Len returns the number of stored days.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.days)
}

func readEntries(path string) []core.DayEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.DayEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) != 2 {
			continue
		}
		d, err := core.ParseDate(fields[0])
		if err != nil {
			continue
		}
		h, ok := core.ParseHoursInput(fields[1])
		if !ok || h < 0 {
			continue
		}
		out = append(out, core.DayEntry{Date: d, Hours: h})
	}
	return out
}
