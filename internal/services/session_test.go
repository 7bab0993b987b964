package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"workhours/internal/auth"
	"workhours/internal/core"
	"workhours/internal/prefs"
	"workhours/internal/sheets/memory"
)

type fakeVerifier struct {
	password string
	err      error
}

func (f fakeVerifier) VerifyPassword(_ context.Context, pw string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return pw == f.password, nil
}

// flakyStore wraps the memory store and fails on demand.
type flakyStore struct {
	*memory.Store
	queryErr  error
	upsertErr error
	deleteErr error
	upserts   [][]core.DayEntry
	deletes   [][]core.Date
}

func (f *flakyStore) QueryAll(ctx context.Context) ([]core.DayEntry, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Store.QueryAll(ctx)
}

func (f *flakyStore) Upsert(ctx context.Context, entries []core.DayEntry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, entries)
	return f.Store.Upsert(ctx, entries)
}

func (f *flakyStore) Delete(ctx context.Context, dates []core.Date) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, dates)
	return f.Store.Delete(ctx, dates)
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func (c *stepClock) Today() core.Date { return core.DateOf(c.t) }

func (c *stepClock) advance(by time.Duration) { c.t = c.t.Add(by) }

// Wednesday of the week starting 2024-06-10.
var wednesday = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

func d(s string) core.Date { return core.MustParseDate(s) }

// editor is the context of a client holding a verified unlock.
var editor = auth.WithEditor(context.Background())

func newTestSession(t *testing.T, entries ...core.DayEntry) (*Session, *flakyStore, *stepClock, *prefs.MemoryStore) {
	t.Helper()
	store := &flakyStore{Store: memory.New(entries)}
	clock := &stepClock{t: wednesday}
	ps := prefs.NewMemoryStore(prefs.Defaults(4))
	s := NewSession(SessionConfig{
		Store:    store,
		Verifier: fakeVerifier{password: "open sesame"},
		Prefs:    ps,
		Clock:    clock,
	})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s, store, clock, ps
}

func unlock(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Unlock(context.Background(), "open sesame"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
}

func TestSessionLoad(t *testing.T) {
	s, _, _, _ := newTestSession(t,
		core.DayEntry{Date: d("2024-06-10"), Hours: 4.5},
		core.DayEntry{Date: d("2024-06-11"), Hours: 3.5},
	)
	snap := s.Snapshot(context.Background())
	if !snap.Ready || snap.Demo {
		t.Fatalf("expected ready non-demo session, got %+v", snap)
	}
	if len(snap.Days) != 2 || snap.Days[d("2024-06-10")] != 4.5 {
		t.Fatalf("unexpected days %v", snap.Days)
	}
	if snap.CanEdit {
		t.Fatalf("editing should start locked")
	}
}

func TestSessionLoadFailureEntersDemo(t *testing.T) {
	store := &flakyStore{Store: memory.New(nil), queryErr: errors.New("connection refused")}
	s := NewSession(SessionConfig{Store: store, Clock: &stepClock{t: wednesday}})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load should recover, got %v", err)
	}

	anon := context.Background()
	snap := s.Snapshot(anon)
	if !snap.Demo || !snap.Ready || !snap.CanEdit {
		t.Fatalf("expected editable demo session, got %+v", snap)
	}
	if len(snap.Days) != 15 {
		t.Fatalf("expected sample dataset of 15 days, got %d", len(snap.Days))
	}
	if !strings.Contains(snap.DemoReason, "unreachable") {
		t.Fatalf("unexpected demo reason %q", snap.DemoReason)
	}

	if err := s.SetHours(anon, d("2024-06-12"), "9"); err != nil {
		t.Fatalf("set hours in demo: %v", err)
	}
	res, err := s.Save(anon)
	if err != nil || !res.Demo || res.Remaining != 0 {
		t.Fatalf("demo save: %+v %v", res, err)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("demo save reached the store: %v", store.upserts)
	}
}

func TestSessionRetryLoadAfterOutage(t *testing.T) {
	store := &flakyStore{
		Store:    memory.New([]core.DayEntry{{Date: d("2024-06-10"), Hours: 5}}),
		queryErr: errors.New("connection refused"),
	}
	ps := prefs.NewMemoryStore(prefs.Defaults(6))
	s := NewSession(SessionConfig{Store: store, Prefs: ps, Clock: &stepClock{t: wednesday}})
	_ = s.Load(context.Background())
	anon := context.Background()

	// Changes made on the sample data stay out of the real preferences.
	if _, err := s.SetTarget(anon, "2"); err != nil {
		t.Fatalf("demo target: %v", err)
	}
	if p, _ := ps.Load(anon); p.DailyTarget != 6 {
		t.Fatalf("demo target persisted: %v", p.DailyTarget)
	}

	if ok, err := s.RetryLoad(anon); ok || err == nil {
		t.Fatalf("retry during outage: %v %v", ok, err)
	}
	if !s.Snapshot(anon).Demo {
		t.Fatal("failed retry left demo mode")
	}

	store.queryErr = nil
	ok, err := s.RetryLoad(anon)
	if err != nil || !ok {
		t.Fatalf("retry after recovery: %v %v", ok, err)
	}
	snap := s.Snapshot(anon)
	if snap.Demo || !snap.Ready || snap.CanEdit {
		t.Fatalf("expected real locked session, got %+v", snap)
	}
	if len(snap.Days) != 1 || snap.Days[d("2024-06-10")] != 5 {
		t.Fatalf("real work log not loaded: %v", snap.Days)
	}
	if snap.Prefs.DailyTarget != 6 {
		t.Fatalf("demo target leaked into the real session: %v", snap.Prefs.DailyTarget)
	}

	if ok, err := s.RetryLoad(anon); ok || err != nil {
		t.Fatalf("retry on a loaded session should do nothing: %v %v", ok, err)
	}
}

func TestSessionRetryLoadIgnoresRequestedDemo(t *testing.T) {
	store := &flakyStore{Store: memory.New([]core.DayEntry{{Date: d("2024-06-10"), Hours: 5}})}
	s := NewSession(SessionConfig{Store: store, Clock: &stepClock{t: wednesday}, Demo: true})
	_ = s.Load(context.Background())

	if ok, _ := s.RetryLoad(context.Background()); ok {
		t.Fatal("requested demo mode must not be left by a retry")
	}
	if err := s.ExitDemo(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous exit: %v", err)
	}
	if err := s.ExitDemo(editor); err != nil {
		t.Fatalf("exit demo: %v", err)
	}
	if snap := s.Snapshot(editor); snap.Demo || len(snap.Days) != 1 {
		t.Fatalf("expected the stored work log, got %+v", snap)
	}
}

func TestSessionDemoKeepsRealEdits(t *testing.T) {
	s, store, _, ps := newTestSession(t, core.DayEntry{Date: d("2024-06-10"), Hours: 5})
	anon := context.Background()

	if err := s.SetHours(editor, d("2024-06-11"), "6"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnableDemo(anon); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous demo switch: %v", err)
	}
	if snap := s.Snapshot(anon); snap.Demo || len(snap.Dirty) != 1 {
		t.Fatalf("locked demo request changed the session: %+v", snap)
	}

	if err := s.EnableDemo(editor); err != nil {
		t.Fatalf("enable demo: %v", err)
	}
	if err := s.SetHours(anon, d("2024-06-12"), "9"); err != nil {
		t.Fatalf("demo edit: %v", err)
	}
	if err := s.SetExcludeCurrentWeek(anon, true); err != nil {
		t.Fatalf("demo preference: %v", err)
	}
	if p, _ := ps.Load(anon); p.ExcludeCurrentWeek {
		t.Fatal("demo preference persisted")
	}

	if err := s.ExitDemo(editor); err != nil {
		t.Fatalf("exit demo: %v", err)
	}
	snap := s.Snapshot(editor)
	if snap.Demo || snap.Prefs.ExcludeCurrentWeek {
		t.Fatalf("demo state leaked: %+v", snap)
	}
	if len(snap.Dirty) != 1 || snap.Days[d("2024-06-11")] != 6 || snap.Days.Has(d("2024-06-12")) {
		t.Fatalf("real edits not restored: days=%v dirty=%v", snap.Days, snap.Dirty)
	}

	if _, err := s.Save(editor); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("store has %d days, want 2", store.Len())
	}
}

func TestSessionReload(t *testing.T) {
	s, store, _, _ := newTestSession(t, core.DayEntry{Date: d("2024-06-10"), Hours: 5})
	_ = s.SetHours(editor, d("2024-06-11"), "6")

	if err := s.Reload(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous reload: %v", err)
	}

	store.queryErr = errors.New("timeout")
	if err := s.Reload(editor); err == nil {
		t.Fatal("expected reload error")
	}
	if snap := s.Snapshot(editor); snap.Demo || len(snap.Dirty) != 1 {
		t.Fatalf("failed reload changed the session: %+v", snap)
	}

	store.queryErr = nil
	if err := s.Reload(editor); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if snap := s.Snapshot(editor); len(snap.Dirty) != 0 || snap.Days.Has(d("2024-06-11")) {
		t.Fatalf("reload kept pending edits: %+v", snap)
	}
}

func TestSessionUnlock(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	anon := context.Background()

	if err := s.SetHours(anon, d("2024-06-10"), "4"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := s.Unlock(anon, ""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if err := s.Unlock(anon, "guess"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}

	unlock(t, s)
	// A verified password does not unlock other callers.
	if err := s.SetHours(anon, d("2024-06-10"), "4"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked for another caller, got %v", err)
	}
	if s.Snapshot(anon).CanEdit {
		t.Fatal("anonymous snapshot reports editing")
	}
	if err := s.SetHours(editor, d("2024-06-10"), "4"); err != nil {
		t.Fatalf("set hours as editor: %v", err)
	}
	if snap := s.Snapshot(editor); !snap.CanEdit || !snap.Editor {
		t.Fatalf("editor snapshot = %+v", snap)
	}
}

func TestSessionUnlockVerifierError(t *testing.T) {
	s := NewSession(SessionConfig{
		Store:    memory.New(nil),
		Verifier: fakeVerifier{err: errors.New("rpc down")},
		Clock:    &stepClock{t: wednesday},
	})
	err := s.Unlock(context.Background(), "x")
	if err == nil || errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected wrapped verifier error, got %v", err)
	}
}

func TestSessionSetHoursInput(t *testing.T) {
	s, _, _, _ := newTestSession(t, core.DayEntry{Date: d("2024-06-10"), Hours: 4})

	tests := []struct {
		name    string
		raw     string
		want    float64
		present bool
		err     error
	}{
		{"number", "4.5", 4.5, true, nil},
		{"comma decimal", "3,25", 3.25, true, nil},
		{"empty removes", "", 0, false, nil},
		{"garbage removes", "abc", 0, false, nil},
		{"negative rejected", "-1", 4, true, core.ErrNegativeHours},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SetHours(editor, d("2024-06-10"), "4"); err != nil {
				t.Fatal(err)
			}
			err := s.SetHours(editor, d("2024-06-10"), tt.raw)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			h, ok := s.Snapshot(editor).Days.Hours(d("2024-06-10"))
			if ok != tt.present || (ok && h != tt.want) {
				t.Fatalf("got %v/%v, want %v/%v", h, ok, tt.want, tt.present)
			}
		})
	}
}

func TestSessionSaveSplitsUpsertsAndDeletes(t *testing.T) {
	s, store, _, _ := newTestSession(t,
		core.DayEntry{Date: d("2024-06-10"), Hours: 4},
		core.DayEntry{Date: d("2024-06-11"), Hours: 4},
	)

	_ = s.SetHours(editor, d("2024-06-11"), "")
	_ = s.SetHours(editor, d("2024-06-12"), "6")
	_ = s.SetHours(editor, d("2024-06-13"), "2")

	res, err := s.Save(editor)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Upserted != 2 || res.Deleted != 1 || res.Remaining != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(store.upserts) != 1 || len(store.deletes) != 1 {
		t.Fatalf("expected one batch each, got %d upserts %d deletes", len(store.upserts), len(store.deletes))
	}
	if store.deletes[0][0] != d("2024-06-11") {
		t.Fatalf("wrong delete batch %v", store.deletes[0])
	}

	entries, _ := store.QueryAll(context.Background())
	if len(entries) != 3 {
		t.Fatalf("expected 3 stored days, got %v", entries)
	}

	res, err = s.Save(editor)
	if err != nil || res.Upserted != 0 || res.Deleted != 0 {
		t.Fatalf("second save should be empty: %+v %v", res, err)
	}
}

func TestSessionSaveFailureKeepsState(t *testing.T) {
	s, store, _, _ := newTestSession(t, core.DayEntry{Date: d("2024-06-10"), Hours: 4})

	_ = s.SetHours(editor, d("2024-06-10"), "")
	_ = s.SetHours(editor, d("2024-06-11"), "5")

	store.upsertErr = errors.New("network down")
	if _, err := s.Save(editor); err == nil {
		t.Fatalf("expected save error")
	}
	snap := s.Snapshot(editor)
	if len(snap.Dirty) != 2 {
		t.Fatalf("dirty set changed after failed save: %v", snap.Dirty)
	}
	if snap.Days.Has(d("2024-06-10")) || snap.Days[d("2024-06-11")] != 5 {
		t.Fatalf("days changed after failed save: %v", snap.Days)
	}

	store.upsertErr = nil
	store.deleteErr = errors.New("timeout")
	if _, err := s.Save(editor); err == nil {
		t.Fatalf("expected delete error")
	}
	if len(s.Snapshot(editor).Dirty) != 2 {
		t.Fatalf("dirty set changed after failed delete")
	}

	store.deleteErr = nil
	res, err := s.Save(editor)
	if err != nil || res.Remaining != 0 {
		t.Fatalf("retry: %+v %v", res, err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored day after retry, got %d", store.Len())
	}
}

func TestSessionFillAndClearWeek(t *testing.T) {
	s, _, _, _ := newTestSession(t, core.DayEntry{Date: d("2024-06-11"), Hours: 2})

	n, err := s.FillMissingWeekdays(editor)
	if err != nil || n != 4 {
		t.Fatalf("fill: %d %v", n, err)
	}
	snap := s.Snapshot(editor)
	if snap.Days[d("2024-06-11")] != 2 || snap.Days[d("2024-06-14")] != 4 {
		t.Fatalf("unexpected days after fill %v", snap.Days)
	}
	if snap.Days.Has(d("2024-06-15")) {
		t.Fatalf("weekend must not be filled")
	}
	if n, _ := s.FillMissingWeekdays(editor); n != 0 {
		t.Fatalf("second fill should do nothing, filled %d", n)
	}

	n, err = s.ClearCurrentWeek(editor)
	if err != nil || n != 5 {
		t.Fatalf("clear: %d %v", n, err)
	}
	if len(s.Snapshot(editor).Days) != 0 {
		t.Fatalf("week not cleared")
	}
}

func TestSessionAddSession(t *testing.T) {
	s, store, _, _ := newTestSession(t, core.DayEntry{Date: d("2024-06-12"), Hours: 1})

	dur, err := s.AddSession(editor, "22:00", "01:30")
	if err != nil {
		t.Fatalf("add session: %v", err)
	}
	if dur != 3.5 {
		t.Fatalf("expected 3.5h across midnight, got %v", dur)
	}
	entries, _ := store.QueryAll(context.Background())
	if len(entries) != 1 || entries[0].Hours != 4.5 {
		t.Fatalf("session not saved onto today: %v", entries)
	}

	if _, err := s.AddSession(editor, "9am", "10:00"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessionTimer(t *testing.T) {
	s, store, clock, ps := newTestSession(t)
	ctx := editor

	if _, err := s.StopTimer(ctx); !errors.Is(err, ErrTimerNotRunning) {
		t.Fatalf("expected ErrTimerNotRunning, got %v", err)
	}
	if _, err := s.StartTimer(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.StartTimer(ctx); !errors.Is(err, ErrTimerRunning) {
		t.Fatalf("expected ErrTimerRunning, got %v", err)
	}
	if p, _ := ps.Load(ctx); p.TimerStartedAt == nil {
		t.Fatalf("timer start not persisted")
	}

	clock.advance(90 * time.Minute)
	elapsed, err := s.StopTimer(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed != 1.5 {
		t.Fatalf("expected 1.5h, got %v", elapsed)
	}
	entries, _ := store.QueryAll(ctx)
	if len(entries) != 1 || entries[0].Date != d("2024-06-12") || entries[0].Hours != 1.5 {
		t.Fatalf("timer hours not saved: %v", entries)
	}
	if p, _ := ps.Load(ctx); p.TimerStartedAt != nil {
		t.Fatalf("timer not cleared")
	}
}

func TestSessionPreferences(t *testing.T) {
	s, _, _, ps := newTestSession(t)
	ctx := editor

	if _, err := s.SetTarget(context.Background(), "0"); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous target change: %v", err)
	}
	if err := s.SetTheme(context.Background(), prefs.ThemeDark); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous theme change: %v", err)
	}
	if err := s.SetExcludeCurrentWeek(context.Background(), true); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous exclude change: %v", err)
	}

	if v, err := s.SetTarget(ctx, "-2"); err != nil || v != 0 {
		t.Fatalf("negative target: %v %v", v, err)
	}
	if v, _ := s.SetTarget(ctx, "junk"); v != core.DefaultTarget {
		t.Fatalf("junk target should fall back to default, got %v", v)
	}
	if v, _ := s.SetTarget(ctx, "7,5"); v != 7.5 || s.Target() != 7.5 {
		t.Fatalf("target not applied: %v", v)
	}

	theme, err := s.ToggleTheme(ctx)
	if err != nil || theme != prefs.ThemeDark {
		t.Fatalf("toggle: %q %v", theme, err)
	}
	if err := s.SetExcludeCurrentWeek(ctx, true); err != nil {
		t.Fatal(err)
	}

	p, _ := ps.Load(ctx)
	if p.DailyTarget != 7.5 || p.Theme != prefs.ThemeDark || !p.ExcludeCurrentWeek {
		t.Fatalf("preferences not persisted: %+v", p)
	}
}

func TestSessionOverviewScenario(t *testing.T) {
	s, _, _, _ := newTestSession(t,
		core.DayEntry{Date: d("2024-06-10"), Hours: 4.5},
		core.DayEntry{Date: d("2024-06-11"), Hours: 3.5},
		core.DayEntry{Date: d("2024-06-12"), Hours: 4},
		core.DayEntry{Date: d("2024-06-13"), Hours: 4},
		core.DayEntry{Date: d("2024-06-14"), Hours: 4},
		core.DayEntry{Date: d("2024-06-03"), Hours: 6},
	)

	ov := s.Overview(editor, 0, 0)
	if ov.Week.WeekStart != d("2024-06-10") || ov.Week.TotalHours != 20 || ov.Week.TotalDelta != 0 {
		t.Fatalf("unexpected week %+v", ov.Week.WeekSummary)
	}
	if ov.History.Bank != 2 || ov.BankLabel != "+2h in bank" {
		t.Fatalf("unexpected bank %v %q", ov.History.Bank, ov.BankLabel)
	}
	if ov.Month.Key() != "2024-06" || ov.Progress.Percent != 100 {
		t.Fatalf("unexpected month/progress %s %+v", ov.Month.Key(), ov.Progress)
	}

	if err := s.SetExcludeCurrentWeek(editor, true); err != nil {
		t.Fatal(err)
	}
	ov = s.Overview(editor, 2024, 5)
	if len(ov.History.Weeks) != 1 || ov.History.Bank != 2 {
		t.Fatalf("excluding current week: %+v", ov.History)
	}
	if ov.Month.Key() != "2024-05" {
		t.Fatalf("explicit month ignored: %s", ov.Month.Key())
	}
}

func TestExportCSV(t *testing.T) {
	s, _, _, _ := newTestSession(t,
		core.DayEntry{Date: d("2024-06-11"), Hours: 2.25},
		core.DayEntry{Date: d("2024-06-10"), Hours: 4},
		core.DayEntry{Date: d("2024-06-15"), Hours: 5.5},
	)

	var buf bytes.Buffer
	if err := s.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	want := "date,hours,delta_vs_target\n" +
		"2024-06-10,4h,0h\n" +
		"2024-06-11,2h 15m,-1h 45m\n" +
		"2024-06-15,5h 30m,+1h 30m\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}

	if err := WriteCSV(&buf, core.DaySet{}, 4); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}
