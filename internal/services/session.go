package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"workhours/internal/auth"
	"workhours/internal/core"
	"workhours/internal/log"
	"workhours/internal/prefs"
	"workhours/internal/sheets"
)

const (
	demoReasonRequested   = "Demo mode: preview without touching real data."
	demoReasonUnreachable = "Demo mode: database unreachable, so a safe preview is loaded."
)

// SessionConfig wires the collaborators of a Session.
type SessionConfig struct {
	Store    sheets.WorkLog
	Verifier sheets.PasswordVerifier
	Prefs    prefs.Store
	Clock    core.Clock
	Logger   *log.Logger
	// Demo starts the session on the sample dataset instead of the store.
	Demo bool
}

// Session is the single logical editing session. It owns the in-memory work
// log, the set of dates edited since the last save and the preferences.
// Views are computed from cloned snapshots, so callers never share the
// underlying DaySet.
//
// Edit permission belongs to the caller, not the session: mutating methods
// require a context marked with auth.WithEditor, except in demo mode where
// nothing reaches the store.
type Session struct {
	mu sync.Mutex

	store      sheets.WorkLog
	verifier   sheets.PasswordVerifier
	prefsStore prefs.Store
	clock      core.Clock
	logger     *log.Logger

	days       core.DaySet
	dirty      map[core.Date]struct{}
	prefs      prefs.Preferences
	ready      bool
	demo       bool
	demoReason string
	startDemo  bool
	// stash holds the real state while demo mode is shown.
	stash *stash
}

type stash struct {
	days  core.DaySet
	dirty map[core.Date]struct{}
	prefs prefs.Preferences
	// loaded is false when demo mode was entered before the store answered.
	loaded bool
}

// SaveResult reports what a save sent to the store.
type SaveResult struct {
	Upserted  int  `json:"upserted"`
	Deleted   int  `json:"deleted"`
	Remaining int  `json:"remaining"`
	Demo      bool `json:"demo"`
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.NewMemoryStore(prefs.Defaults(core.DefaultTarget))
	}
	return &Session{
		store:      cfg.Store,
		verifier:   cfg.Verifier,
		prefsStore: cfg.Prefs,
		clock:      cfg.Clock,
		logger:     cfg.Logger.WithComponent(log.ComponentSession),
		days:       core.DaySet{},
		dirty:      map[core.Date]struct{}{},
		prefs:      prefs.Defaults(core.DefaultTarget),
		startDemo:  cfg.Demo,
	}
}

// Load reads the preferences and the whole work log. A store failure is not
// returned: the session switches to the sample dataset instead and
// RetryLoad can bring the real work log back later.
func (s *Session) Load(ctx context.Context) error {
	p, err := s.prefsStore.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to load preferences, using defaults", log.FieldError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p

	if s.startDemo || s.store == nil {
		s.enterDemoLocked(demoReasonRequested)
		return nil
	}
	if err := s.loadLocked(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to load work log, entering demo mode",
			log.FieldOperation, log.OpLoad, log.FieldError, err)
		s.enterDemoLocked(demoReasonUnreachable)
	}
	return nil
}

// Reload replaces the in-memory work log with the store content, dropping
// pending edits and leaving demo mode. On failure nothing changes.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !auth.IsEditor(ctx) {
		return ErrLocked
	}
	return s.loadLocked(ctx)
}

// RetryLoad tries the store again when a load failure left the session on
// the sample dataset. It reports whether the real work log is back. Nothing
// real is at stake in that state, so no unlock is needed.
func (s *Session) RetryLoad(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.demo || s.demoReason != demoReasonUnreachable {
		return false, nil
	}
	if err := s.loadLocked(ctx); err != nil {
		s.logger.DebugContext(ctx, "Work log still unreachable", log.FieldOperation, log.OpLoad, log.FieldError, err)
		return false, err
	}
	return true, nil
}

// RetryLoadEvery calls RetryLoad on every tick until ctx is cancelled.
func (s *Session) RetryLoadEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tctx, cancel := context.WithTimeout(ctx, interval)
			_, _ = s.RetryLoad(tctx)
			cancel()
		}
	}
}

// loadLocked queries the store and, on success, makes its content the work
// log. Leaving demo mode restores the preferences held before it.
func (s *Session) loadLocked(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("load work log: %w", ErrNoStore)
	}
	entries, err := s.store.QueryAll(ctx)
	if err != nil {
		return fmt.Errorf("load work log: %w", err)
	}

	if s.demo {
		s.leaveDemoLocked()
	}
	s.days = core.NewDaySet(entries)
	clear(s.dirty)
	s.ready = true
	s.logger.InfoContext(ctx, "Work log loaded",
		log.FieldOperation, log.OpLoad, log.FieldEntries, len(entries))
	return nil
}

// EnableDemo swaps in the sample dataset. The real work log, pending edits
// and preferences are kept aside until ExitDemo.
func (s *Session) EnableDemo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !auth.IsEditor(ctx) {
		return ErrLocked
	}
	s.enterDemoLocked(demoReasonRequested)
	return nil
}

// ExitDemo brings back the state kept aside by EnableDemo. When demo mode
// started before anything was loaded, the work log is read from the store.
func (s *Session) ExitDemo(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !auth.IsEditor(ctx) {
		return ErrLocked
	}
	if !s.demo {
		return nil
	}
	if s.stash == nil || !s.stash.loaded {
		return s.loadLocked(ctx)
	}

	st := s.stash
	s.leaveDemoLocked()
	s.days = st.days
	s.dirty = st.dirty
	s.ready = true
	s.logger.InfoContext(ctx, "Demo mode left", log.FieldDirtyCount, len(s.dirty))
	return nil
}

func (s *Session) enterDemoLocked(reason string) {
	if !s.demo {
		s.stash = &stash{days: s.days, dirty: s.dirty, prefs: s.prefs, loaded: s.ready}
	}
	s.demo = true
	s.demoReason = reason
	s.days = core.SampleDataset(s.clock.Today(), s.prefs.DailyTarget)
	s.dirty = map[core.Date]struct{}{}
	s.ready = true
	s.logger.Info("Demo mode enabled", log.FieldDemoMode, true, "reason", reason)
}

// leaveDemoLocked drops the sandbox and restores the real preferences.
func (s *Session) leaveDemoLocked() {
	if s.stash != nil {
		s.prefs = s.stash.prefs
	}
	s.stash = nil
	s.demo = false
	s.demoReason = ""
	s.dirty = map[core.Date]struct{}{}
}

// Ready reports whether the work log has been loaded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Target returns the current daily target in hours.
func (s *Session) Target() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.DailyTarget
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Days       core.DaySet
	Dirty      []core.Date
	Prefs      prefs.Preferences
	Today      core.Date
	Now        time.Time
	Ready      bool
	Demo       bool
	DemoReason string
	// Editor is true when the caller holds a verified unlock.
	Editor  bool
	CanEdit bool
}

// Snapshot copies the session state as seen by the caller of ctx.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Days:       s.days.Clone(),
		Dirty:      s.dirtyDatesLocked(),
		Prefs:      s.prefs,
		Today:      s.clock.Today(),
		Now:        s.clock.Now(),
		Ready:      s.ready,
		Demo:       s.demo,
		DemoReason: s.demoReason,
		Editor:     auth.IsEditor(ctx),
		CanEdit:    s.canEditLocked(ctx),
	}
}

// Overview computes every view of the given month. A zero month selects the
// current one.
func (s *Session) Overview(ctx context.Context, year, month int) Overview {
	return BuildOverview(s.Snapshot(ctx), year, month)
}

func (s *Session) canEditLocked(ctx context.Context) bool {
	return s.demo || auth.IsEditor(ctx)
}

func (s *Session) dirtyDatesLocked() []core.Date {
	out := make([]core.Date, 0, len(s.dirty))
	for d := range s.dirty {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b core.Date) int { return a.Compare(b.Time) })
	return out
}

func (s *Session) checkEditableLocked(ctx context.Context) error {
	if !s.canEditLocked(ctx) {
		return ErrLocked
	}
	if !s.ready {
		return ErrNotReady
	}
	return nil
}

// SetHours applies raw user input to a date. Empty or non-numeric input
// removes the entry.
func (s *Session) SetHours(ctx context.Context, d core.Date, raw string) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return err
	}

	hours, ok := core.ParseHoursInput(raw)
	if !ok {
		s.days.Delete(d)
	} else {
		if err := core.ValidateHours(hours); err != nil {
			return err
		}
		s.days.Set(d, hours)
	}
	s.dirty[d] = struct{}{}
	s.logger.Debug("Hours edited", log.FieldWorkDate, d.String(), log.FieldHours, hours, log.FieldDirtyCount, len(s.dirty))
	return nil
}

// FillMissingWeekdays sets the target on every current-week weekday without
// an entry and returns how many were filled.
func (s *Session) FillMissingWeekdays(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return 0, err
	}

	monday := s.clock.Today().Monday()
	filled := 0
	for i := 0; i < core.WorkDaysPerWeek; i++ {
		d := monday.AddDays(i)
		if s.days.Has(d) {
			continue
		}
		s.days.Set(d, s.prefs.DailyTarget)
		s.dirty[d] = struct{}{}
		filled++
	}
	return filled, nil
}

// ClearCurrentWeek removes every current-week weekday entry and returns how
// many were removed.
func (s *Session) ClearCurrentWeek(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return 0, err
	}

	monday := s.clock.Today().Monday()
	cleared := 0
	for i := 0; i < core.WorkDaysPerWeek; i++ {
		d := monday.AddDays(i)
		if !s.days.Has(d) {
			continue
		}
		s.days.Delete(d)
		s.dirty[d] = struct{}{}
		cleared++
	}
	return cleared, nil
}

// AddSession adds the duration between two HH:MM times to today and saves
// today right away.
func (s *Session) AddSession(ctx context.Context, start, end string) (float64, error) {
	dur, err := core.SessionDuration(start, end)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return 0, err
	}
	today := s.addToDayLocked(dur)
	if _, err := s.saveDatesLocked(ctx, []core.Date{today}); err != nil {
		return dur, err
	}
	return dur, nil
}

// StartTimer records the current time as the start of a running timer.
func (s *Session) StartTimer(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return time.Time{}, err
	}
	if s.prefs.TimerStartedAt != nil {
		return *s.prefs.TimerStartedAt, ErrTimerRunning
	}

	now := s.clock.Now()
	err := s.updatePrefsLocked(ctx, func(p *prefs.Preferences) { p.TimerStartedAt = &now })
	return now, err
}

// StopTimer adds the elapsed time to today and saves today.
func (s *Session) StopTimer(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return 0, err
	}
	if s.prefs.TimerStartedAt == nil {
		return 0, ErrTimerNotRunning
	}

	elapsed := core.ElapsedHours(*s.prefs.TimerStartedAt, s.clock.Now())
	if err := s.updatePrefsLocked(ctx, func(p *prefs.Preferences) { p.TimerStartedAt = nil }); err != nil {
		return 0, err
	}
	today := s.addToDayLocked(elapsed)
	if _, err := s.saveDatesLocked(ctx, []core.Date{today}); err != nil {
		return elapsed, err
	}
	return elapsed, nil
}

func (s *Session) addToDayLocked(hours float64) core.Date {
	today := s.clock.Today()
	prev, ok := s.days.Hours(today)
	if !ok || !core.Countable(prev) {
		prev = 0
	}
	s.days.Set(today, prev+hours)
	s.dirty[today] = struct{}{}
	return today
}

// Save flushes every dirty date to the store.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEditableLocked(ctx); err != nil {
		return SaveResult{}, err
	}
	return s.saveDatesLocked(ctx, s.dirtyDatesLocked())
}

// saveDatesLocked sends the given dates as one upsert batch and one delete
// batch. On failure the work log and the dirty set are left untouched so the
// save can be retried.
func (s *Session) saveDatesLocked(ctx context.Context, dates []core.Date) (SaveResult, error) {
	if s.demo {
		for _, d := range dates {
			delete(s.dirty, d)
		}
		return SaveResult{Remaining: len(s.dirty), Demo: true}, nil
	}

	var upserts []core.DayEntry
	var deletes []core.Date
	for _, d := range dates {
		if h, ok := s.days.Hours(d); ok {
			if core.Countable(h) {
				upserts = append(upserts, core.DayEntry{Date: d, Hours: h})
			}
			continue
		}
		deletes = append(deletes, d)
	}
	res := SaveResult{Upserted: len(upserts), Deleted: len(deletes)}
	if len(upserts) == 0 && len(deletes) == 0 {
		res.Remaining = len(s.dirty)
		return res, nil
	}

	if len(upserts) > 0 {
		if err := s.store.Upsert(ctx, upserts); err != nil {
			s.logger.ErrorContext(ctx, "Failed to upsert work days",
				log.FieldOperation, log.OpUpsert, log.FieldUpserts, len(upserts), log.FieldError, err)
			return SaveResult{Remaining: len(s.dirty)}, fmt.Errorf("save work log: %w", err)
		}
	}
	if len(deletes) > 0 {
		if err := s.store.Delete(ctx, deletes); err != nil {
			s.logger.ErrorContext(ctx, "Failed to delete work days",
				log.FieldOperation, log.OpDelete, log.FieldDeletes, len(deletes), log.FieldError, err)
			return SaveResult{Remaining: len(s.dirty)}, fmt.Errorf("delete from work log: %w", err)
		}
	}

	for _, d := range dates {
		delete(s.dirty, d)
	}
	res.Remaining = len(s.dirty)
	s.logger.InfoContext(ctx, "Work log saved",
		log.FieldOperation, log.OpSave, log.FieldUpserts, res.Upserted, log.FieldDeletes, res.Deleted)
	return res, nil
}

// Unlock checks the edit password server side. It keeps no state: the
// caller hands out whatever proves the unlock to the client.
func (s *Session) Unlock(ctx context.Context, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if s.verifier == nil {
		return fmt.Errorf("verify password: no verifier configured")
	}
	ok, err := s.verifier.VerifyPassword(ctx, password)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "Wrong edit password", log.FieldOperation, log.OpUnlock)
		return ErrWrongPassword
	}
	s.logger.InfoContext(ctx, "Editing unlocked", log.FieldOperation, log.OpUnlock)
	return nil
}

// SetTarget parses and stores a new daily target. Unusable input falls back
// to the default and negatives are clamped to zero.
func (s *Session) SetTarget(ctx context.Context, raw string) (float64, error) {
	target := core.ParseTarget(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canEditLocked(ctx) {
		return 0, ErrLocked
	}
	err := s.updatePrefsLocked(ctx, func(p *prefs.Preferences) { p.DailyTarget = target })
	return target, err
}

func (s *Session) SetExcludeCurrentWeek(ctx context.Context, exclude bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canEditLocked(ctx) {
		return ErrLocked
	}
	return s.updatePrefsLocked(ctx, func(p *prefs.Preferences) { p.ExcludeCurrentWeek = exclude })
}

func (s *Session) SetTheme(ctx context.Context, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canEditLocked(ctx) {
		return ErrLocked
	}
	return s.updatePrefsLocked(ctx, func(p *prefs.Preferences) { p.Theme = theme })
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Session) ToggleTheme(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canEditLocked(ctx) {
		return s.prefs.Theme, ErrLocked
	}
	next := s.prefs.ToggledTheme()
	err := s.updatePrefsLocked(ctx, func(p *prefs.Preferences) { p.Theme = next })
	return s.prefs.Theme, err
}

// updatePrefsLocked persists a modified copy and only adopts it once saved.
// In demo mode the copy is adopted without touching the file.
func (s *Session) updatePrefsLocked(ctx context.Context, mutate func(*prefs.Preferences)) error {
	next := s.prefs
	mutate(&next)
	next = next.Normalize()
	if s.demo {
		s.prefs = next
		return nil
	}
	if err := s.prefsStore.Save(ctx, next); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	s.prefs = next
	return nil
}
