package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"workhours/internal/core"
	"workhours/internal/log"
	"workhours/internal/services"
)

// respondChanged answers a successful edit: the payload plus the dirty count
// as JSON, a worklog:changed trigger and a toast.
func (s *Server) respondChanged(w http.ResponseWriter, r *http.Request, message string, payload map[string]any) {
	dirty := len(s.session.Snapshot(r.Context()).Dirty)
	if payload == nil {
		payload = map[string]any{}
	}
	payload["message"] = message
	payload["dirty"] = dirty

	NewHTMXResponse().
		TriggerWorkLogChanged(dirty).
		TriggerSuccessNotification(message).
		JSON(payload).
		Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseMonthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	NewHTMXResponse().JSON(s.session.Overview(r.Context(), year, month)).Write(w)
}

// handleSetDay sets or clears the hours of one date. An empty or
// non-numeric value removes the entry.
func (s *Server) handleSetDay(w http.ResponseWriter, r *http.Request) {
	d, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	raw := fields["hours"]
	if err := s.session.SetHours(r.Context(), d, raw); err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}

	payload := map[string]any{"date": d}
	msg := "Removed " + d.String()
	if h, ok := core.ParseHoursInput(raw); ok {
		payload["hours"] = h
		msg = fmt.Sprintf("%s set to %s", d, core.FormatHours(h))
	}
	s.respondChanged(w, r, msg, payload)
}

// handleReload drops pending edits and reads the work log from the store
// again. It also leaves demo mode.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.session.Reload(ctx); err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	s.respondChanged(w, r, "Work log reloaded.", nil)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	res, err := s.session.Save(ctx)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	s.respondChanged(w, r, saveMessage(res), map[string]any{"result": res})
}

func saveMessage(res services.SaveResult) string {
	switch {
	case res.Demo:
		return "Demo mode: changes stay in this preview."
	case res.Upserted == 0 && res.Deleted == 0:
		return "Nothing to save."
	default:
		return fmt.Sprintf("Saved %d, removed %d.", res.Upserted, res.Deleted)
	}
}

func (s *Server) handleFillWeek(w http.ResponseWriter, r *http.Request) {
	n, err := s.session.FillMissingWeekdays(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	s.respondChanged(w, r, fmt.Sprintf("Filled %s with the target.", core.FormatDays(n)), map[string]any{"filled": n})
}

func (s *Server) handleClearWeek(w http.ResponseWriter, r *http.Request) {
	n, err := s.session.ClearCurrentWeek(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	s.respondChanged(w, r, fmt.Sprintf("Cleared %s.", core.FormatDays(n)), map[string]any{"cleared": n})
}

// handleAddSession adds a start/end session to today and saves it.
func (s *Server) handleAddSession(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	added, err := s.session.AddSession(ctx, fields["start"], fields["end"])
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	s.respondChanged(w, r, fmt.Sprintf("Added %s to today.", core.FormatHours(added)), map[string]any{"added": added})
}

func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	started, err := s.session.StartTimer(ctx)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	NewHTMXResponse().
		TriggerWorkLogChanged(len(s.session.Snapshot(ctx).Dirty)).
		TriggerSuccessNotification("Timer started.").
		JSON(map[string]any{"started_at": started}).
		Write(w)
}

func (s *Server) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	elapsed, err := s.session.StopTimer(ctx)
	if err != nil {
		s.writeError(w, r, log.OpUpsert, err)
		return
	}
	s.respondChanged(w, r, fmt.Sprintf("Timer stopped, added %s to today.", core.FormatHours(elapsed)), map[string]any{"added": elapsed})
}

// handleExport streams the CSV. It is rendered into a buffer first so an
// empty work log still gets a proper error status.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.session.ExportCSV(r.Context(), &buf); err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+services.ExportFilename+`"`)
	_, _ = w.Write(buf.Bytes())
}
