package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"workhours/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether templates parsed and the work log finished
// loading. Demo mode is ready: the dashboard is usable, only writes are inert.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	snap := s.session.Snapshot(r.Context())
	switch {
	case !snap.Ready:
		checks["work_log"] = "loading"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	case snap.Demo:
		checks["work_log"] = "demo"
	default:
		checks["work_log"] = "ok"
	}
	checks["dirty_days"] = len(snap.Dirty)

	limits := s.limiter.GetMetrics()
	checks["unlock_limiter"] = map[string]any{
		"tracked_clients": limits.ClientCount,
		"status":          "ok",
	}

	NewHTMXResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()
	snap := s.session.Snapshot(r.Context())

	demo := 0
	if snap.Demo {
		demo = 1
	}

	var b bytes.Buffer
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("unlock_rejected_total", "counter", "Unlock attempts rejected by the rate limiter", limitMetrics.Rejected)
	metric("unlock_tracked_clients", "gauge", "Clients tracked by the unlock limiter", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("spoofed_forwarding_total", "counter", "Forwarding headers sent by untrusted peers", securityMetrics.SpoofedForwarding)
	metric("worklog_days", "gauge", "Days held in the work log", len(snap.Days))
	metric("worklog_dirty_days", "gauge", "Days edited since the last save", len(snap.Dirty))
	metric("worklog_demo_mode", "gauge", "1 when the demo dataset is shown", demo)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(s.now().Sub(s.started).Seconds()))

	_, _ = w.Write(b.Bytes())
}

// retryLoad gives the store another chance when an outage left the dashboard
// on the sample dataset.
func (s *Server) retryLoad(r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), retryLoadTimeout)
	defer cancel()
	if ok, _ := s.session.RetryLoad(ctx); ok {
		s.logger.InfoContext(ctx, "Work log reachable again, demo mode left", log.FieldOperation, log.OpLoad)
	}
}

// handleIndex renders the dashboard. ?partial=1 renders only the dashboard
// body, which htmx swaps in after worklog:changed.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldOperation, log.OpRender)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	year, month, err := parseMonthParam(r)
	if err != nil {
		s.writeError(w, r, log.OpRender, err)
		return
	}
	s.retryLoad(r)
	data := s.session.Overview(r.Context(), year, month)

	name := "index.html"
	if r.URL.Query().Get("partial") == "1" {
		name = "dashboard"
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template render failed",
			log.FieldOperation, log.OpRender, log.FieldError, err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}
