package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"workhours/internal/auth"
	"workhours/internal/core"
	"workhours/internal/log"
	"workhours/internal/middleware/ratelimit"
)

var errNoGrants = errors.New("unlock signing key unavailable")

// handleUnlock checks the password and hands this client a signed unlock
// cookie. Other clients stay locked.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, log.OpUnlock, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.session.Unlock(ctx, fields["password"]); err != nil {
		s.writeError(w, r, log.OpUnlock, err)
		return
	}
	if s.grants == nil {
		s.writeError(w, r, log.OpUnlock, errNoGrants)
		return
	}
	value, expires, err := s.grants.Issue()
	if err != nil {
		s.writeError(w, r, log.OpUnlock, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.UnlockCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(s.grants.TTL() / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	s.limiter.Reset(s.detector.ExtractClientIP(r))
	s.respondChanged(w, r, "Editing unlocked.", map[string]any{"unlocked": true})
}

// onUnlockLimited answers unlock attempts over the per-minute budget.
func (s *Server) onUnlockLimited(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Unlock attempts rate limited",
		log.FieldOperation, log.OpUnlock,
		log.FieldClientIP, s.detector.ExtractClientIP(r))

	JSONError(http.StatusTooManyRequests, "Too many unlock attempts. Try again later.").
		Header("Retry-After", strconv.Itoa(ratelimit.RetrySeconds(wait))).
		Write(w)
}

// handleLock drops the unlock cookie of this client.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.UnlockCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	s.respondChanged(w, r, "Editing locked.", map[string]any{"unlocked": false})
}

// withEditor marks requests carrying a valid unlock cookie.
func (s *Server) withEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(auth.UnlockCookie); err == nil && c.Value != "" && s.grants != nil {
			if err := s.grants.Check(c.Value); err == nil {
				r = r.WithContext(auth.WithEditor(r.Context()))
			} else {
				log.FromContext(r.Context()).DebugContext(r.Context(), "Ignoring unlock cookie",
					log.FieldOperation, log.OpUnlock, log.FieldError, err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	target, err := s.session.SetTarget(r.Context(), fields["target"])
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	s.respondChanged(w, r, "Daily target set to "+core.FormatHours(target)+".", map[string]any{"target": target})
}

// handleSetPreferences updates the fields present in the request.
// theme=toggle flips the current theme.
func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		s.writeError(w, r, log.OpSave, err)
		return
	}
	ctx := r.Context()

	if raw, ok := fields["exclude_current_week"]; ok {
		exclude, err := parseBoolField(raw)
		if err != nil {
			s.writeError(w, r, log.OpSave, err)
			return
		}
		if err := s.session.SetExcludeCurrentWeek(ctx, exclude); err != nil {
			s.writeError(w, r, log.OpSave, err)
			return
		}
	}

	if theme, ok := fields["theme"]; ok {
		if theme == "toggle" {
			_, err = s.session.ToggleTheme(ctx)
		} else {
			err = s.session.SetTheme(ctx, theme)
		}
		if err != nil {
			s.writeError(w, r, log.OpSave, err)
			return
		}
	}

	snap := s.session.Snapshot(ctx)
	p := snap.Prefs
	NewHTMXResponse().
		TriggerWorkLogChanged(len(snap.Dirty)).
		TriggerPreferencesChanged(p.Theme).
		JSON(map[string]any{
			"theme":                p.Theme,
			"exclude_current_week": p.ExcludeCurrentWeek,
			"daily_target":         p.DailyTarget,
		}).
		Write(w)
}

// handleDemo switches to the sample dataset. The real work log and pending
// edits are kept until handleExitDemo.
func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	if err := s.session.EnableDemo(r.Context()); err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	NewHTMXResponse().
		TriggerWorkLogChanged(0).
		TriggerNotification(NotificationInfo, "Demo mode: sample data, nothing is saved.", 5000).
		JSON(map[string]any{"demo": true}).
		Write(w)
}

func (s *Server) handleExitDemo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.session.ExitDemo(ctx); err != nil {
		s.writeError(w, r, log.OpLoad, err)
		return
	}
	s.respondChanged(w, r, "Back to the real work log.", map[string]any{"demo": false})
}
