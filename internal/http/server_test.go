package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"workhours/internal/auth"
	"workhours/internal/core"
	"workhours/internal/prefs"
	"workhours/internal/services"
	"workhours/internal/sheets/memory"
)

type fakeVerifier struct{ password string }

func (f fakeVerifier) VerifyPassword(_ context.Context, pw string) (bool, error) {
	return pw == f.password, nil
}

// failingStore wraps the memory store and fails calls on demand.
type failingStore struct {
	*memory.Store
	queryErr  error
	upsertErr error
}

func (f *failingStore) QueryAll(ctx context.Context) ([]core.DayEntry, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Store.QueryAll(ctx)
}

func (f *failingStore) Upsert(ctx context.Context, entries []core.DayEntry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Store.Upsert(ctx, entries)
}

// Wednesday of the week starting 2024-06-10.
var wednesday = time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)

// testBase is where the cookie jar files cookies from recorded responses.
var testBase = &url.URL{Scheme: "http", Host: "example.com", Path: "/"}

const testSessionSecret = "test-session-secret-0123456789ab"

type testServer struct {
	*Server
	store *failingStore
	jar   *cookiejar.Jar
}

func newTestServer(t *testing.T, opts Options, entries ...core.DayEntry) testServer {
	t.Helper()
	return newTestServerWith(t, opts, &failingStore{Store: memory.New(entries)})
}

func newTestServerWith(t *testing.T, opts Options, store *failingStore) testServer {
	t.Helper()
	session := services.NewSession(services.SessionConfig{
		Store:    store,
		Verifier: fakeVerifier{password: "open sesame"},
		Prefs:    prefs.NewMemoryStore(prefs.Defaults(4)),
		Clock:    core.FixedClock{T: wednesday},
	})
	if err := session.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	opts.Addr = ":0"
	opts.Session = session
	opts.Now = func() time.Time { return wednesday }
	if opts.Grants == nil {
		grants, err := auth.NewGrants(testSessionSecret, time.Hour)
		if err != nil {
			t.Fatalf("grants: %v", err)
		}
		opts.Grants = grants
	}
	srv := NewServer(opts)
	t.Cleanup(srv.limiter.Stop)
	return testServer{Server: srv, store: store, jar: newJar(t)}
}

func newJar(t *testing.T) *cookiejar.Jar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return jar
}

// anonymous returns a second client of the same server with no cookies.
func (ts testServer) anonymous(t *testing.T) testServer {
	t.Helper()
	ts.jar = newJar(t)
	return ts
}

// do sends body as JSON when it looks like an object and as a form otherwise.
func (ts testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	switch {
	case strings.HasPrefix(body, "{"):
		req.Header.Set("Content-Type", "application/json")
	case body != "":
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range ts.jar.Cookies(testBase) {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	ts.jar.SetCookies(testBase, rr.Result().Cookies())
	return rr
}

func (ts testServer) unlock(t *testing.T) {
	t.Helper()
	if rr := ts.do(http.MethodPost, "/api/unlock", "password=open+sesame"); rr.Code != http.StatusOK {
		t.Fatalf("unlock status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t, Options{}, core.DayEntry{Date: core.NewDate(2024, 6, 10), Hours: 5})

	rr := ts.do(http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Week of 2024-06-10", `value="5"`, "2024-06"} {
		if !strings.Contains(body, want) {
			t.Fatalf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("security headers not applied")
	}
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Fatalf("request id header = %q", rr.Header().Get("X-Request-ID"))
	}

	rr = ts.do(http.MethodGet, "/?partial=1", "")
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "<html") {
		t.Fatalf("partial status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `id="dashboard"`) {
		t.Fatalf("partial missing dashboard wrapper")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/static/app.css"} {
		rr := ts.do(http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if !strings.Contains(ts.do(http.MethodGet, "/metrics", "").Body.String(), "worklog_days 1") {
		t.Fatalf("metrics missing work log gauge")
	}
}

func TestTemplateParseErrorPath(t *testing.T) {
	ts := newTestServer(t, Options{Templates: fstest.MapFS{}})

	if rr := ts.do(http.MethodGet, "/", ""); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing templates, got %d", rr.Code)
	}
	if rr := ts.do(http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from readyz, got %d", rr.Code)
	}
	// The API does not depend on templates.
	if rr := ts.do(http.MethodGet, "/api/overview", ""); rr.Code != http.StatusOK {
		t.Fatalf("overview status=%d", rr.Code)
	}
}

func TestEditRequiresUnlock(t *testing.T) {
	ts := newTestServer(t, Options{})

	if rr := ts.do(http.MethodPut, "/api/days/2024-06-10", "hours=5"); rr.Code != http.StatusForbidden {
		t.Fatalf("locked edit status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/unlock", "password=nope"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/unlock", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty password status=%d", rr.Code)
	}
	ts.unlock(t)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"form hours", "/api/days/2024-06-10", "hours=5", http.StatusOK},
		{"json hours", "/api/days/2024-06-11", `{"hours": 3.5}`, http.StatusOK},
		{"comma decimal", "/api/days/2024-06-12", "hours=2,5", http.StatusOK},
		{"negative", "/api/days/2024-06-13", "hours=-1", http.StatusUnprocessableEntity},
		{"bad date", "/api/days/2024-13-01", "hours=1", http.StatusUnprocessableEntity},
		{"bad json", "/api/days/2024-06-13", `{"hours":`, http.StatusBadRequest},
		{"clear", "/api/days/2024-06-12", "hours=", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPut, tt.target, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want == http.StatusOK && !strings.Contains(rr.Header().Get("HX-Trigger"), EventWorkLogChanged) {
				t.Fatalf("missing %s trigger: %s", EventWorkLogChanged, rr.Header().Get("HX-Trigger"))
			}
		})
	}

	rr := ts.do(http.MethodPost, "/api/save", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["dirty"]; got != float64(0) {
		t.Fatalf("dirty after save = %v", got)
	}
	if ts.store.Len() != 2 {
		t.Fatalf("store has %d entries, want 2", ts.store.Len())
	}

	if rr := ts.do(http.MethodPost, "/api/lock", ""); rr.Code != http.StatusOK {
		t.Fatalf("lock status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/save", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("save after lock status=%d", rr.Code)
	}
}

func TestSaveFailureKeepsEdits(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.unlock(t)
	ts.store.upsertErr = errors.New("sheet quota exceeded")

	ts.do(http.MethodPut, "/api/days/2024-06-10", "hours=8")
	rr := ts.do(http.MethodPost, "/api/save", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("save status=%d", rr.Code)
	}
	if msg := decode(t, rr)["error"]; msg != storeFailureMessage {
		t.Fatalf("error message leaked backend detail: %v", msg)
	}
	if n := len(ts.session.Snapshot(context.Background()).Dirty); n != 1 {
		t.Fatalf("dirty = %d, want 1", n)
	}

	ts.store.upsertErr = nil
	if rr := ts.do(http.MethodPost, "/api/save", ""); rr.Code != http.StatusOK {
		t.Fatalf("retry status=%d", rr.Code)
	}
}

func TestUnlockRateLimited(t *testing.T) {
	ts := newTestServer(t, Options{UnlockAttemptsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := ts.do(http.MethodPost, "/api/unlock", "password=guess"); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status=%d", i+1, rr.Code)
		}
	}
	rr := ts.do(http.MethodPost, "/api/unlock", "password=open+sesame")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if ts.session.Snapshot(context.Background()).CanEdit {
		t.Fatalf("rate limited attempt must not unlock")
	}
}

func TestOverviewJSON(t *testing.T) {
	ts := newTestServer(t, Options{},
		core.DayEntry{Date: core.NewDate(2024, 6, 10), Hours: 4},
		core.DayEntry{Date: core.NewDate(2024, 6, 11), Hours: 6},
		core.DayEntry{Date: core.NewDate(2024, 5, 31), Hours: 3},
	)

	rr := ts.do(http.MethodGet, "/api/overview", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var ov services.Overview
	if err := json.Unmarshal(rr.Body.Bytes(), &ov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ov.Target != 4 || ov.Week.TotalHours != 10 || ov.WeekDelta != "+2h" {
		t.Fatalf("unexpected overview: target=%v week=%v delta=%q", ov.Target, ov.Week.TotalHours, ov.WeekDelta)
	}
	if ov.Month.Key() != "2024-06" {
		t.Fatalf("default month = %s", ov.Month.Key())
	}

	rr = ts.do(http.MethodGet, "/api/overview?month=2024-05", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &ov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ov.Month.Key() != "2024-05" || ov.MonthTotal != "3h" {
		t.Fatalf("May overview: %s %s", ov.Month.Key(), ov.MonthTotal)
	}

	if rr := ts.do(http.MethodGet, "/api/overview?month=2024-13", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad month status=%d", rr.Code)
	}
}

func TestExportCSV(t *testing.T) {
	empty := newTestServer(t, Options{})
	if rr := empty.do(http.MethodGet, "/export.csv", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("empty export status=%d", rr.Code)
	}

	ts := newTestServer(t, Options{}, core.DayEntry{Date: core.NewDate(2024, 6, 10), Hours: 5.5})
	rr := ts.do(http.MethodGet, "/export.csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("content type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), services.ExportFilename) {
		t.Fatalf("disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	want := "date,hours,delta_vs_target\n2024-06-10,5h 30m,+1h 30m\n"
	if rr.Body.String() != want {
		t.Fatalf("csv = %q, want %q", rr.Body.String(), want)
	}
}

func TestPreferencesAndTarget(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.unlock(t)

	rr := ts.do(http.MethodPut, "/api/target", `{"target": 6}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("target status=%d", rr.Code)
	}
	if got := decode(t, rr)["target"]; got != float64(6) {
		t.Fatalf("target = %v", got)
	}

	rr = ts.do(http.MethodPut, "/api/preferences", "theme=toggle")
	if got := decode(t, rr)["theme"]; got != prefs.ThemeDark {
		t.Fatalf("theme = %v", got)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), EventPrefsChanged) {
		t.Fatalf("missing preferences trigger")
	}

	rr = ts.do(http.MethodPut, "/api/preferences", "exclude_current_week=true&exclude_current_week=false")
	if got := decode(t, rr)["exclude_current_week"]; got != true {
		t.Fatalf("exclude_current_week = %v", got)
	}
	if rr := ts.do(http.MethodPut, "/api/preferences", "exclude_current_week=maybe"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad bool status=%d", rr.Code)
	}
}

func TestWeekSessionsAndTimer(t *testing.T) {
	ts := newTestServer(t, Options{}, core.DayEntry{Date: core.NewDate(2024, 6, 11), Hours: 2})
	ts.unlock(t)

	rr := ts.do(http.MethodPost, "/api/week/fill", "")
	if got := decode(t, rr)["filled"]; got != float64(4) {
		t.Fatalf("filled = %v", got)
	}

	rr = ts.do(http.MethodPost, "/api/sessions", "start=09:00&end=11:30")
	if rr.Code != http.StatusOK {
		t.Fatalf("session status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["added"]; got != 2.5 {
		t.Fatalf("added = %v", got)
	}
	if rr := ts.do(http.MethodPost, "/api/sessions", "start=9&end=11:30"); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad session status=%d", rr.Code)
	}

	if rr := ts.do(http.MethodPost, "/api/timer/stop", ""); rr.Code != http.StatusConflict {
		t.Fatalf("stop without start status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/timer/start", ""); rr.Code != http.StatusOK {
		t.Fatalf("start status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/timer/start", ""); rr.Code != http.StatusConflict {
		t.Fatalf("second start status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/timer/stop", ""); rr.Code != http.StatusOK {
		t.Fatalf("stop status=%d", rr.Code)
	}

	rr = ts.do(http.MethodPost, "/api/week/clear", "")
	if got := decode(t, rr)["cleared"]; got != float64(5) {
		t.Fatalf("cleared = %v", got)
	}
}

func TestDemoMode(t *testing.T) {
	ts := newTestServer(t, Options{}, core.DayEntry{Date: core.NewDate(2024, 6, 10), Hours: 5})
	ts.unlock(t)

	if rr := ts.do(http.MethodPost, "/api/demo", ""); rr.Code != http.StatusOK {
		t.Fatalf("demo status=%d", rr.Code)
	}
	// Sample data is open to every client.
	rr := ts.anonymous(t).do(http.MethodGet, "/api/overview", "")
	var ov services.Overview
	if err := json.Unmarshal(rr.Body.Bytes(), &ov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ov.Demo || !ov.CanEdit || ov.DemoNotice == "" {
		t.Fatalf("demo overview: demo=%v canEdit=%v notice=%q", ov.Demo, ov.CanEdit, ov.DemoNotice)
	}

	ts.do(http.MethodPut, "/api/days/2024-06-14", "hours=9")
	rr = ts.do(http.MethodPost, "/api/save", "")
	if got := decode(t, rr)["message"]; !strings.HasPrefix(got.(string), "Demo mode") {
		t.Fatalf("save message = %v", got)
	}
	if hours, _ := ts.store.QueryAll(context.Background()); len(hours) != 1 {
		t.Fatalf("demo save reached the store: %v", hours)
	}

	if rr := ts.anonymous(t).do(http.MethodPost, "/api/demo/exit", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("anonymous exit status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodPost, "/api/demo/exit", ""); rr.Code != http.StatusOK {
		t.Fatalf("exit status=%d body=%s", rr.Code, rr.Body.String())
	}
	if snap := ts.session.Snapshot(context.Background()); snap.Demo || len(snap.Days) != 1 {
		t.Fatalf("after exit: demo=%v days=%d", snap.Demo, len(snap.Days))
	}
}

func TestDemoNeedsUnlockAndKeepsEdits(t *testing.T) {
	ts := newTestServer(t, Options{}, core.DayEntry{Date: core.NewDate(2024, 6, 10), Hours: 5})
	ts.unlock(t)
	if rr := ts.do(http.MethodPut, "/api/days/2024-06-11", "hours=6"); rr.Code != http.StatusOK {
		t.Fatalf("edit status=%d", rr.Code)
	}

	if rr := ts.anonymous(t).do(http.MethodPost, "/api/demo", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("locked demo status=%d", rr.Code)
	}
	if snap := ts.session.Snapshot(context.Background()); snap.Demo || len(snap.Dirty) != 1 {
		t.Fatalf("locked demo changed state: demo=%v dirty=%v", snap.Demo, snap.Dirty)
	}

	if rr := ts.do(http.MethodPost, "/api/demo", ""); rr.Code != http.StatusOK {
		t.Fatalf("demo status=%d", rr.Code)
	}
	ts.do(http.MethodPut, "/api/days/2024-06-12", "hours=1")
	if rr := ts.do(http.MethodPost, "/api/demo/exit", ""); rr.Code != http.StatusOK {
		t.Fatalf("exit status=%d", rr.Code)
	}

	rr := ts.do(http.MethodPost, "/api/save", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode(t, rr)["message"]; got != "Saved 1, removed 0." {
		t.Fatalf("save message = %v", got)
	}
	entries, _ := ts.store.QueryAll(context.Background())
	if len(entries) != 2 {
		t.Fatalf("store = %v, want the real edit saved and no demo data", entries)
	}
}

func TestUnlockIsPerClient(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.unlock(t)
	other := ts.anonymous(t)

	tests := []struct {
		method, target, body string
	}{
		{http.MethodPut, "/api/days/2024-06-11", "hours=6"},
		{http.MethodPut, "/api/target", "target=0"},
		{http.MethodPut, "/api/preferences", "theme=toggle"},
		{http.MethodPut, "/api/preferences", "exclude_current_week=true"},
		{http.MethodPost, "/api/reload", ""},
		{http.MethodPost, "/api/demo", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			if rr := other.do(tt.method, tt.target, tt.body); rr.Code != http.StatusForbidden {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
	if target := ts.session.Target(); target != 4 {
		t.Fatalf("target changed to %v", target)
	}
	if rr := ts.do(http.MethodPut, "/api/days/2024-06-11", "hours=6"); rr.Code != http.StatusOK {
		t.Fatalf("unlocked client edit status=%d", rr.Code)
	}
}

func TestUnlockCookie(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(http.MethodPost, "/api/unlock", "password=open+sesame")
	var grant *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.UnlockCookie {
			grant = c
		}
	}
	if grant == nil {
		t.Fatalf("no unlock cookie in %v", rr.Header()["Set-Cookie"])
	}
	if !grant.HttpOnly || grant.SameSite != http.SameSiteStrictMode || grant.MaxAge != 3600 {
		t.Fatalf("cookie attributes: %+v", grant)
	}

	forged := ts.anonymous(t)
	forged.jar.SetCookies(testBase, []*http.Cookie{{Name: auth.UnlockCookie, Value: grant.Value + "x"}})
	if rr := forged.do(http.MethodPut, "/api/days/2024-06-11", "hours=6"); rr.Code != http.StatusForbidden {
		t.Fatalf("tampered cookie status=%d", rr.Code)
	}

	otherKey, _ := auth.NewGrants("another-secret-0123456789abcdefg", time.Hour)
	value, _, _ := otherKey.Issue()
	foreign := ts.anonymous(t)
	foreign.jar.SetCookies(testBase, []*http.Cookie{{Name: auth.UnlockCookie, Value: value}})
	if rr := foreign.do(http.MethodPut, "/api/days/2024-06-11", "hours=6"); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign key cookie status=%d", rr.Code)
	}

	ts.do(http.MethodPost, "/api/lock", "")
	if len(ts.jar.Cookies(testBase)) != 0 {
		t.Fatalf("lock left cookies: %v", ts.jar.Cookies(testBase))
	}
}

func TestStoreOutageRecovery(t *testing.T) {
	store := &failingStore{
		Store:    memory.New([]core.DayEntry{{Date: core.NewDate(2024, 6, 10), Hours: 5}}),
		queryErr: errors.New("sheet unreachable"),
	}
	ts := newTestServerWith(t, Options{}, store)

	snap := ts.session.Snapshot(context.Background())
	if !snap.Demo || !snap.CanEdit {
		t.Fatalf("outage should fall back to sample data: demo=%v", snap.Demo)
	}

	if rr := ts.do(http.MethodGet, "/", ""); rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !ts.session.Snapshot(context.Background()).Demo {
		t.Fatalf("demo left while the store is still down")
	}

	store.queryErr = nil
	if rr := ts.do(http.MethodGet, "/", ""); rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	snap = ts.session.Snapshot(context.Background())
	if snap.Demo || len(snap.Days) != 1 {
		t.Fatalf("after recovery: demo=%v days=%d", snap.Demo, len(snap.Days))
	}
	if snap.CanEdit {
		t.Fatalf("real work log must be locked again")
	}
}

func TestReloadRoute(t *testing.T) {
	ts := newTestServer(t, Options{}, core.DayEntry{Date: core.NewDate(2024, 6, 10), Hours: 5})

	if rr := ts.do(http.MethodPost, "/api/reload", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("locked reload status=%d", rr.Code)
	}
	ts.unlock(t)
	ts.do(http.MethodPut, "/api/days/2024-06-11", "hours=6")

	_ = ts.store.Upsert(context.Background(), []core.DayEntry{{Date: core.NewDate(2024, 6, 12), Hours: 3}})
	ts.store.queryErr = errors.New("timeout")
	if rr := ts.do(http.MethodPost, "/api/reload", ""); rr.Code != http.StatusBadGateway {
		t.Fatalf("failed reload status=%d", rr.Code)
	}
	if n := len(ts.session.Snapshot(context.Background()).Dirty); n != 1 {
		t.Fatalf("failed reload dropped edits: dirty=%d", n)
	}

	ts.store.queryErr = nil
	if rr := ts.do(http.MethodPost, "/api/reload", ""); rr.Code != http.StatusOK {
		t.Fatalf("reload status=%d", rr.Code)
	}
	snap := ts.session.Snapshot(context.Background())
	if len(snap.Dirty) != 0 || len(snap.Days) != 2 {
		t.Fatalf("after reload: dirty=%d days=%d", len(snap.Dirty), len(snap.Days))
	}
}

func TestRoutingErrors(t *testing.T) {
	ts := newTestServer(t, Options{})

	if rr := ts.do(http.MethodGet, "/api/save", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/save status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodGet, "/api/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown api status=%d", rr.Code)
	}
	if rr := ts.do(http.MethodGet, "/.env", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("scanner path status=%d", rr.Code)
	}
	if ts.detector.GetMetrics().SuspiciousRequests != 1 {
		t.Fatalf("scanner path not flagged")
	}
}

func TestHTMXErrorsRenderFragments(t *testing.T) {
	ts := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/save", nil)
	req.Header.Set("HX-Request", "true")
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.HasPrefix(rr.Body.String(), `<div class="error">`) {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"type":"error"`) {
		t.Fatalf("missing error toast")
	}
}
