package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"workhours/internal/core"
)

const maxBodyBytes = 64 << 10

var (
	errBadBody      = errors.New("malformed request body")
	errInvalidField = errors.New("invalid field")
)

// readFields returns the request parameters as strings, whether they came as
// a form or as a flat JSON object. Only the first form value of a key is kept.
func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	fields := make(map[string]string)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", errBadBody, err)
		}
		for k, v := range raw {
			fields[k] = jsonScalar(v)
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadBody, err)
	}
	for k, vs := range r.Form {
		if len(vs) > 0 {
			fields[k] = sanitizeInput(vs[0])
		}
	}
	return fields, nil
}

// jsonScalar renders a decoded JSON value the way a form would carry it.
// Nested values and null become empty strings.
func jsonScalar(v any) string {
	switch x := v.(type) {
	case string:
		return sanitizeInput(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// parseMonthParam reads ?month=YYYY-MM. Empty means the current month and
// yields zeros.
func parseMonthParam(r *http.Request) (year, month int, err error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return 0, 0, nil
	}
	return core.ParseMonth(v)
}

// parseBoolField accepts the usual checkbox and JSON spellings.
func parseBoolField(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true, nil
	case "", "0", "false", "off", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: not a boolean %q", errInvalidField, v)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// formatInputHours renders hours for an <input>, rounded to two decimals.
func formatInputHours(h float64) string {
	return strconv.FormatFloat(math.Round(h*100)/100, 'f', -1, 64)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
