package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/graaaaa/nickutc/internal/presence"
	"github.com/graaaaa/nickutc/internal/store"
)

// Query parameter bounds.
const (
	defaultPerPage = 200
	maxPerPage     = 1000
)

// dateParamRe accepts a bare date or a second-precision UTC instant.
var dateParamRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}Z)?$`)

var errBadUserID = errors.New("invalid user id")

// pathUserID reads the {id} path segment. It must be a positive integer.
func pathUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadUserID
	}
	return id, nil
}

// queryUserID reads an optional user_id query parameter; 0 means absent.
func queryUserID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("user_id")
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadUserID
	}
	return id, nil
}

// timeParam parses a from/to value. A bare date stands for the start of that
// day, or for its last second when endOfDay is set, so that to is inclusive.
func timeParam(q url.Values, name string, endOfDay bool) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	if !dateParamRe.MatchString(v) {
		return nil, fmt.Errorf("invalid %s: want YYYY-MM-DD or YYYY-MM-DDTHH:MM:SSZ", name)
	}
	if len(v) > len(presence.DateFormat) {
		t, err := presence.ParseTimestamp(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		return &t, nil
	}
	t, err := time.Parse(presence.DateFormat, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

// timeRange parses from and to and rejects an inverted range.
func timeRange(q url.Values) (from, to *time.Time, err error) {
	if from, err = timeParam(q, "from", false); err != nil {
		return nil, nil, err
	}
	if to, err = timeParam(q, "to", true); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, errors.New("from must not be after to")
	}
	return from, to, nil
}

// dateRange is timeRange reduced to calendar dates.
func dateRange(q url.Values) (store.DateRange, error) {
	from, to, err := timeRange(q)
	if err != nil {
		return store.DateRange{}, err
	}
	var r store.DateRange
	if from != nil {
		r.From = presence.FormatDate(*from)
	}
	if to != nil {
		r.To = presence.FormatDate(*to)
	}
	return r, nil
}

// intParam parses an optional integer bounded by [lo, hi].
func intParam(q url.Values, name string, def, lo, hi int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

// writeLookupError maps a use case error to a response.
func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found", nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "", err)
}
