package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A cursor is "<timestamp>|<event id>" in unpadded URL-safe base64. It
// orders the same way as the (timestamp_utc, id) index and doubles as the
// SSE event id.
const cursorSep = "|"

func EncodeCursor(t time.Time, id int64) string {
	raw := formatTime(t) + cursorSep + strconv.FormatInt(id, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func invalidCursor(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCursor, reason)
}

// DecodeCursor reverses EncodeCursor. Padded standard base64 is tolerated
// for cursors that were copied through other tools.
func DecodeCursor(cur string) (time.Time, int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cur)
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(cur); err != nil {
			return time.Time{}, 0, invalidCursor("not base64")
		}
	}

	ts, idPart, found := strings.Cut(string(raw), cursorSep)
	if !found {
		return time.Time{}, 0, invalidCursor("missing separator")
	}
	at, err := time.Parse(TimeFormat, ts)
	if err != nil {
		return time.Time{}, 0, invalidCursor("bad timestamp")
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 0 {
		return time.Time{}, 0, invalidCursor("bad id")
	}
	return at, id, nil
}
