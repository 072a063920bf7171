package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the on-disk format of Entry.CreatedAt, in local time with
// microsecond precision. Changing it breaks every existing blob.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Entry is one cached value.
type Entry struct {
	// Values is the opaque cached payload.
	Values json.RawMessage

	// CreatedAt is the time of the last write.
	CreatedAt time.Time

	// ExpireInDays is the lifetime in whole days.
	ExpireInDays int
}

// IsExpired reports whether the entry is stale at now.
func (e Entry) IsExpired(now time.Time) bool {
	return IsExpired(e.CreatedAt, e.ExpireInDays, now)
}

// entryRecord is the persisted shape. Pointers let us tell a missing field
// from a zero one.
type entryRecord struct {
	Values       json.RawMessage `json:"values"`
	Timestamp    *string         `json:"timestamp"`
	ExpireInDays *int            `json:"expire_in_days"`
}

var (
	errMissingValues    = errors.New("missing values")
	errMissingTimestamp = errors.New("missing timestamp")
	errMissingTTL       = errors.New("missing expire_in_days")
)

// MarshalJSON writes the entry as a {values, timestamp, expire_in_days} record.
func (e Entry) MarshalJSON() ([]byte, error) {
	values := e.Values
	if values == nil {
		values = json.RawMessage("null")
	}
	ts := e.CreatedAt.Local().Format(TimestampLayout)
	ttl := e.ExpireInDays
	return json.Marshal(entryRecord{
		Values:       values,
		Timestamp:    &ts,
		ExpireInDays: &ttl,
	})
}

// UnmarshalJSON reads a persisted record. Every field is required and the
// timestamp must match TimestampLayout exactly.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if e == nil {
		return errors.New("cannot unmarshal into nil Entry")
	}

	var rec entryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	switch {
	case rec.Values == nil:
		return errMissingValues
	case rec.Timestamp == nil:
		return errMissingTimestamp
	case rec.ExpireInDays == nil:
		return errMissingTTL
	}

	createdAt, err := time.ParseInLocation(TimestampLayout, *rec.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", *rec.Timestamp, err)
	}

	*e = Entry{
		Values:       rec.Values,
		CreatedAt:    createdAt,
		ExpireInDays: *rec.ExpireInDays,
	}
	return nil
}
