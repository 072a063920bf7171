package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
)

// LoadReason classifies why a blob could not be loaded.
type LoadReason string

const (
	// ReasonAbsent means the blob does not exist yet (first run).
	ReasonAbsent LoadReason = "absent"
	// ReasonUnreadable means the storage returned an error other than absence.
	ReasonUnreadable LoadReason = "unreadable"
	// ReasonMalformed means the blob is not a valid mapping of entry records.
	ReasonMalformed LoadReason = "malformed"
)

// LoadError is returned by Load for every failure.
type LoadError struct {
	Location string
	Reason   LoadReason
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load cache %s: %s: %v", e.Location, e.Reason, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads and validates a namespace blob.
//
// Any invalid record rejects the whole blob; there is no per-entry recovery.
func Load(s Storage, location string) (map[string]Entry, error) {
	data, err := s.Read(location)
	if err != nil {
		reason := ReasonUnreadable
		if errors.Is(err, fs.ErrNotExist) {
			reason = ReasonAbsent
		}
		return nil, &LoadError{Location: location, Reason: reason, Err: err}
	}

	var entries map[string]Entry
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, &LoadError{Location: location, Reason: ReasonMalformed, Err: err}
	}
	if entries == nil {
		return nil, &LoadError{Location: location, Reason: ReasonMalformed, Err: errors.New("blob is not an object")}
	}
	return entries, nil
}

// Save serializes the full mapping and overwrites the blob.
func Save(s Storage, location string, entries map[string]Entry) error {
	if entries == nil {
		entries = map[string]Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache %s: %w", location, err)
	}
	if err = s.Write(location, data); err != nil {
		return fmt.Errorf("failed to persist cache %s: %w", location, err)
	}
	return nil
}
