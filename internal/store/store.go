// Package store persists edit data (trims, markers, id counters) and
// per-format conversion settings in sqlite. Edit data for a file lives under
// four keys derived from a sanitized form of its path, matching the layout
// the tool has always used: {key}_trims, {key}_nextId, {key}_markers,
// {key}_nextMarkerId.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minicut/minicut-agent/internal/db"
	"github.com/minicut/minicut-agent/internal/timeline"
)

type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

func New(database *db.DB, logger *slog.Logger) *Store {
	return &Store{conn: database.Conn(), logger: logger}
}

// SanitizeKey turns a file path into a storage key. Path separators and
// other reserved characters collapse to underscores.
func SanitizeKey(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Load reads the edit snapshot for a file. Missing records yield an empty
// snapshot. A legacy marker record stored as a bare array of numbers is
// detected by the type of its first element and upgraded to structured
// markers named "Chapter 1".."Chapter N" with ids 1..N.
func (s *Store) Load(ctx context.Context, path string) (timeline.Snapshot, error) {
	key := SanitizeKey(path)
	snap := timeline.Snapshot{NextTrimID: 1, NextMarkerID: 1}

	if raw, ok, err := s.get(ctx, key+"_trims"); err != nil {
		return snap, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &snap.Trims); err != nil {
			return snap, fmt.Errorf("decode trims for %s: %w", key, err)
		}
	}

	if raw, ok, err := s.get(ctx, key+"_nextId"); err != nil {
		return snap, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &snap.NextTrimID); err != nil {
			return snap, fmt.Errorf("decode nextId for %s: %w", key, err)
		}
	}

	legacy := false
	if raw, ok, err := s.get(ctx, key+"_markers"); err != nil {
		return snap, err
	} else if ok {
		markers, wasLegacy, err := decodeMarkers([]byte(raw))
		if err != nil {
			return snap, fmt.Errorf("decode markers for %s: %w", key, err)
		}
		snap.Markers = markers
		legacy = wasLegacy
	}

	if raw, ok, err := s.get(ctx, key+"_nextMarkerId"); err != nil {
		return snap, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &snap.NextMarkerID); err != nil {
			return snap, fmt.Errorf("decode nextMarkerId for %s: %w", key, err)
		}
	} else if legacy {
		snap.NextMarkerID = len(snap.Markers) + 1
	}

	return snap, nil
}

// decodeMarkers handles both the structured marker array and the legacy
// bare-number array. Returns whether the legacy form was upgraded.
func decodeMarkers(raw []byte) ([]timeline.Marker, bool, error) {
	var probe []json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false, err
	}
	if len(probe) == 0 {
		return nil, false, nil
	}

	first := strings.TrimSpace(string(probe[0]))
	if !strings.HasPrefix(first, "{") {
		var times []float64
		if err := json.Unmarshal(raw, &times); err != nil {
			return nil, false, err
		}
		markers := make([]timeline.Marker, len(times))
		for i, t := range times {
			markers[i] = timeline.Marker{
				ID:   i + 1,
				Time: t,
				Name: fmt.Sprintf("Chapter %d", i+1),
			}
		}
		return markers, true, nil
	}

	var markers []timeline.Marker
	if err := json.Unmarshal(raw, &markers); err != nil {
		return nil, false, err
	}
	return markers, false, nil
}

// Save writes the edit snapshot for a file. Failures are returned for the
// caller to log; in-memory state stays authoritative either way.
func (s *Store) Save(ctx context.Context, path string, snap timeline.Snapshot) error {
	key := SanitizeKey(path)

	trims := snap.Trims
	if trims == nil {
		trims = []timeline.Trim{}
	}
	markers := snap.Markers
	if markers == nil {
		markers = []timeline.Marker{}
	}

	trimsJSON, err := json.Marshal(trims)
	if err != nil {
		return fmt.Errorf("encode trims: %w", err)
	}
	markersJSON, err := json.Marshal(markers)
	if err != nil {
		return fmt.Errorf("encode markers: %w", err)
	}

	records := map[string]string{
		key + "_trims":        string(trimsJSON),
		key + "_nextId":       fmt.Sprintf("%d", snap.NextTrimID),
		key + "_markers":      string(markersJSON),
		key + "_nextMarkerId": fmt.Sprintf("%d", snap.NextMarkerID),
	}
	for k, v := range records {
		if err := s.put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM edit_data WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO edit_data (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// GetTargetMB returns the default target size in megabytes for a format.
func (s *Store) GetTargetMB(ctx context.Context, formatID string) (float64, bool, error) {
	var mb float64
	err := s.conn.QueryRowContext(ctx, "SELECT target_mb FROM settings WHERE format_id = ?", formatID).Scan(&mb)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read setting %s: %w", formatID, err)
	}
	return mb, true, nil
}

func (s *Store) SetTargetMB(ctx context.Context, formatID string, mb float64) error {
	if mb <= 0 {
		return fmt.Errorf("target_mb must be positive")
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO settings (format_id, target_mb, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(format_id) DO UPDATE SET target_mb = excluded.target_mb, updated_at = excluded.updated_at
	`, formatID, mb)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", formatID, err)
	}
	return nil
}

// GetConfig reads an agent-level config value (e.g. the auth token).
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
