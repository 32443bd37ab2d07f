package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexustext/nxagent/internal/core/models"
)

// SaveSlot writes the live session into the single ephemeral slot,
// overwriting whatever was there. The whole session is serialized so a
// restore sees exactly the state that was last applied, pending approval
// included.
func (db *DB) SaveSlot(sess models.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO live_session (slot, payload, saved_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, saved_at = CURRENT_TIMESTAMP
	`, string(payload))
	if err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

// LoadSlot reads the ephemeral slot. The second return is false when the
// slot is empty. A snapshot that no longer validates is discarded rather
// than restored into the controller.
func (db *DB) LoadSlot() (models.Session, bool, error) {
	var payload string
	err := db.conn.QueryRow(`SELECT payload FROM live_session WHERE slot = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, fmt.Errorf("load slot: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		return models.Session{}, false, fmt.Errorf("decode slot: %w", err)
	}
	if err := sess.Validate(); err != nil {
		return models.Session{}, false, fmt.Errorf("slot snapshot invalid: %w", err)
	}
	return sess, true, nil
}

// ClearSlot empties the ephemeral slot. Safe when already empty.
func (db *DB) ClearSlot() error {
	_, err := db.conn.Exec(`DELETE FROM live_session WHERE slot = 1`)
	return err
}
