package mutation

import (
	"database/sql"

	"github.com/tdsync/core/internal/model"
)

// PutSetting writes a setting's value. Local-only keys (spec §3.1's
// reserved prefix and the device-id key) are persisted but never journaled
// to the outbox — P7's local-only confinement starts here, at the one
// write path a host has into the settings table.
func (m *Mutator) PutSetting(key, value string) (*model.Setting, error) {
	now := m.now()
	localOnly := model.IsLocalOnly(key)

	currentVersion, err := m.Store.GetSettingSyncVersion(key)
	if err != nil {
		return nil, err
	}
	nextVersion := currentVersion + 1

	err = m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.UpsertSetting(tx, key, value, now, m.DeviceID, nextVersion); err != nil {
			return err
		}
		if localOnly {
			return nil
		}
		return m.insertOutbox(tx, model.EntitySetting, key, model.OpUpsert, settingPayload(key, value), now, nextVersion)
	})
	if err != nil {
		return nil, err
	}
	return &model.Setting{Key: key, Value: value}, nil
}

// DeleteSetting removes a setting and, unless it is local-only, journals a
// DELETE so peers observe the removal.
func (m *Mutator) DeleteSetting(key string) error {
	if _, err := m.Store.GetSetting(key); err != nil {
		return err
	}
	now := m.now()
	localOnly := model.IsLocalOnly(key)
	return m.Store.Mutate(func(tx *sql.Tx) error {
		if err := m.Store.DeleteSetting(tx, key); err != nil {
			return err
		}
		if localOnly {
			return nil
		}
		return m.insertOutbox(tx, model.EntitySetting, key, model.OpDelete, nil, now, 0)
	})
}

func settingPayload(key, value string) map[string]any {
	return map[string]any{"key": key, "value": value}
}
