package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"ctxpipe/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaVersion = []byte("schema_version")

// SchemaInfo stores the schema version of the database file.
type SchemaInfo struct {
	Version int `json:"version"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltIndex) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info.Version)
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltIndex) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
}

// Migrate brings the file up to CurrentSchemaVersion. Files written by a
// newer version are refused.
func (s *BoltIndex) Migrate() error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return fmt.Errorf("failed to get schema info: %w", err)
	}

	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: database created by newer version (v%d > v%d)",
			domain.ErrBackendUnavailable, info.Version, CurrentSchemaVersion)
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	if info.Version == CurrentSchemaVersion {
		return nil
	}
	return s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion})
}

func (s *BoltIndex) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		// v1 introduced the collections bucket, created on open.
		return nil
	default:
		return nil
	}
}
