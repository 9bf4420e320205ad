package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaInfo = []byte("schema_info")

// SchemaInfo records what produced the stored embeddings.
type SchemaInfo struct {
	Version        int    `json:"version"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
}

// EmbeddingSpec describes the encoder a store is about to be used with.
type EmbeddingSpec struct {
	Model     string
	Dimension int
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration  bool
	ClearEmbeddings bool
	OldVersion      int
	NewVersion      int
	Reason          string
}

// CheckMigration compares stored schema info with the encoder in use. Vectors
// from another model or dimension cannot share an index with fresh ones, so a
// change there clears every stored embedding.
func CheckMigration(info SchemaInfo, spec EmbeddingSpec) (*MigrationResult, error) {
	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version > CurrentSchemaVersion:
		return nil, fmt.Errorf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	}

	if info.EmbeddingModel != "" && (info.EmbeddingModel != spec.Model || info.Dimension != spec.Dimension) {
		result.NeedsMigration = true
		result.ClearEmbeddings = true
		result.Reason = fmt.Sprintf("embedding model changed from %s/%d to %s/%d",
			info.EmbeddingModel, info.Dimension, spec.Model, spec.Dimension)
	} else if info.EmbeddingModel == "" && spec.Model != "" {
		result.NeedsMigration = true
		if result.Reason == "" {
			result.Reason = "recording embedding model"
		}
	}

	return result, nil
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaInfo)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	return info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchemaInfo, data)
	})
}

// Prepare binds the store to an encoder, migrating if needed. After Prepare,
// SetEmbedding and AllWithEmbeddings enforce spec.Dimension.
func (s *BoltStore) Prepare(ctx context.Context, spec EmbeddingSpec) (*MigrationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result, err := CheckMigration(info, spec)
	if err != nil {
		return nil, err
	}

	if result.ClearEmbeddings {
		if err := s.clearEmbeddings(); err != nil {
			return nil, fmt.Errorf("failed to clear embeddings: %w", err)
		}
	}
	if result.NeedsMigration {
		err := s.SetSchemaInfo(SchemaInfo{
			Version:        CurrentSchemaVersion,
			EmbeddingModel: spec.Model,
			Dimension:      spec.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update schema info: %w", err)
		}
	}

	s.dim = spec.Dimension
	return result, nil
}
