package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/meridian-cloud/contextd/internal/db"
)

// CreateIndex creates an FT index over JSON documents from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

func buildCreateArgs(def *db.IndexDefinition) ([]string, error) {
	if def.Name == "" {
		return nil, errors.New("index name is required")
	}
	if len(def.TextFields) == 0 && len(def.TagFields) == 0 && def.VectorField == "" {
		return nil, errors.New("at least one field is required")
	}

	args := []string{def.Name, "ON", "JSON"}

	if def.Prefix != "" {
		args = append(args, "PREFIX", "1", def.Prefix)
	}

	args = append(args, "SCHEMA")

	for _, f := range def.TextFields {
		args = append(args, "$."+f, "AS", f, "TEXT")
	}
	for _, f := range def.TagFields {
		args = append(args, "$."+f, "AS", f, "TAG")
	}

	if def.VectorField != "" {
		if def.VectorDim <= 0 {
			return nil, errors.New("vector DIM must be positive")
		}
		args = append(args,
			"$."+def.VectorField, "AS", "vector",
			"VECTOR", "HNSW", "6",
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(def.VectorDim),
			"DISTANCE_METRIC", "COSINE",
		)
	}

	return args, nil
}
