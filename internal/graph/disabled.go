package graph

import (
	"context"

	apperrors "github.com/talemachine/talemachine/internal/errors"
)

// DisabledSync stands in when no graph backend is configured. Namespace
// management succeeds so stories can still be created; extraction and
// querying fail softly, which leaves chapters flagged unsynced.
type DisabledSync struct{}

func (DisabledSync) EnsureNamespace(_ context.Context, name string) (string, error) {
	return SanitizeDatabaseName(name), nil
}

func (DisabledSync) DropNamespace(context.Context, string) error { return nil }

func (DisabledSync) ExtractAndUpsert(context.Context, string, string) ([]Entity, error) {
	return nil, apperrors.Transient("graph sync is disabled")
}

func (DisabledSync) AnswerQuery(context.Context, string, string, int) (string, error) {
	return "", apperrors.Transient("graph sync is disabled")
}
