package repository

import (
	"context"

	"github.com/jwalitptl/cds-engine/internal/model"
)

// All repository interfaces in one file
type (
	// KVStore is the minimal persistence collaborator. Get reports found=false for a
	// missing key; err is reserved for backend failures.
	KVStore interface {
		Get(ctx context.Context, key string) (value string, found bool, err error)
		Set(ctx context.Context, key, value string) error
		Ping(ctx context.Context) error
	}

	// HistoryRepository loads and saves the whole alert history collection.
	// Save replaces the stored collection; writers are expected to be serialized.
	HistoryRepository interface {
		Load(ctx context.Context) ([]model.CDSAlertHistory, error)
		Save(ctx context.Context, entries []model.CDSAlertHistory) error
	}

	// AuditRepository loads and saves the whole audit collection.
	AuditRepository interface {
		Load(ctx context.Context) ([]model.CDSAuditLog, error)
		Save(ctx context.Context, entries []model.CDSAuditLog) error
	}
)
