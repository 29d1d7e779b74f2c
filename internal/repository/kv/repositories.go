package kv

import (
	"github.com/jwalitptl/cds-engine/internal/model"
	"github.com/jwalitptl/cds-engine/internal/repository"
	"github.com/jwalitptl/cds-engine/pkg/logger"
)

func NewHistoryRepository(store repository.KVStore, key string, log *logger.Logger) repository.HistoryRepository {
	if key == "" {
		key = DefaultHistoryKey
	}
	return NewCollection[model.CDSAlertHistory](store, key, log)
}

func NewAuditRepository(store repository.KVStore, key string, log *logger.Logger) repository.AuditRepository {
	if key == "" {
		key = DefaultAuditKey
	}
	return NewCollection[model.CDSAuditLog](store, key, log)
}
