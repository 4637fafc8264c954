package storage

import (
	"context"
	"errors"

	"NYCU-SDC/workflow-editor-backend/internal"

	databaseutil "github.com/NYCU-SDC/summer/pkg/database"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	getSlot = `SELECT value FROM workflow_slots WHERE key = $1`

	upsertSlot = `
INSERT INTO workflow_slots (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET
    value = EXCLUDED.value,
    updated_at = EXCLUDED.updated_at`

	deleteSlot = `DELETE FROM workflow_slots WHERE key = $1`
)

// Postgres stores slots in the workflow_slots table created by the migrations
type Postgres struct {
	logger *zap.Logger
	db     internal.DBTX
}

func NewPostgres(logger *zap.Logger, db internal.DBTX) *Postgres {
	return &Postgres{logger: logger, db: db}
}

func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(ctx, getSlot, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrSlotNotFound
	}
	if err != nil {
		return nil, databaseutil.WrapDBError(err, p.logger, "get workflow slot")
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.db.Exec(ctx, upsertSlot, key, value)
	if err != nil {
		return databaseutil.WrapDBError(err, p.logger, "upsert workflow slot")
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	tag, err := p.db.Exec(ctx, deleteSlot, key)
	if err != nil {
		return databaseutil.WrapDBError(err, p.logger, "delete workflow slot")
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrSlotNotFound
	}
	return nil
}
