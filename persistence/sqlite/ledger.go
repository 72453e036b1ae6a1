package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

var _ persistence.Ledger = new(sqliteLedger)

type sqliteLedger struct {
	db             *sql.DB
	encoderDecoder util.EncoderDecoder[model.LedgerEntry]
}

func NewLedger(db *sql.DB) *sqliteLedger {
	return &sqliteLedger{
		db:             db,
		encoderDecoder: util.NewJsonEncoderDecoder[model.LedgerEntry](),
	}
}

func (l *sqliteLedger) RecordIfNew(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, bool, error) {
	data, err := l.encoderDecoder.Encode(*entry)
	if err != nil {
		return nil, false, err
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, external_id, contact_id, direction, state, updated_at, data) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`,
		entry.Id, entry.ExternalId, entry.ContactId, string(entry.Direction), string(entry.State), entry.UpdatedAt.UnixMilli(), data)
	if err != nil {
		logger.Error("error in recording ledger entry", zap.String("externalId", entry.ExternalId), zap.Error(err))
		return nil, false, persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 1 {
		stored := *entry
		return &stored, true, nil
	}
	existing, err := l.GetByExternalId(ctx, entry.ExternalId)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (l *sqliteLedger) Get(ctx context.Context, id string) (*model.LedgerEntry, error) {
	return l.query(ctx, `SELECT data FROM ledger_entries WHERE id = ?`, id)
}

func (l *sqliteLedger) GetByExternalId(ctx context.Context, externalId string) (*model.LedgerEntry, error) {
	return l.query(ctx, `SELECT data FROM ledger_entries WHERE external_id = ?`, externalId)
}

func (l *sqliteLedger) query(ctx context.Context, query string, arg string) (*model.LedgerEntry, error) {
	var data []byte
	if err := l.db.QueryRowContext(ctx, query, arg).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrEntryNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return l.encoderDecoder.Decode(data)
}

func (l *sqliteLedger) MarkQueued(ctx context.Context, id string) error {
	return l.mark(ctx, id, model.STATE_QUEUED, "")
}

func (l *sqliteLedger) MarkProcessed(ctx context.Context, id string) error {
	return l.mark(ctx, id, model.STATE_PROCESSED, "")
}

func (l *sqliteLedger) MarkFailed(ctx context.Context, id string, reason string) error {
	return l.mark(ctx, id, model.STATE_FAILED, reason)
}

func (l *sqliteLedger) mark(ctx context.Context, id string, state model.ProcessingState, reason string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback()

	var data []byte
	if err := tx.QueryRowContext(ctx, `SELECT data FROM ledger_entries WHERE id = ?`, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrEntryNotFound
		}
		return persistence.StorageLayerError{Message: err.Error()}
	}
	entry, err := l.encoderDecoder.Decode(data)
	if err != nil {
		return err
	}
	changed, err := persistence.ApplyState(entry, state, reason)
	if err != nil || !changed {
		return err
	}
	encoded, err := l.encoderDecoder.Encode(*entry)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE ledger_entries SET state = ?, updated_at = ?, data = ? WHERE id = ?`,
		string(entry.State), entry.UpdatedAt.UnixMilli(), encoded, id); err != nil {
		logger.Error("error in updating ledger entry", zap.String("entryId", id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := tx.Commit(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (l *sqliteLedger) ListPending(ctx context.Context, before time.Time, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT data FROM ledger_entries WHERE direction = ? AND state IN (?, ?) AND updated_at <= ?
		ORDER BY updated_at LIMIT ?`,
		string(model.DIRECTION_INBOUND), string(model.STATE_NEW), string(model.STATE_QUEUED), before.UnixMilli(), limit)
	if err != nil {
		logger.Error("error in listing pending ledger entries", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	pending := make([]*model.LedgerEntry, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		entry, err := l.encoderDecoder.Decode(data)
		if err != nil {
			return nil, err
		}
		pending = append(pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return pending, nil
}
