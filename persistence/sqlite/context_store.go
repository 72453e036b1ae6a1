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

var _ persistence.ContextStore = new(sqliteContextStore)

type sqliteContextStore struct {
	db             *sql.DB
	locks          *util.KeyedMutex
	encoderDecoder util.EncoderDecoder[model.FlowContext]
	doneCodec      util.EncoderDecoder[model.CompletedFlows]
}

func NewContextStore(db *sql.DB) *sqliteContextStore {
	return &sqliteContextStore{
		db:             db,
		locks:          util.NewKeyedMutex(),
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowContext](),
		doneCodec:      util.NewJsonEncoderDecoder[model.CompletedFlows](),
	}
}

func (s *sqliteContextStore) Get(ctx context.Context, contactId string) (*model.FlowContext, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM flow_contexts WHERE contact_id = ?`, contactId).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNoActiveFlow
		}
		logger.Error("error in getting flow context", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.encoderDecoder.Decode(data)
}

func (s *sqliteContextStore) Create(ctx context.Context, contactId string, def *model.FlowDefinition, instanceId string, entryStep string) (*model.FlowContext, error) {
	unlock := s.locks.Lock(contactId)
	defer unlock()
	fc := model.NewFlowContext(contactId, def, instanceId, entryStep)
	data, err := s.encoderDecoder.Encode(*fc)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO flow_contexts (contact_id, data, updated_at) VALUES (?, ?, ?) ON CONFLICT(contact_id) DO NOTHING`,
		contactId, data, fc.UpdatedAt.UnixMilli())
	if err != nil {
		logger.Error("error in creating flow context", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrFlowAlreadyActive
	}
	return fc, nil
}

func (s *sqliteContextStore) Mutate(ctx context.Context, contactId string, fn persistence.MutateFunc) (*model.FlowContext, error) {
	unlock := s.locks.Lock(contactId)
	defer unlock()
	current, err := s.Get(ctx, contactId)
	if err != nil {
		return nil, err
	}
	working, err := s.Get(ctx, contactId)
	if err != nil {
		return nil, err
	}
	err = fn(working)
	switch {
	case errors.Is(err, persistence.ErrNoChange):
		return current, nil
	case errors.Is(err, persistence.ErrClearContext):
		if err := s.complete(ctx, working); err != nil {
			return nil, err
		}
		return working, nil
	case err != nil:
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	data, err := s.encoderDecoder.Encode(*working)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE flow_contexts SET data = ?, updated_at = ? WHERE contact_id = ?`,
		data, working.UpdatedAt.UnixMilli(), contactId)
	if err != nil {
		logger.Error("error in saving flow context", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return working, nil
}

func (s *sqliteContextStore) Clear(ctx context.Context, contactId string) error {
	unlock := s.locks.Lock(contactId)
	defer unlock()
	return s.delete(ctx, contactId)
}

func (s *sqliteContextStore) delete(ctx context.Context, contactId string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM flow_contexts WHERE contact_id = ?`, contactId); err != nil {
		logger.Error("error in clearing flow context", zap.String("contact", contactId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *sqliteContextStore) Completed(ctx context.Context, contactId string) (*model.CompletedFlows, error) {
	return s.completed(ctx, s.db, contactId)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *sqliteContextStore) completed(ctx context.Context, q queryer, contactId string) (*model.CompletedFlows, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM flow_completions WHERE contact_id = ?`, contactId).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.CompletedFlows{ContactId: contactId}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.doneCodec.Decode(data)
}

// complete removes the context and folds it into the contact's completions in
// one transaction.
func (s *sqliteContextStore) complete(ctx context.Context, fc *model.FlowContext) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback()

	done, err := s.completed(ctx, tx, fc.ContactId)
	if err != nil {
		return err
	}
	done.Add(fc)
	data, err := s.doneCodec.Encode(*done)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO flow_completions (contact_id, data) VALUES (?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET data = excluded.data`, fc.ContactId, data); err != nil {
		logger.Error("error in recording completed flow", zap.String("contact", fc.ContactId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_contexts WHERE contact_id = ?`, fc.ContactId); err != nil {
		logger.Error("error in clearing flow context", zap.String("contact", fc.ContactId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := tx.Commit(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
