package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const LEDGER_KEY string = "LEDGER"
const LEDGER_INDEX_KEY string = "EXT"
const LEDGER_ENTRY_KEY string = "ENTRY"
const LEDGER_PENDING_KEY string = "PENDING"

const maxWatchRetries = 10

// KEYS[1] external id index, KEYS[2] entry key of the candidate, KEYS[3] pending set.
// ARGV external id, candidate id, candidate entry, pending score or empty.
var recordIfNewScript = rd.NewScript(`
local id = redis.call("HGET", KEYS[1], ARGV[1])
if id then
	return {0, id}
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
redis.call("SET", KEYS[2], ARGV[3])
if ARGV[4] ~= "" then
	redis.call("ZADD", KEYS[3], ARGV[4], ARGV[2])
end
return {1, ARGV[2]}
`)

var _ persistence.Ledger = new(redisLedger)

type redisLedger struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.LedgerEntry]
}

func NewRedisLedger(client rd.UniversalClient, conf Config) *redisLedger {
	return &redisLedger{
		baseDao:        newBaseDao(client, conf.Namespace),
		encoderDecoder: util.NewJsonEncoderDecoder[model.LedgerEntry](),
	}
}

// ledgerKey hash tags every ledger key so the scripts and transactions touch
// a single cluster slot.
func (l *redisLedger) ledgerKey(parts ...string) string {
	key := "{" + l.getNamespaceKey(LEDGER_KEY) + "}"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func pendingScore(entry *model.LedgerEntry) string {
	if !entry.IsPending() {
		return ""
	}
	return strconv.FormatInt(entry.UpdatedAt.UnixMilli(), 10)
}

func (l *redisLedger) RecordIfNew(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerEntry, bool, error) {
	data, err := l.encoderDecoder.Encode(*entry)
	if err != nil {
		return nil, false, err
	}
	keys := []string{l.ledgerKey(LEDGER_INDEX_KEY), l.ledgerKey(LEDGER_ENTRY_KEY, entry.Id), l.ledgerKey(LEDGER_PENDING_KEY)}
	res, err := recordIfNewScript.Run(ctx, l.redisClient, keys, entry.ExternalId, entry.Id, string(data), pendingScore(entry)).Slice()
	if err != nil {
		logger.Error("error in recording ledger entry", zap.String("externalId", entry.ExternalId), zap.Error(err))
		return nil, false, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(res) != 2 {
		return nil, false, persistence.StorageLayerError{Message: fmt.Sprintf("unexpected record result %v", res)}
	}
	created, _ := res[0].(int64)
	id, _ := res[1].(string)
	if created == 1 {
		stored := *entry
		return &stored, true, nil
	}
	existing, err := l.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (l *redisLedger) Get(ctx context.Context, id string) (*model.LedgerEntry, error) {
	data, err := l.redisClient.Get(ctx, l.ledgerKey(LEDGER_ENTRY_KEY, id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ErrEntryNotFound
		}
		logger.Error("error in getting ledger entry", zap.String("entryId", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return l.encoderDecoder.Decode([]byte(data))
}

func (l *redisLedger) GetByExternalId(ctx context.Context, externalId string) (*model.LedgerEntry, error) {
	id, err := l.redisClient.HGet(ctx, l.ledgerKey(LEDGER_INDEX_KEY), externalId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ErrEntryNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return l.Get(ctx, id)
}

func (l *redisLedger) MarkQueued(ctx context.Context, id string) error {
	return l.mark(ctx, id, model.STATE_QUEUED, "")
}

func (l *redisLedger) MarkProcessed(ctx context.Context, id string) error {
	return l.mark(ctx, id, model.STATE_PROCESSED, "")
}

func (l *redisLedger) MarkFailed(ctx context.Context, id string, reason string) error {
	return l.mark(ctx, id, model.STATE_FAILED, reason)
}

func (l *redisLedger) mark(ctx context.Context, id string, state model.ProcessingState, reason string) error {
	key := l.ledgerKey(LEDGER_ENTRY_KEY, id)
	pendingKey := l.ledgerKey(LEDGER_PENDING_KEY)
	txf := func(tx *rd.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return model.ErrEntryNotFound
			}
			return err
		}
		entry, err := l.encoderDecoder.Decode([]byte(data))
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
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, string(encoded), 0)
			if entry.IsPending() {
				pipe.ZAdd(ctx, pendingKey, rd.Z{Score: float64(entry.UpdatedAt.UnixMilli()), Member: id})
			} else {
				pipe.ZRem(ctx, pendingKey, id)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxWatchRetries; i++ {
		err := l.redisClient.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, rd.TxFailedErr) {
			continue
		}
		if errors.Is(err, model.ErrEntryNotFound) || errors.Is(err, model.ErrIllegalStateTransition) {
			return err
		}
		logger.Error("error in updating ledger entry", zap.String("entryId", id), zap.String("state", string(state)), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return persistence.StorageLayerError{Message: "ledger entry " + id + " is contended"}
}

func (l *redisLedger) ListPending(ctx context.Context, before time.Time, limit int) ([]*model.LedgerEntry, error) {
	by := &rd.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(before.UnixMilli(), 10)}
	if limit > 0 {
		by.Count = int64(limit)
	}
	ids, err := l.redisClient.ZRangeByScore(ctx, l.ledgerKey(LEDGER_PENDING_KEY), by).Result()
	if err != nil {
		logger.Error("error in listing pending ledger entries", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	pending := make([]*model.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := l.Get(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrEntryNotFound) {
				continue
			}
			return nil, err
		}
		if entry.IsPending() {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}
