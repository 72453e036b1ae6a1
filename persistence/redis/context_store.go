package redis

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const CONTEXT_KEY string = "CONTEXT"
const LOCK_KEY string = "LOCK"
const COMPLETED_KEY string = "DONE"

const (
	commitSet   = "set"
	commitClear = "clear"
	commitDel   = "del"
)

var errLockBusy = errors.New("contact lock busy")

var releaseLockScript = rd.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KEYS[1] lock, KEYS[2] context, KEYS[3] completed flows.
// ARGV token, mode, context data, completed data.
var commitScript = rd.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == "set" then
	redis.call("SET", KEYS[2], ARGV[3])
elseif ARGV[2] == "clear" then
	redis.call("DEL", KEYS[2])
	redis.call("SET", KEYS[3], ARGV[4])
else
	redis.call("DEL", KEYS[2])
end
return 1
`)

var _ persistence.ContextStore = new(redisContextStore)

type redisContextStore struct {
	*baseDao
	lockTTL        time.Duration
	lockWait       time.Duration
	encoderDecoder util.EncoderDecoder[model.FlowContext]
	doneCodec      util.EncoderDecoder[model.CompletedFlows]
}

func NewRedisContextStore(client rd.UniversalClient, conf Config) *redisContextStore {
	lockTTL := conf.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	lockWait := conf.LockWait
	if lockWait <= 0 {
		lockWait = 10 * time.Second
	}
	return &redisContextStore{
		baseDao:        newBaseDao(client, conf.Namespace),
		lockTTL:        lockTTL,
		lockWait:       lockWait,
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowContext](),
		doneCodec:      util.NewJsonEncoderDecoder[model.CompletedFlows](),
	}
}

// contactKey keeps every key of one contact in the same cluster slot.
func (r *redisContextStore) contactKey(contactId string, kind string) string {
	return r.getNamespaceKey("{"+contactId+"}", kind)
}

func (r *redisContextStore) Get(ctx context.Context, contactId string) (*model.FlowContext, error) {
	data, err := r.redisClient.Get(ctx, r.contactKey(contactId, CONTEXT_KEY)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, model.ErrNoActiveFlow
		}
		logger.Error("error in getting flow context", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.Decode([]byte(data))
}

func (r *redisContextStore) Create(ctx context.Context, contactId string, def *model.FlowDefinition, instanceId string, entryStep string) (*model.FlowContext, error) {
	fc := model.NewFlowContext(contactId, def, instanceId, entryStep)
	data, err := r.encoderDecoder.Encode(*fc)
	if err != nil {
		return nil, err
	}
	created, err := r.redisClient.SetNX(ctx, r.contactKey(contactId, CONTEXT_KEY), string(data), 0).Result()
	if err != nil {
		logger.Error("error in creating flow context", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return nil, model.ErrFlowAlreadyActive
	}
	return fc, nil
}

func (r *redisContextStore) Mutate(ctx context.Context, contactId string, fn persistence.MutateFunc) (*model.FlowContext, error) {
	token, unlock, err := r.lock(ctx, contactId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := r.Get(ctx, contactId)
	if err != nil {
		return nil, err
	}
	working := *current
	working.Variables = current.Snapshot().Variables
	working.Flags = current.Snapshot().Flags
	working.AppliedEntries = append([]string(nil), current.AppliedEntries...)

	err = fn(&working)
	switch {
	case errors.Is(err, persistence.ErrNoChange):
		return current, nil
	case errors.Is(err, persistence.ErrClearContext):
		done, err := r.Completed(ctx, contactId)
		if err != nil {
			return nil, err
		}
		done.Add(&working)
		doneData, err := r.doneCodec.Encode(*done)
		if err != nil {
			return nil, err
		}
		if err := r.commit(ctx, contactId, token, commitClear, nil, doneData); err != nil {
			return nil, err
		}
		return &working, nil
	case err != nil:
		return nil, err
	}

	working.UpdatedAt = time.Now().UTC()
	data, err := r.encoderDecoder.Encode(working)
	if err != nil {
		return nil, err
	}
	if err := r.commit(ctx, contactId, token, commitSet, data, nil); err != nil {
		return nil, err
	}
	return &working, nil
}

func (r *redisContextStore) Clear(ctx context.Context, contactId string) error {
	token, unlock, err := r.lock(ctx, contactId)
	if err != nil {
		return err
	}
	defer unlock()
	return r.commit(ctx, contactId, token, commitDel, nil, nil)
}

func (r *redisContextStore) Completed(ctx context.Context, contactId string) (*model.CompletedFlows, error) {
	data, err := r.redisClient.Get(ctx, r.contactKey(contactId, COMPLETED_KEY)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return &model.CompletedFlows{ContactId: contactId}, nil
		}
		logger.Error("error in getting completed flows", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.doneCodec.Decode([]byte(data))
}

// commit writes only while the caller still holds the contact lock. A holder
// whose lock expired gets an error and its change is dropped.
func (r *redisContextStore) commit(ctx context.Context, contactId string, token string, mode string, data []byte, done []byte) error {
	keys := []string{
		r.contactKey(contactId, LOCK_KEY),
		r.contactKey(contactId, CONTEXT_KEY),
		r.contactKey(contactId, COMPLETED_KEY),
	}
	ok, err := commitScript.Run(ctx, r.redisClient, keys, token, mode, string(data), string(done)).Int()
	if err != nil {
		logger.Error("error in saving flow context", zap.String("contact", contactId), zap.String("mode", mode), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if ok == 0 {
		logger.Error("contact lock lost before commit", zap.String("contact", contactId), zap.String("mode", mode))
		return persistence.StorageLayerError{Message: "lock on contact " + contactId + " lost before commit"}
	}
	return nil
}

// lock takes the per contact mutation lock. The lock expires after lockTTL so a
// crashed holder can not park a contact forever.
func (r *redisContextStore) lock(ctx context.Context, contactId string) (string, func(), error) {
	key := r.contactKey(contactId, LOCK_KEY)
	token := uuid.New().String()

	acquire := func() error {
		ok, err := r.redisClient.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return backoff.Permanent(persistence.StorageLayerError{Message: err.Error()})
		}
		if !ok {
			return errLockBusy
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = r.lockWait
	if err := backoff.Retry(acquire, backoff.WithContext(b, ctx)); err != nil {
		logger.Error("error in acquiring contact lock", zap.String("contact", contactId), zap.Error(err))
		if errors.Is(err, errLockBusy) {
			return "", nil, persistence.StorageLayerError{Message: "contact " + contactId + " is locked"}
		}
		return "", nil, err
	}
	return token, func() {
		if err := releaseLockScript.Run(context.Background(), r.redisClient, []string{key}, token).Err(); err != nil {
			logger.Error("error in releasing contact lock", zap.String("contact", contactId), zap.Error(err))
		}
	}, nil
}
