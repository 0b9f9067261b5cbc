package callstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 100

// Deletes a room key only when it still belongs to the caller.
var releaseRoomScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Indexes and stores a new record in one step. The index is written first
// so a failing ZADD leaves nothing behind.
var createCallScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	RoomTTL  time.Duration
}

// RedisStore keeps records as JSON values. Updates use WATCH/MULTI so that
// concurrent writers of the same call never lose each other's fields.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	roomTTL time.Duration
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "confdialer:v1"
	}

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: strings.TrimSpace(opts.Username),
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: c, prefix: prefix, roomTTL: opts.RoomTTL}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) callKey(id string) string {
	return fmt.Sprintf("%s:call:%s", s.prefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":calls"
}

func (s *RedisStore) roomKey(room string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, room)
}

func (s *RedisStore) Create(ctx context.Context, rec *CallRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal call: %w", err)
	}
	keys := []string{s.callKey(rec.ID), s.indexKey()}
	created, err := createCallScript.Run(ctx, s.client, keys, data, rec.CreatedAt.UnixNano(), rec.ID).Int()
	if err != nil {
		return fmt.Errorf("failed to store call: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("call %s: %w", rec.ID, ErrExists)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*CallRecord, error) {
	b, err := s.client.Get(ctx, s.callKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return decodeRecord(b)
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*CallRecord) error) (*CallRecord, error) {
	key := s.callKey(id)
	var out *CallRecord

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("call %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(b)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		rec.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal call: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update call %s: too many concurrent writers", id)
}

func (s *RedisStore) ListRecent(ctx context.Context, limit int) ([]*CallRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	if len(ids) == 0 {
		return []*CallRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.callKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load calls: %w", err)
	}

	out := make([]*CallRecord, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) ReserveRoom(ctx context.Context, room, callID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.roomKey(room), callID, s.roomTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve room: %w", err)
	}
	if ok {
		return true, nil
	}
	owner, err := s.client.Get(ctx, s.roomKey(room)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check room: %w", err)
	}
	return owner == callID, nil
}

func (s *RedisStore) ReleaseRoom(ctx context.Context, room, callID string) error {
	if err := releaseRoomScript.Run(ctx, s.client, []string{s.roomKey(room)}, callID).Err(); err != nil {
		return fmt.Errorf("failed to release room: %w", err)
	}
	return nil
}

func decodeRecord(b []byte) (*CallRecord, error) {
	var rec CallRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call: %w", err)
	}
	return &rec, nil
}
