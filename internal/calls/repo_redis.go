package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record as a hash {version, data} and maintains one set
// per conference number holding the ids of listening records.
//
// Version checks run inside Lua so the compare and the write are atomic.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	clock  func() time.Time
}

func NewRedisStore(rdb *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "orchestrator"
	}
	return &RedisStore{rdb: rdb, prefix: keyPrefix, clock: time.Now}
}

func (s *RedisStore) recordKey(id string) string {
	return fmt.Sprintf("%s:record:%s", s.prefix, id)
}

func (s *RedisStore) listeningKey(number string) string {
	return fmt.Sprintf("%s:listening:%s", s.prefix, number)
}

var createRecordScript = redis.NewScript(`
-- KEYS[1] = record hash
-- KEYS[2] = listening set for the conference number
-- ARGV[1] = payload, ARGV[2] = record id, ARGV[3] = "1" when listening
--
-- Returns 1 when created, 0 when the record already exists.
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'version', 1, 'data', ARGV[1])
if ARGV[3] == '1' then
  redis.call('SADD', KEYS[2], ARGV[2])
end
return 1
`)

var updateRecordScript = redis.NewScript(`
-- KEYS[1] = record hash
-- KEYS[2] = listening set for the conference number
-- ARGV[1] = expected version, ARGV[2] = payload, ARGV[3] = record id, ARGV[4] = "1" when listening
--
-- Returns:
--  1 if written
--  0 on version conflict
-- -1 if the record does not exist
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur then
  return -1
end
if tonumber(cur) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', tonumber(cur) + 1, 'data', ARGV[2])
if ARGV[4] == '1' then
  redis.call('SADD', KEYS[2], ARGV[3])
else
  redis.call('SREM', KEYS[2], ARGV[3])
end
return 1
`)

var deleteRecordScript = redis.NewScript(`
-- KEYS[1] = record hash, KEYS[2] = listening set; ARGV[1] = record id
local n = redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return n
`)

func (s *RedisStore) Get(ctx context.Context, id string) (CallRecord, error) {
	vals, err := s.rdb.HMGet(ctx, s.recordKey(id), "version", "data").Result()
	if err != nil {
		return CallRecord{}, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return CallRecord{}, ErrNotFound
	}
	data, ok := vals[1].(string)
	if !ok {
		return CallRecord{}, fmt.Errorf("decode record %s: unexpected payload type %T", id, vals[1])
	}
	var rec CallRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return CallRecord{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	var version int64
	if v, ok := vals[0].(string); ok {
		if _, err := fmt.Sscan(v, &version); err != nil {
			return CallRecord{}, fmt.Errorf("decode version of %s: %w", id, err)
		}
	}
	rec.Version = version
	return rec, nil
}

func (s *RedisStore) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if err := rec.Validate(); err != nil {
		return CallRecord{}, err
	}
	now := s.clock().UTC()
	rec = rec.Clone()
	rec.Version = 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return CallRecord{}, fmt.Errorf("encode record: %w", err)
	}
	keys := []string{s.recordKey(rec.ID), s.listeningKey(rec.ConferencePhoneNumber)}
	res, err := createRecordScript.Run(ctx, s.rdb, keys, data, rec.ID, flag(rec.Listening)).Int()
	if err != nil {
		return CallRecord{}, err
	}
	if res == 0 {
		return CallRecord{}, ErrAlreadyExists
	}
	return rec, nil
}

func (s *RedisStore) UpdateIfVersion(ctx context.Context, id string, version int64, rec CallRecord) (CallRecord, error) {
	rec = rec.Clone()
	rec.ID = id
	rec.Version = version + 1
	rec.UpdatedAt = s.clock().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return CallRecord{}, fmt.Errorf("encode record: %w", err)
	}
	keys := []string{s.recordKey(id), s.listeningKey(rec.ConferencePhoneNumber)}
	res, err := updateRecordScript.Run(ctx, s.rdb, keys, version, data, id, flag(rec.Listening)).Int()
	if err != nil {
		return CallRecord{}, err
	}
	switch res {
	case 1:
		return rec, nil
	case 0:
		return CallRecord{}, ErrVersionConflict
	default:
		return CallRecord{}, ErrNotFound
	}
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	keys := []string{s.recordKey(id), s.listeningKey(rec.ConferencePhoneNumber)}
	n, err := deleteRecordScript.Run(ctx, s.rdb, keys, id).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListListening(ctx context.Context, conferenceNumber string) ([]CallRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.listeningKey(conferenceNumber)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out []CallRecord
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Stale index entry; the record was deleted under us.
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Listening {
			out = append(out, rec)
		}
	}
	return out, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
