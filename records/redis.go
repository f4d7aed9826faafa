package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusMissing  int64 = 0
	statusOK       int64 = 1
	statusConsumed int64 = 2
	statusExpired  int64 = 3
	statusConflict int64 = 4
)

const insertRecordLua = `
local function insert_record(rec_key, seq_key, user_key, exp_key, id_prefix, hash, jti, user_id, subject, expires_ms, created_ms, keep_until_ms)
  if redis.call("EXISTS", rec_key) == 1 then
    return -1
  end
  local id = redis.call("INCR", seq_key)
  redis.call("HSET", rec_key,
    "id", id, "jti", jti, "user_id", user_id, "subject", subject,
    "expires_at", expires_ms, "created_at", created_ms, "used", "0", "revoked", "0")
  redis.call("PEXPIREAT", rec_key, keep_until_ms)
  redis.call("SET", id_prefix .. id, hash)
  redis.call("PEXPIREAT", id_prefix .. id, keep_until_ms)
  redis.call("SADD", user_key, hash)
  redis.call("ZADD", exp_key, expires_ms, hash)
  return id
end
`

var insertScript = redis.NewScript(insertRecordLua + `
return insert_record(KEYS[1], KEYS[2], KEYS[3], KEYS[4], ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8])
`)

var markUsedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local f = redis.call("HMGET", KEYS[1], "used", "revoked", "expires_at")
if f[1] == "1" or f[2] == "1" then
  return 2
end
if tonumber(f[3]) <= tonumber(ARGV[1]) then
  return 3
end
redis.call("HSET", KEYS[1], "used", "1")
return 1
`)

var rotateScript = redis.NewScript(insertRecordLua + `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local f = redis.call("HMGET", KEYS[1], "used", "revoked", "expires_at")
if f[1] == "1" or f[2] == "1" then
  return {2}
end
if tonumber(f[3]) <= tonumber(ARGV[9]) then
  return {3}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {4}
end
redis.call("HSET", KEYS[1], "used", "1")
local id = insert_record(KEYS[2], KEYS[3], KEYS[4], KEYS[5], ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8])
return {1, id}
`)

var markRevokedScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`)

var revokeAllScript = redis.NewScript(`
local members = redis.call("SMEMBERS", KEYS[1])
local count = 0
for _, hash in ipairs(members) do
  local key = ARGV[1] .. hash
  if redis.call("EXISTS", key) == 1 then
    if redis.call("HGET", key, "revoked") ~= "1" then
      redis.call("HSET", key, "revoked", "1")
      count = count + 1
    end
  else
    redis.call("SREM", KEYS[1], hash)
  end
end
return count
`)

var deleteExpiredScript = redis.NewScript(`
local hashes = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = 0
for _, hash in ipairs(hashes) do
  local key = ARGV[2] .. hash
  local f = redis.call("HMGET", key, "id", "user_id", "expires_at")
  if f[3] and tonumber(f[3]) <= tonumber(ARGV[1]) then
    redis.call("DEL", key)
    redis.call("DEL", ARGV[3] .. f[1])
    redis.call("SREM", ARGV[4] .. f[2], hash)
    count = count + 1
  end
  redis.call("ZREM", KEYS[1], hash)
end
return count
`)

var deleteScript = redis.NewScript(`
local f = redis.call("HMGET", KEYS[1], "id", "user_id")
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
if f[1] then
  redis.call("DEL", ARGV[2] .. f[1])
  redis.call("SREM", ARGV[3] .. f[2], ARGV[1])
end
return 1
`)

var insertOneTimeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -1
end
local id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1],
  "id", id, "jti", ARGV[2], "user_id", ARGV[3], "subject", ARGV[4], "purpose", ARGV[5],
  "expires_at", ARGV[6], "created_at", ARGV[7], "used", "0")
redis.call("PEXPIREAT", KEYS[1], ARGV[8])
redis.call("ZADD", KEYS[3], ARGV[6], ARGV[1])
return id
`)

var consumeOneTimeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local f = redis.call("HMGET", KEYS[1], "purpose", "used", "expires_at")
if f[1] ~= ARGV[1] then
  return {4}
end
if f[2] == "1" then
  return {2}
end
if tonumber(f[3]) <= tonumber(ARGV[2]) then
  return {3}
end
redis.call("HSET", KEYS[1], "used", "1")
return {1, redis.call("HGETALL", KEYS[1])}
`)

var deleteExpiredOneTimeScript = redis.NewScript(`
local hashes = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local count = 0
for _, hash in ipairs(hashes) do
  local key = ARGV[2] .. hash
  local exp = redis.call("HGET", key, "expires_at")
  if exp and tonumber(exp) <= tonumber(ARGV[1]) then
    redis.call("DEL", key)
    count = count + 1
  end
  redis.call("ZREM", KEYS[1], hash)
end
return count
`)

// RedisStore is a Redis-backed Store, Rotator and OneTimeStore. Every state
// transition runs as a Lua script so concurrent redemptions serialize inside Redis.
//
// Records are kept for retention past their expiry so that late replays are
// reported as expired rather than unknown; Redis key expiry is only a safety net
// behind DeleteExpired.
type RedisStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a RedisStore. prefix sets the key namespace.
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "gt"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{redis: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) recordPrefix() string { return s.prefix + ":rt:" }

func (s *RedisStore) recordKey(hash string) string { return s.recordPrefix() + hash }

func (s *RedisStore) idPrefix() string { return s.prefix + ":rtid:" }

func (s *RedisStore) userPrefix() string { return s.prefix + ":rtu:" }

func (s *RedisStore) userKey(userID int64) string {
	return s.userPrefix() + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) seqKey() string { return s.prefix + ":rtseq" }

func (s *RedisStore) expiryKey() string { return s.prefix + ":rtexp" }

func (s *RedisStore) oneTimePrefix() string { return s.prefix + ":ot:" }

func (s *RedisStore) oneTimeSeqKey() string { return s.prefix + ":otseq" }

func (s *RedisStore) oneTimeExpiryKey() string { return s.prefix + ":otexp" }

func unixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *RedisStore) insertArgs(rec *Record) []interface{} {
	return []interface{}{
		s.idPrefix(),
		rec.TokenHash,
		rec.JTI,
		strconv.FormatInt(rec.UserID, 10),
		rec.Subject,
		unixMilli(rec.ExpiresAt),
		unixMilli(rec.CreatedAt),
		unixMilli(rec.ExpiresAt.Add(s.retention)),
	}
}

// Insert persists rec and assigns its ID.
func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	keys := []string{s.recordKey(rec.TokenHash), s.seqKey(), s.userKey(rec.UserID), s.expiryKey()}
	id, err := insertScript.Run(ctx, s.redis, keys, s.insertArgs(rec)...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if id < 0 {
		return ErrDuplicate
	}
	rec.ID = id
	return nil
}

// FindByToken loads the record stored under tokenHash.
func (s *RedisStore) FindByToken(ctx context.Context, tokenHash string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(tokenHash, fields)
}

// FindByID resolves the id index and loads the record.
func (s *RedisStore) FindByID(ctx context.Context, id int64) (*Record, error) {
	hash, err := s.redis.Get(ctx, s.idPrefix()+strconv.FormatInt(id, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.FindByToken(ctx, hash)
}

// ConditionalMarkUsed flips used to true if the record is still valid at now.
//
//	Performance: 1 Lua script (EXISTS + HMGET + HSET).
func (s *RedisStore) ConditionalMarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	status, err := markUsedScript.Run(ctx, s.redis, []string{s.recordKey(tokenHash)}, unixMilli(now)).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return status == statusOK, nil
}

// Rotate marks oldHash used and inserts next in one script.
func (s *RedisStore) Rotate(ctx context.Context, oldHash string, next *Record, now time.Time) error {
	keys := []string{
		s.recordKey(oldHash),
		s.recordKey(next.TokenHash),
		s.seqKey(),
		s.userKey(next.UserID),
		s.expiryKey(),
	}
	args := append(s.insertArgs(next), unixMilli(now))
	res, err := rotateScript.Run(ctx, s.redis, keys, args...).Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	status, _ := res[0].(int64)
	switch status {
	case statusOK:
		if len(res) > 1 {
			next.ID, _ = res[1].(int64)
		}
		return nil
	case statusMissing:
		return ErrNotFound
	case statusConflict:
		return ErrDuplicate
	default:
		return ErrNotValid
	}
}

// MarkRevoked sets the revoked flag. It reports false for unknown or already revoked records.
func (s *RedisStore) MarkRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := markRevokedScript.Run(ctx, s.redis, []string{s.recordKey(tokenHash)}).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// RevokeAllForUser revokes every record in the user's index and prunes dangling members.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	n, err := revokeAllScript.Run(ctx, s.redis, []string{s.userKey(userID)}, s.recordPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// DeleteExpired removes records expiring at or before before, using the expiry index.
func (s *RedisStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	n, err := deleteExpiredScript.Run(ctx, s.redis, []string{s.expiryKey()},
		unixMilli(before), s.recordPrefix(), s.idPrefix(), s.userPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// Delete removes a record and its index entries.
func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	err := deleteScript.Run(ctx, s.redis, []string{s.recordKey(tokenHash), s.expiryKey()},
		tokenHash, s.idPrefix(), s.userPrefix()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// InsertOneTime persists rec and assigns its ID.
func (s *RedisStore) InsertOneTime(ctx context.Context, rec *OneTimeRecord) error {
	keys := []string{s.oneTimePrefix() + rec.TokenHash, s.oneTimeSeqKey(), s.oneTimeExpiryKey()}
	id, err := insertOneTimeScript.Run(ctx, s.redis, keys,
		rec.TokenHash,
		rec.JTI,
		strconv.FormatInt(rec.UserID, 10),
		rec.Subject,
		rec.Purpose,
		unixMilli(rec.ExpiresAt),
		unixMilli(rec.CreatedAt),
		unixMilli(rec.ExpiresAt.Add(s.retention)),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if id < 0 {
		return ErrDuplicate
	}
	rec.ID = id
	return nil
}

// FindOneTime loads a one-time record without consuming it.
func (s *RedisStore) FindOneTime(ctx context.Context, tokenHash string) (*OneTimeRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.oneTimePrefix()+tokenHash).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeOneTime(tokenHash, fields)
}

// ConsumeOneTime atomically validates purpose, use and expiry and marks the record used.
func (s *RedisStore) ConsumeOneTime(ctx context.Context, tokenHash, purpose string, now time.Time) (*OneTimeRecord, error) {
	res, err := consumeOneTimeScript.Run(ctx, s.redis, []string{s.oneTimePrefix() + tokenHash}, purpose, unixMilli(now)).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	status, _ := res[0].(int64)
	switch status {
	case statusOK:
	case statusMissing:
		return nil, ErrNotFound
	case statusConflict:
		return nil, ErrPurposeMismatch
	default:
		return nil, ErrNotValid
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("%w: short consume reply", ErrUnavailable)
	}
	flat, _ := res[1].([]interface{})
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return decodeOneTime(tokenHash, fields)
}

// DeleteExpiredOneTime removes one-time records expiring at or before before.
func (s *RedisStore) DeleteExpiredOneTime(ctx context.Context, before time.Time) (int, error) {
	n, err := deleteExpiredOneTimeScript.Run(ctx, s.redis, []string{s.oneTimeExpiryKey()},
		unixMilli(before), s.oneTimePrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func decodeRecord(hash string, f map[string]string) (*Record, error) {
	id, err1 := strconv.ParseInt(f["id"], 10, 64)
	uid, err2 := strconv.ParseInt(f["user_id"], 10, 64)
	exp, err3 := strconv.ParseInt(f["expires_at"], 10, 64)
	created, err4 := strconv.ParseInt(f["created_at"], 10, 64)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, fmt.Errorf("corrupt refresh record: %w", err)
	}
	return &Record{
		ID:        id,
		TokenHash: hash,
		JTI:       f["jti"],
		UserID:    uid,
		Subject:   f["subject"],
		ExpiresAt: time.UnixMilli(exp),
		CreatedAt: time.UnixMilli(created),
		Used:      f["used"] == "1",
		Revoked:   f["revoked"] == "1",
	}, nil
}

func decodeOneTime(hash string, f map[string]string) (*OneTimeRecord, error) {
	id, err1 := strconv.ParseInt(f["id"], 10, 64)
	uid, err2 := strconv.ParseInt(f["user_id"], 10, 64)
	exp, err3 := strconv.ParseInt(f["expires_at"], 10, 64)
	created, err4 := strconv.ParseInt(f["created_at"], 10, 64)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return nil, fmt.Errorf("corrupt one-time record: %w", err)
	}
	return &OneTimeRecord{
		ID:        id,
		TokenHash: hash,
		JTI:       f["jti"],
		UserID:    uid,
		Subject:   f["subject"],
		Purpose:   f["purpose"],
		ExpiresAt: time.UnixMilli(exp),
		CreatedAt: time.UnixMilli(created),
		Used:      f["used"] == "1",
	}, nil
}

var (
	_ Store        = (*RedisStore)(nil)
	_ Rotator      = (*RedisStore)(nil)
	_ OneTimeStore = (*RedisStore)(nil)
)
