package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each record in a hash with one index key per token digest
// and a set of record ids per identity. Multi-key updates run as Lua scripts
// so they are atomic on a single Redis node; cluster mode is not supported.
// Every key expires with the refresh token.
//
// Layout (prefix defaults to "sessiond:"):
//
//	<prefix>session:<id>         hash of the record
//	<prefix>access:<digest>      record id
//	<prefix>refresh:<digest>     record id
//	<prefix>identity:<id>        set of record ids
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps rdb. The client is owned by the caller.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sessiond:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) recordKey(id string) string   { return s.prefix + "session:" + id }
func (s *RedisStore) accessKey(h string) string    { return s.prefix + "access:" + h }
func (s *RedisStore) refreshKey(h string) string   { return s.prefix + "refresh:" + h }
func (s *RedisStore) identityKey(id string) string { return s.prefix + "identity:" + id }

// KEYS: record, access, refresh, identity
// ARGV: id, identity_id, access_hash, refresh_hash, user_agent, ip, created_ms, expires_ms, now_ms
const redisInsertLua = `
local function insert(k, a)
  if redis.call('EXISTS', k[1], k[2], k[3]) > 0 then return 0 end
  redis.call('HSET', k[1], 'id', a[1], 'identity_id', a[2], 'access_hash', a[3], 'refresh_hash', a[4],
    'user_agent', a[5], 'ip', a[6], 'created_at', a[7], 'expires_at', a[8])
  redis.call('PEXPIREAT', k[1], a[8])
  redis.call('SET', k[2], a[1], 'PXAT', a[8])
  redis.call('SET', k[3], a[1], 'PXAT', a[8])
  redis.call('SADD', k[4], a[1])
  if redis.call('PTTL', k[4]) < tonumber(a[8]) - tonumber(a[9]) then
    redis.call('PEXPIREAT', k[4], a[8])
  end
  return 1
end
`

// ARGV[1]: prefix, ARGV[2]: record id
const redisRemoveLua = `
local function remove(prefix, id)
  local key = prefix .. 'session:' .. id
  local f = redis.call('HMGET', key, 'identity_id', 'access_hash', 'refresh_hash')
  if not f[1] then return 0 end
  redis.call('DEL', key, prefix .. 'access:' .. f[2], prefix .. 'refresh:' .. f[3])
  redis.call('SREM', prefix .. 'identity:' .. f[1], id)
  return 1
end
`

var (
	redisCreate = redis.NewScript(redisInsertLua + `
return insert(KEYS, ARGV)
`)

	redisDelete = redis.NewScript(redisRemoveLua + `
return remove(ARGV[1], ARGV[2])
`)

	// KEYS[1]: old refresh index, KEYS[2..5]: new record keys
	// ARGV[1]: prefix, ARGV[2..10]: new record fields
	redisRotate = redis.NewScript(redisInsertLua + redisRemoveLua + `
local old = redis.call('GET', KEYS[1])
if not old then return -1 end
local nk = {KEYS[2], KEYS[3], KEYS[4], KEYS[5]}
if redis.call('EXISTS', nk[1], nk[2], nk[3]) > 0 then return 0 end
remove(ARGV[1], old)
local a = {}
for i = 2, 10 do a[i - 1] = ARGV[i] end
insert(nk, a)
return old
`)
)

func (s *RedisStore) insertArgs(r Record, now time.Time) ([]string, []any) {
	keys := []string{
		s.recordKey(r.ID),
		s.accessKey(r.AccessTokenHash),
		s.refreshKey(r.RefreshTokenHash),
		s.identityKey(r.IdentityID),
	}
	args := []any{
		r.ID,
		r.IdentityID,
		r.AccessTokenHash,
		r.RefreshTokenHash,
		r.UserAgent,
		r.IP,
		r.CreatedAt.UnixMilli(),
		r.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
	}
	return keys, args
}

func (s *RedisStore) Create(ctx context.Context, r Record) (string, error) {
	if err := prepare(&r); err != nil {
		return "", err
	}
	keys, args := s.insertArgs(r, time.Now())
	n, err := redisCreate.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrRecordConflict
	}
	return r.ID, nil
}

// resolve maps f to a record id.
func (s *RedisStore) resolve(ctx context.Context, f Filter) (string, error) {
	var index string
	switch f.key {
	case keyID:
		return f.value, nil
	case keyAccess:
		index = s.accessKey(f.value)
	case keyRefresh:
		index = s.refreshKey(f.value)
	case keyIdentity:
		return s.liveMember(ctx, f.value)
	default:
		return "", ErrInvalidFilter
	}

	id, err := s.rdb.Get(ctx, index).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRecordNotFound
	}
	return id, err
}

// liveMember returns the first member of the identity set whose record still
// exists. Members left behind by expired records are dropped on the way.
func (s *RedisStore) liveMember(ctx context.Context, identityID string) (string, error) {
	key := s.identityKey(identityID)
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return "", err
	}
	for _, id := range members {
		n, err := s.rdb.Exists(ctx, s.recordKey(id)).Result()
		if err != nil {
			return "", err
		}
		if n > 0 {
			return id, nil
		}
		if err := s.rdb.SRem(ctx, key, id).Err(); err != nil {
			return "", err
		}
	}
	return "", ErrRecordNotFound
}

func (s *RedisStore) FindOne(ctx context.Context, f Filter) (Record, error) {
	if !f.valid() {
		return Record{}, ErrInvalidFilter
	}
	id, err := s.resolve(ctx, f)
	if err != nil {
		return Record{}, err
	}
	m, err := s.rdb.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(m) == 0 {
		return Record{}, ErrRecordNotFound
	}
	return redisRecord(m)
}

func (s *RedisStore) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if !f.valid() {
		return 0, ErrInvalidFilter
	}
	id, err := s.resolve(ctx, f)
	if errors.Is(err, ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return redisDelete.Run(ctx, s.rdb, []string{s.recordKey(id)}, s.prefix, id).Int64()
}

func (s *RedisStore) DeleteAll(ctx context.Context, f Filter) (int64, error) {
	if f.key != keyIdentity || !f.valid() {
		return 0, ErrInvalidFilter
	}
	members, err := s.rdb.SMembers(ctx, s.identityKey(f.value)).Result()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, id := range members {
		n, err := redisDelete.Run(ctx, s.rdb, []string{s.recordKey(id)}, s.prefix, id).Int64()
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			// Expired record; drop the dangling member.
			if err := s.rdb.SRem(ctx, s.identityKey(f.value), id).Err(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Rotate returns the replaced record id. The script answers -1 when the
// refresh index is gone and 0 when next collides with a live record.
func (s *RedisStore) Rotate(ctx context.Context, refreshHash string, next Record) (string, error) {
	if refreshHash == "" {
		return "", ErrInvalidFilter
	}
	if err := prepare(&next); err != nil {
		return "", err
	}

	nk, na := s.insertArgs(next, time.Now())
	keys := append([]string{s.refreshKey(refreshHash)}, nk...)
	args := append([]any{s.prefix}, na...)

	res, err := redisRotate.Run(ctx, s.rdb, keys, args...).Result()
	if err != nil {
		return "", err
	}
	switch v := res.(type) {
	case string:
		return v, nil
	case int64:
		if v == -1 {
			return "", ErrRecordNotFound
		}
		return "", ErrRecordConflict
	default:
		return "", fmt.Errorf("session: unexpected rotate reply %T", res)
	}
}

func redisRecord(m map[string]string) (Record, error) {
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return Record{}, err
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:               m["id"],
		IdentityID:       m["identity_id"],
		AccessTokenHash:  m["access_hash"],
		RefreshTokenHash: m["refresh_hash"],
		UserAgent:        m["user_agent"],
		IP:               m["ip"],
		CreatedAt:        time.UnixMilli(created).UTC(),
		ExpiresAt:        time.UnixMilli(expires).UTC(),
	}, nil
}
