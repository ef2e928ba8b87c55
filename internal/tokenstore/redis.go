package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	bindStatusNotFound int64 = 0
	bindStatusBound    int64 = 1
	bindStatusTaken    int64 = 2
)

// KEYS[1] token hash. ARGV[1] device id, ARGV[2] registered_at.
const bindScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local current = redis.call("HGET", KEYS[1], "device_id")
if current then
  local trimmed = string.lower(string.gsub(current, "^%s*(.-)%s*$", "%1"))
  if trimmed ~= "" and trimmed ~= "nan" and trimmed ~= "none" and trimmed ~= "null" then
    return {2, current, redis.call("HGET", KEYS[1], "registered_at") or ""}
  end
end
redis.call("HSET", KEYS[1], "device_id", ARGV[1], "registered_at", ARGV[2])
return {1}
`

// KEYS[1] token hash, KEYS[2] index set. ARGV[1] token, ARGV[2] created_at.
const issueScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "device_id", "", "registered_at", "", "created_at", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`

// KEYS[1] token hash.
const resetScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "device_id", "", "registered_at", "")
return 1
`

var (
	bindLua  = redis.NewScript(bindScript)
	issueLua = redis.NewScript(issueScript)
	resetLua = redis.NewScript(resetScript)
)

type redisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore keeps one hash per token under "<prefix>:token:<token>" and
// an index set "<prefix>:tokens".
func NewRedisStore(rdb redis.UniversalClient, prefix string) Store {
	if prefix == "" {
		prefix = "synapse"
	}
	return &redisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *redisStore) tokenKey(token string) string {
	return s.prefix + ":token:" + token
}

func (s *redisStore) indexKey() string {
	return s.prefix + ":tokens"
}

func (s *redisStore) ReadAll(ctx context.Context) ([]Record, error) {
	tokens, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	sort.Strings(tokens)

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, s.tokenKey(token))
	}
	if len(tokens) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, unavailable(err)
		}
	}

	out := make([]Record, 0, len(tokens))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, decodeRecord(tokens[i], fields))
	}
	return out, nil
}

func (s *redisStore) Get(ctx context.Context, token string) (Record, error) {
	fields, err := s.rdb.HGetAll(ctx, s.tokenKey(token)).Result()
	if err != nil {
		return Record{}, unavailable(err)
	}
	if len(fields) == 0 {
		return Record{}, ErrTokenNotFound
	}
	return decodeRecord(token, fields), nil
}

func (s *redisStore) Bind(ctx context.Context, token, deviceID string, at time.Time) (Record, error) {
	at = at.UTC()
	res, err := bindLua.Run(ctx, s.rdb, []string{s.tokenKey(token)}, deviceID, at.Format(time.RFC3339Nano)).Slice()
	if err != nil {
		return Record{}, unavailable(err)
	}
	if len(res) == 0 {
		return Record{}, unavailable(errors.New("empty bind script reply"))
	}
	status, _ := res[0].(int64)

	switch status {
	case bindStatusNotFound:
		return Record{}, ErrTokenNotFound
	case bindStatusTaken:
		r := Record{Token: token}
		if len(res) > 1 {
			r.DeviceID = NormalizeDeviceID(fmt.Sprint(res[1]))
		}
		if len(res) > 2 {
			r.RegisteredAt = parseTime(fmt.Sprint(res[2]))
		}
		return r, ErrAlreadyBound
	case bindStatusBound:
		return s.Get(ctx, token)
	default:
		return Record{}, unavailable(fmt.Errorf("unexpected bind status %d", status))
	}
}

func (s *redisStore) Reset(ctx context.Context, token string) error {
	n, err := resetLua.Run(ctx, s.rdb, []string{s.tokenKey(token)}).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *redisStore) Issue(ctx context.Context, token string) error {
	created := s.now().UTC().Format(time.RFC3339Nano)
	n, err := issueLua.Run(ctx, s.rdb, []string{s.tokenKey(token), s.indexKey()}, token, created).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrTokenExists
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, token string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.tokenKey(token))
		pipe.SRem(ctx, s.indexKey(), token)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	if del.Val() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}

func decodeRecord(token string, fields map[string]string) Record {
	r := Record{
		Token:     token,
		DeviceID:  NormalizeDeviceID(fields["device_id"]),
		CreatedAt: parseTime(fields["created_at"]),
	}
	if r.DeviceID != "" {
		r.RegisteredAt = parseTime(fields["registered_at"])
	}
	return r
}

func parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
