package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	refreshKeyPrefix     = "refresh:token:"
	refreshUserKeyPrefix = "refresh:user:"
)

// createScript stores a record unless the key is taken and indexes it under
// the user. KEYS[1] token key, KEYS[2] user index. ARGV: id, token, user_id,
// iat, exp, created_at, exp in unix milliseconds.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "token", ARGV[2], "user_id", ARGV[3], "iat", ARGV[4], "exp", ARGV[5], "created_at", ARGV[6])
redis.call("PEXPIREAT", KEYS[1], ARGV[7])
redis.call("SADD", KEYS[2], KEYS[1])
if redis.call("PTTL", KEYS[2]) < tonumber(ARGV[8]) then
	redis.call("PEXPIRE", KEYS[2], ARGV[8])
end
return 1
`)

// rotateScript swaps the old entry for the new one only if the old entry is
// still present, so concurrent rotations have a single winner.
// KEYS[1] old key, KEYS[2] new key, KEYS[3] user index. ARGV as createScript.
var rotateScript = redis.NewScript(`
if redis.call("DEL", KEYS[1]) == 0 then
	return 0
end
redis.call("SREM", KEYS[3], KEYS[1])
redis.call("HSET", KEYS[2], "id", ARGV[1], "token", ARGV[2], "user_id", ARGV[3], "iat", ARGV[4], "exp", ARGV[5], "created_at", ARGV[6])
redis.call("PEXPIREAT", KEYS[2], ARGV[7])
redis.call("SADD", KEYS[3], KEYS[2])
if redis.call("PTTL", KEYS[3]) < tonumber(ARGV[8]) then
	redis.call("PEXPIRE", KEYS[3], ARGV[8])
end
return 1
`)

// deleteScript removes a token key and its index entry. KEYS[1] token key.
var deleteScript = redis.NewScript(`
local userID = redis.call("HGET", KEYS[1], "user_id")
if not userID then
	return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", "` + refreshUserKeyPrefix + `" .. userID, KEYS[1])
return 1
`)

// RedisRefreshTokenRepository keeps refresh tokens in Redis hashes that expire
// together with the token.
type RedisRefreshTokenRepository struct {
	rdb redis.UniversalClient
}

func NewRedisRefreshTokenRepository(rdb redis.UniversalClient) *RedisRefreshTokenRepository {
	return &RedisRefreshTokenRepository{rdb: rdb}
}

func refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return refreshKeyPrefix + hex.EncodeToString(sum[:])
}

func refreshUserKey(userID string) string {
	return refreshUserKeyPrefix + userID
}

func scriptArgs(record types.RefreshTokenRecord) []any {
	fields := recordFields(record)
	return []any{
		fields["id"],
		fields["token"],
		fields["user_id"],
		fields["iat"],
		fields["exp"],
		fields["created_at"],
		record.ExpiresAt.UnixMilli(),
		time.Until(record.ExpiresAt).Milliseconds(),
	}
}

func (s *RedisRefreshTokenRepository) Create(ctx context.Context, record types.RefreshTokenRecord) (types.RefreshTokenRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now()
	created, err := createScript.Run(ctx, s.rdb,
		[]string{refreshKey(record.Token), refreshUserKey(record.UserID)},
		scriptArgs(record)...,
	).Int()
	if err != nil {
		return types.RefreshTokenRecord{}, err
	}
	if created == 0 {
		return types.RefreshTokenRecord{}, ErrConflict
	}
	return record, nil
}

func (s *RedisRefreshTokenRepository) GetByToken(ctx context.Context, token string) (types.RefreshTokenRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, refreshKey(token)).Result()
	if err != nil {
		return types.RefreshTokenRecord{}, err
	}
	if len(fields) == 0 || fields["token"] != token {
		return types.RefreshTokenRecord{}, ErrNotFound
	}
	record, err := parseRecord(fields)
	if err != nil {
		return types.RefreshTokenRecord{}, err
	}
	if !record.ExpiresAt.After(time.Now()) {
		return types.RefreshTokenRecord{}, ErrNotFound
	}
	return record, nil
}

func (s *RedisRefreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	n, err := deleteScript.Run(ctx, s.rdb, []string{refreshKey(token)}).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisRefreshTokenRepository) Rotate(ctx context.Context, oldToken string, next types.RefreshTokenRecord) (types.RefreshTokenRecord, error) {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	next.CreatedAt = time.Now()

	res, err := rotateScript.Run(ctx, s.rdb,
		[]string{refreshKey(oldToken), refreshKey(next.Token), refreshUserKey(next.UserID)},
		scriptArgs(next)...,
	).Int()
	if err != nil {
		return types.RefreshTokenRecord{}, err
	}
	if res == 0 {
		return types.RefreshTokenRecord{}, ErrNotFound
	}
	return next, nil
}

// DeleteByUserID revokes every refresh token indexed under userID.
func (s *RedisRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	indexKey := refreshUserKey(userID)
	keys, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	return err
}

// DeleteExpired is a no-op: Redis expires the keys itself.
func (s *RedisRefreshTokenRepository) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

func recordFields(record types.RefreshTokenRecord) map[string]string {
	return map[string]string{
		"id":         record.ID,
		"token":      record.Token,
		"user_id":    record.UserID,
		"iat":        strconv.FormatInt(record.IssuedAt.Unix(), 10),
		"exp":        strconv.FormatInt(record.ExpiresAt.Unix(), 10),
		"created_at": strconv.FormatInt(record.CreatedAt.UnixMilli(), 10),
	}
}

func parseRecord(fields map[string]string) (types.RefreshTokenRecord, error) {
	iat, err := strconv.ParseInt(fields["iat"], 10, 64)
	if err != nil {
		return types.RefreshTokenRecord{}, errors.New("refresh record: bad iat")
	}
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return types.RefreshTokenRecord{}, errors.New("refresh record: bad exp")
	}
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return types.RefreshTokenRecord{
		ID:        fields["id"],
		Token:     fields["token"],
		UserID:    fields["user_id"],
		IssuedAt:  time.Unix(iat, 0),
		ExpiresAt: time.Unix(exp, 0),
		CreatedAt: time.UnixMilli(createdAt),
	}, nil
}
