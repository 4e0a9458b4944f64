package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/msgid"
)

// RedisStore implements Store on redis. Users and message bodies are JSON
// values; each inbox is a lexicographic ZSET of message ids, which keeps
// time ordering for free since ids sort by creation bucket.
type RedisStore struct {
	client *redis.Client
}

const (
	redisUserPrefix  = "semp:user:"
	redisInboxPrefix = "semp:inbox:"
	redisMsgPrefix   = "semp:msg:"
	redisBanHostsKey = "semp:ban_hosts"
)

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Init(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) CreateUser(ctx context.Context, user models.UserRecord) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	// SetNX keeps the first registration for a name.
	return s.client.SetNX(ctx, redisUserPrefix+user.Name, data, 0).Err()
}

func (s *RedisStore) UpdateUser(ctx context.Context, name string, upd models.UpdateUserRequest) error {
	key := redisUserPrefix + name
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNoUser
		}
		if err != nil {
			return err
		}

		var user models.UserRecord
		if err := json.Unmarshal(data, &user); err != nil {
			return err
		}
		if err := applyUserUpdate(&user, upd); err != nil {
			return err
		}

		updated, err := json.Marshal(user)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) GetUser(ctx context.Context, name string) (models.UserRecord, error) {
	data, err := s.client.Get(ctx, redisUserPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.UserRecord{}, ErrNoUser
	}
	if err != nil {
		return models.UserRecord{}, err
	}

	var user models.UserRecord
	if err := json.Unmarshal(data, &user); err != nil {
		return models.UserRecord{}, err
	}
	return user, nil
}

func (s *RedisStore) StoreMessage(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisMsgPrefix+msg.ID, data, 0)
	pipe.ZAdd(ctx, redisInboxPrefix+msg.To, redis.Z{Score: 0, Member: msg.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetMessages(ctx context.Context, to string, since string, limit int) ([]models.Message, error) {
	min := "-"
	if since != "" {
		min = "(" + since
	}
	ids, err := s.client.ZRangeByLex(ctx, redisInboxPrefix+to, &redis.ZRangeBy{
		Min:   min,
		Max:   "+",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, redisMsgPrefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, nil
}

func (s *RedisStore) DeleteMessages(ctx context.Context, to string, ids []string) error {
	inbox := redisInboxPrefix + to
	for _, id := range ids {
		// ZRem reports whether the id was actually in this inbox, so
		// other users' messages stay untouched.
		removed, err := s.client.ZRem(ctx, inbox, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := s.client.Del(ctx, redisMsgPrefix+id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, age time.Duration) error {
	cutoff := msgid.ExpiryCutoff(age)

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisInboxPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		for _, inbox := range keys {
			ids, err := s.client.ZRangeByLex(ctx, inbox, &redis.ZRangeBy{
				Min: "-",
				Max: "(" + cutoff,
			}).Result()
			if err != nil {
				return err
			}
			for _, id := range ids {
				pipe := s.client.TxPipeline()
				pipe.ZRem(ctx, inbox, id)
				pipe.Del(ctx, redisMsgPrefix+id)
				if _, err := pipe.Exec(ctx); err != nil {
					return err
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *RedisStore) GetBanHosts(ctx context.Context) ([]string, error) {
	hosts, err := s.client.SMembers(ctx, redisBanHostsKey).Result()
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *RedisStore) SetBanHosts(ctx context.Context, hosts []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisBanHostsKey)
	if len(hosts) > 0 {
		members := make([]any, len(hosts))
		for i, h := range hosts {
			members[i] = h
		}
		pipe.SAdd(ctx, redisBanHostsKey, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
