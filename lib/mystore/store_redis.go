package mystore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
)

type redisStore[T any] struct {
	sync.Mutex
	client *redis.Client
	kind   string
}

func newRedisStore[T any](c context.Context) (*redisStore[T], func(), error) {
	client := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	err := client.Ping(c).Err()
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %s", err)
	}

	return &redisStore[T]{
			client: client,
			kind:   kindOf[T](),
		}, func() {
			client.Close()
		}, nil
}

// RunInTransaction serializes writers within this process only. Good enough
// for the single-writer-per-tab session model, not for contended entities.
func (s *redisStore[T]) RunInTransaction(c context.Context, f func(c context.Context) error) error {
	s.Lock()
	defer s.Unlock()

	ctx := context.WithValue(c, ctxTransactionKey{}, true)

	return f(ctx)
}

func (s *redisStore[T]) key(uid string) string {
	return s.kind + "/" + uid
}

func (s *redisStore[T]) Put(c context.Context, uid string, value T) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("error serializing entity %s with uid %s: %s", s.kind, uid, err)
	}

	err = s.client.Set(c, s.key(uid), jsonBytes, 0).Err()
	if err != nil {
		return fmt.Errorf("error storing entity %s with uid %s: %s", s.kind, uid, err)
	}

	return nil
}

func (s *redisStore[T]) Get(c context.Context, uid string) (T, bool, error) {
	value := new(T)

	jsonBytes, err := s.client.Get(c, s.key(uid)).Bytes()
	if err == redis.Nil {
		return *value, false, nil
	}
	if err != nil {
		return *value, false, fmt.Errorf("error fetching entity %s with uid %s: %s", s.kind, uid, err)
	}

	err = json.Unmarshal(jsonBytes, value)
	if err != nil {
		return *value, false, fmt.Errorf("error deserializing entity %s with uid %s: %s", s.kind, uid, err)
	}

	return *value, true, nil
}

func (s *redisStore[T]) Remove(c context.Context, uid string) error {
	err := s.client.Del(c, s.key(uid)).Err()
	if err != nil {
		return fmt.Errorf("error removing entity %s with uid %s: %s", s.kind, uid, err)
	}

	return nil
}

func (s *redisStore[T]) List(c context.Context) ([]T, error) {
	result := []T{}

	iter := s.client.Scan(c, 0, s.kind+"/*", 100).Iterator()
	for iter.Next(c) {
		jsonBytes, err := s.client.Get(c, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("error fetching entity %s: %s", iter.Val(), err)
		}

		value := new(T)
		err = json.Unmarshal(jsonBytes, value)
		if err != nil {
			return nil, fmt.Errorf("error deserializing entity %s: %s", iter.Val(), err)
		}
		result = append(result, *value)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error listing entities %s: %s", s.kind, err)
	}

	return result, nil
}

// Query falls back to a full list: redis has no secondary indexes here, so
// filters and ordering are left to the caller. The outbox tolerates this
// because its envelopes are deduplicated by checksum UID.
func (s *redisStore[T]) Query(c context.Context, filters []Filter, orderByField string) ([]T, error) {
	return s.List(c)
}
