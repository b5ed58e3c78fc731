package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/rpsarena/logger"
)

const changeChannel = "changes"

// RedisStore maps every document path to a Redis string key and announces
// changes on a pub/sub channel so that processes sharing the same Redis see
// each other's writes.
type RedisStore struct {
	client *redis.Client
	prefix string
	pubsub *redis.PubSub

	mutex  sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and starts the change listener.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return newRedisStore(ctx, client, opts.Prefix)
}

func newRedisStore(ctx context.Context, client *redis.Client, prefix string) (*RedisStore, error) {
	r := &RedisStore{
		client: client,
		prefix: prefix,
		subs:   make(map[uint64]*subscription),
		done:   make(chan struct{}),
	}

	r.pubsub = client.Subscribe(ctx, r.channel())
	if _, err := r.pubsub.Receive(ctx); err != nil {
		r.pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.listen(listenCtx)
	return r, nil
}

func (r *RedisStore) channel() string {
	return r.prefix + changeChannel
}

func (r *RedisStore) key(path string) string {
	return r.prefix + path
}

func (r *RedisStore) Write(ctx context.Context, path string, doc []byte) error {
	if err := validatePath(path); err != nil {
		return err
	}
	children, err := r.scan(ctx, path)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(children) > 0 {
			pipe.Del(ctx, children...)
		}
		pipe.Set(ctx, r.key(path), doc, 0)
		pipe.Publish(ctx, r.channel(), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", path, err)
	}
	return nil
}

func (r *RedisStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	doc, err := r.client.Get(ctx, r.key(path)).Bytes()
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis read %s: %w", path, err)
	}

	keys, err := r.scan(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", path, err)
	}

	docs := make(map[string][]byte, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// removed between SCAN and MGET
			continue
		}
		docs[strings.TrimPrefix(keys[i], r.prefix)] = []byte(s)
	}
	tree := assemble(path, docs)
	if tree == nil {
		return nil, ErrNotFound
	}
	return tree, nil
}

func (r *RedisStore) Remove(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	keys, err := r.scan(ctx, path)
	if err != nil {
		return err
	}
	keys = append(keys, r.key(path))
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Publish(ctx, r.channel(), path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove %s: %w", path, err)
	}
	return nil
}

func (r *RedisStore) Subscribe(ctx context.Context, path string, fn Listener) (Unsubscribe, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	r.nextID++
	sub := newSubscription(r.nextID, path, fn)
	r.subs[sub.id] = sub
	r.mutex.Unlock()

	unsubscribe := func() {
		r.mutex.Lock()
		delete(r.subs, sub.id)
		r.mutex.Unlock()
		sub.stop()
	}

	value, err := r.Read(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		unsubscribe()
		return nil, err
	}
	sub.push(Snapshot{Path: path, Value: value})
	return unsubscribe, nil
}

func (r *RedisStore) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	<-r.done

	r.mutex.Lock()
	for id, sub := range r.subs {
		sub.stop()
		delete(r.subs, id)
	}
	r.mutex.Unlock()

	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *RedisStore) listen(ctx context.Context) {
	defer close(r.done)
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(ctx, msg.Payload)
		}
	}
}

func (r *RedisStore) dispatch(ctx context.Context, changed string) {
	r.mutex.RLock()
	affected := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if affects(sub.path, changed) {
			affected = append(affected, sub)
		}
	}
	r.mutex.RUnlock()

	for _, sub := range affected {
		value, err := r.Read(ctx, sub.path)
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.Log.Warnf("store: refresh %s after change to %s: %v", sub.path, changed, err)
			continue
		}
		sub.push(Snapshot{Path: sub.path, Value: value})
	}
}

// scan lists the keys strictly below path.
func (r *RedisStore) scan(ctx context.Context, path string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	match := escapeGlob(r.key(path)+"/") + "*"
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", path, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
