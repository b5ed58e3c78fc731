package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/rpsarena/logger"
)

// Get decodes the document at path. The bool is false when the path is absent.
func Get[T any](ctx context.Context, s Store, path string) (*T, bool, error) {
	raw, err := s.Read(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return &v, true, nil
}

func Put(ctx context.Context, s Store, path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return s.Write(ctx, path, raw)
}

// List decodes every child of a collection. An absent collection yields an
// empty map.
func List[T any](ctx context.Context, s Store, collection string) (map[string]T, error) {
	raw, err := s.Read(ctx, collection)
	if errors.Is(err, ErrNotFound) {
		return map[string]T{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeCollection[T](collection, raw)
}

// Update reads path, hands the current value (nil when absent) to fn and
// writes back whatever fn returns. A nil result skips the write. The
// read-modify-write is not atomic: a concurrent writer can still win.
func Update[T any](ctx context.Context, s Store, path string, fn func(cur *T) *T) (*T, error) {
	cur, _, err := Get[T](ctx, s, path)
	if err != nil {
		return nil, err
	}
	next := fn(cur)
	if next == nil {
		return cur, nil
	}
	if err := Put(ctx, s, path, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Watch subscribes to a single document. fn receives nil once the document
// is removed. Undecodable values are logged and skipped.
func Watch[T any](ctx context.Context, s Store, path string, fn func(*T)) (Unsubscribe, error) {
	return s.Subscribe(ctx, path, func(snap Snapshot) {
		if !snap.Exists() {
			fn(nil)
			return
		}
		var v T
		if err := json.Unmarshal(snap.Value, &v); err != nil {
			logger.Log.Warnf("store: skipping undecodable value at %s: %v", snap.Path, err)
			return
		}
		fn(&v)
	})
}

// WatchAll subscribes to a whole collection.
func WatchAll[T any](ctx context.Context, s Store, collection string, fn func(map[string]T)) (Unsubscribe, error) {
	return s.Subscribe(ctx, collection, func(snap Snapshot) {
		if !snap.Exists() {
			fn(map[string]T{})
			return
		}
		items, err := decodeCollection[T](snap.Path, snap.Value)
		if err != nil {
			logger.Log.Warnf("store: skipping undecodable collection %s: %v", snap.Path, err)
			return
		}
		fn(items)
	})
}

// decodeCollection drops individual children that fail to decode instead of
// failing the whole collection.
func decodeCollection[T any](collection string, raw []byte) (map[string]T, error) {
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	items := make(map[string]T, len(children))
	for key, child := range children {
		var v T
		if err := json.Unmarshal(child, &v); err != nil {
			logger.Log.Warnf("store: skipping malformed %s/%s: %v", collection, key, err)
			continue
		}
		items[key] = v
	}
	return items, nil
}
