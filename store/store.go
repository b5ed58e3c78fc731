// Package store defines the shared document store every client coordinates
// through. It offers per-path last-write-wins writes, one-shot reads, removes
// and subtree change subscriptions. There are no transactions and no
// compare-and-swap.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("store: document not found")
	ErrInvalidPath = errors.New("store: invalid path")
	ErrClosed      = errors.New("store: closed")
)

// Collections of the logical keyspace.
const (
	Players       = "players"
	Challenges    = "challenges"
	Notifications = "notifications"
	Rooms         = "rooms"
	WaitingList   = "waitingList"
)

// Snapshot is the value of a path when a change was observed. A nil Value
// means the path is absent.
type Snapshot struct {
	Path  string
	Value []byte
}

func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Listener receives snapshots for a subscribed path.
type Listener func(Snapshot)

// Unsubscribe stops a subscription. Calling it more than once is harmless.
type Unsubscribe func()

type Store interface {
	// Write replaces the whole document at path.
	Write(ctx context.Context, path string, doc []byte) error
	// Read returns the document at path, or the assembled subtree when path
	// names a collection. Absent paths yield ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)
	// Remove deletes path and everything below it.
	Remove(ctx context.Context, path string) error
	// Subscribe calls fn with the current value of path right away and again
	// after every change to path or its children.
	Subscribe(ctx context.Context, path string, fn Listener) (Unsubscribe, error)
	Close() error
}

// ValidateKey checks a single path segment such as a username.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidPath)
	}
	if strings.ContainsAny(key, "/.#$[]") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidPath, key)
	}
	return nil
}

func Join(collection, key string) string {
	return collection + "/" + key
}

func PlayerPath(username string) string { return Join(Players, username) }

func ChallengePath(to string) string { return Join(Challenges, to) }

func NotificationPath(to string) string { return Join(Notifications, to) }

func RoomPath(roomID string) string { return Join(Rooms, roomID) }

func WaitingPath(username string) string { return Join(WaitingList, username) }

// Ping writes and removes a throwaway document to prove the store is reachable.
func Ping(ctx context.Context, s Store) error {
	doc := []byte(fmt.Sprintf(`{"timestamp":%d}`, time.Now().UnixMilli()))
	if err := s.Write(ctx, "test", doc); err != nil {
		return fmt.Errorf("store ping write: %w", err)
	}
	if err := s.Remove(ctx, "test"); err != nil {
		return fmt.Errorf("store ping remove: %w", err)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// affects reports whether a change at changed is visible to a subscriber of watched.
func affects(watched, changed string) bool {
	return watched == changed ||
		strings.HasPrefix(changed, watched+"/") ||
		strings.HasPrefix(watched, changed+"/")
}
