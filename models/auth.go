// ABOUTME: Observer lists for auth events and sync state changes
// ABOUTME: Subscribe returns an unsubscribe handle; Publish fans out in registration order
package models

import (
	"sort"
	"sync"
)

// AuthEventKind describes an identity transition reported by a remote.
type AuthEventKind string

const (
	AuthSignedIn       AuthEventKind = "signed_in"
	AuthSessionRestore AuthEventKind = "session_restored"
	AuthSignedOut      AuthEventKind = "signed_out"
	AuthTokenRefreshed AuthEventKind = "token_refreshed"
)

// AuthEvent is published when the remote identity changes.
type AuthEvent struct {
	Kind AuthEventKind
	User *User
}

// Feed fans values out to subscribers.
type Feed[T any] struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(T)
}

// AuthFeed carries identity transitions from a remote backend.
type AuthFeed = Feed[AuthEvent]

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{listeners: make(map[int]func(T))}
}

// NewAuthFeed creates an empty auth feed.
func NewAuthFeed() *AuthFeed {
	return NewFeed[AuthEvent]()
}

// Subscribe registers fn and returns a function that removes it.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.listeners[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Publish delivers v to every subscriber in registration order.
func (f *Feed[T]) Publish(v T) {
	f.mu.RLock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}
