// Package inmemory_repository is a process local keyed store used in dev mode and tests.
package inmemory_repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	str      string
	list     []string
	set      map[string]struct{}
	hash     map[string]string
	expireAt time.Time
}

// KeyStore keeps every key in a mutex guarded map. Expired keys are dropped lazily.
type KeyStore struct {
	mu   sync.Mutex
	data map[string]*entry
	subs map[string]map[chan string]struct{}
	now  func() time.Time
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		data: make(map[string]*entry),
		subs: make(map[string]map[chan string]struct{}),
		now:  time.Now,
	}
}

// SetClock replaces the time source.
func (s *KeyStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// get returns a live entry. Caller holds mu.
func (s *KeyStore) get(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *KeyStore) getOrCreate(key string) *entry {
	if e := s.get(key); e != nil {
		return e
	}
	e := &entry{}
	s.data[key] = e
	return e
}

func (s *KeyStore) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	if e.hash == nil {
		e.hash = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	return nil
}

func (s *KeyStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	if e := s.get(key); e != nil {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

func (s *KeyStore) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	e.list = append(e.list, values...)
	return nil
}

func (s *KeyStore) LPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	head := make([]string, 0, len(values)+len(e.list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	e.list = append(head, e.list...)
	return nil
}

func (s *KeyStore) LPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || len(e.list) == 0 {
		return "", false, nil
	}
	v := e.list[0]
	e.list = e.list[1:]
	if len(e.list) == 0 {
		delete(s.data, key)
	}
	return v, true, nil
}

func (s *KeyStore) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.get(key); e != nil {
		return int64(len(e.list)), nil
	}
	return 0, nil
}

func (s *KeyStore) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	if e.set == nil {
		e.set = make(map[string]struct{}, len(members))
	}
	var added int64
	for _, m := range members {
		if _, ok := e.set[m]; ok {
			continue
		}
		e.set[m] = struct{}{}
		added++
	}
	return added, nil
}

func (s *KeyStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for m := range e.set {
		out = append(out, m)
	}
	return out, nil
}

func (s *KeyStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{str: value}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *KeyStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return "", false, nil
	}
	return e.str, true, nil
}

func (s *KeyStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreate(key)
	n := int64(0)
	if e.str != "" {
		v, err := strconv.ParseInt(e.str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		n = v
	}
	n++
	e.str = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *KeyStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *KeyStore) Expire(_ context.Context, ttl time.Duration, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if e := s.get(k); e != nil {
			e.expireAt = s.now().Add(ttl)
		}
	}
	return nil
}

// Publish delivers to current subscribers. Slow subscribers miss messages.
func (s *KeyStore) Publish(_ context.Context, channel, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (s *KeyStore) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 64)
	s.mu.Lock()
	if s.subs[channel] == nil {
		s.subs[channel] = make(map[chan string]struct{})
	}
	s.subs[channel][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[channel], ch)
		if len(s.subs[channel]) == 0 {
			delete(s.subs, channel)
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *KeyStore) Ping(context.Context) error { return nil }

func (s *KeyStore) Close() error { return nil }
