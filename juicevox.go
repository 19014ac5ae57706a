package juicevox

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/pkg/errors"
)

type contextKey int

var (
	mainContext contextKey = 0
)

func IsMainContext(ctx context.Context) bool {
	val := ctx.Value(mainContext)
	if val == nil {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

func MakeMainContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, mainContext, true)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(stackTracer); !ok {
		return errors.WithStack(err)
	}
	return err
}

func StackTrace(err error) string {
	buf := &bytes.Buffer{}
	if err, ok := err.(stackTracer); ok {
		for _, f := range err.StackTrace() {
			fmt.Fprintf(buf, "%+v\n", f)
		}
	}
	return buf.String()
}

// SyncMap is a mutex guarded map, used for registries touched from many goroutines.
type SyncMap[K comparable, V any] struct {
	m     map[K]V
	mutex sync.RWMutex
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: map[K]V{},
	}
}

func (s *SyncMap[K, V]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.m)
}

func (s *SyncMap[K, V]) Values() iter.Seq[V] {
	return func(yield func(v V) bool) {
		s.mutex.RLock()
		values := make([]V, 0, len(s.m))
		for _, v := range s.m {
			values = append(values, v)
		}
		s.mutex.RUnlock()
		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}
}

func (s *SyncMap[K, V]) GetHas(key K) (V, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, found := s.m[key]
	return v, found
}

func (s *SyncMap[K, V]) Set(key K, value V) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.m[key] = value
}

func (s *SyncMap[K, V]) Del(key K) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.m, key)
}
