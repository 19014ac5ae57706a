// Package scripts loads the server and client halves of scripted behaviors
// from disk.
package scripts

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

const (
	ServerFile = "server.js"
	ClientFile = "client.js"

	defaultTTL     = time.Minute
	defaultMaxKeys = 1024
)

var (
	ErrInvalidName = errors.New("invalid behavior name")
)

// Pair is the source of one behavior. Server runs in the object sandbox,
// Client is shipped to clients verbatim.
type Pair struct {
	Server string
	Client string
}

// Source is anything that can produce the scripts of a named behavior.
type Source interface {
	Load(name string) (*Pair, error)
}

// ValidName returns whether name is usable as a behavior name, i.e. a single
// non hidden path element.
func ValidName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

// Store reads behaviors from <Dir>/<name>/server.js and <Dir>/<name>/client.js,
// caching what it read.
type Store struct {
	Dir   string
	cache cache.Cache[string, *Pair]
}

// NewStore returns a store rooted at dir caching pairs for ttl.
// A zero ttl uses a one minute default.
func NewStore(dir string, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &Store{
		Dir:   dir,
		cache: cache.NewCache[string, *Pair]().WithTTL(ttl).WithMaxKeys(defaultMaxKeys),
	}
}

func (s *Store) Load(name string) (*Pair, error) {
	if !ValidName(name) {
		return nil, errors.Wrapf(ErrInvalidName, "%q", name)
	}
	if pair, found := s.cache.Get(name); found {
		return pair, nil
	}
	server, err := os.ReadFile(filepath.Join(s.Dir, name, ServerFile))
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	// A behavior without a client half is valid, clients just get nothing to run.
	client, err := os.ReadFile(filepath.Join(s.Dir, name, ClientFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, juicevox.WithStack(err)
	}
	pair := &Pair{
		Server: string(server),
		Client: string(client),
	}
	s.cache.Set(name, pair, 0)
	return pair, nil
}

// Invalidate drops name from the cache.
func (s *Store) Invalidate(name string) {
	s.cache.Invalidate(name)
}

// Purge drops everything from the cache.
func (s *Store) Purge() {
	s.cache.Purge()
}

// Names lists the behaviors that have a server script.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	result := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || !ValidName(entry.Name()) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Dir, entry.Name(), ServerFile)); err == nil {
			result = append(result, entry.Name())
		}
	}
	return result, nil
}

// Save writes the pair of name to disk and invalidates the cached copy.
func (s *Store) Save(name string, pair *Pair) error {
	if !ValidName(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	dir := filepath.Join(s.Dir, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return juicevox.WithStack(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ServerFile), []byte(pair.Server), 0600); err != nil {
		return juicevox.WithStack(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ClientFile), []byte(pair.Client), 0600); err != nil {
		return juicevox.WithStack(err)
	}
	s.Invalidate(name)
	return nil
}
