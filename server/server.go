// Package server runs an environment: the tick loop, websocket clients, the
// admin console, script reloading and periodic saves.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/config"
	"github.com/zond/juicevox/console"
	"github.com/zond/juicevox/game"
	"github.com/zond/juicevox/mapdb"
	"github.com/zond/juicevox/object"
	"github.com/zond/juicevox/pemfile"
	"github.com/zond/juicevox/scripts"
	"github.com/zond/juicevox/storage"
	"github.com/zond/juicevox/wire"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	shutdownTimeout = 10 * time.Second
)

var (
	errBacklog = errors.New("session backlog overflow")
)

type Server struct {
	cfg          *config.Config
	passwordHash *console.PasswordHash
	logger       *slog.Logger
	store        *storage.Storage
	audit        *storage.AuditLogger
	scripts      *scripts.Store
	env          *game.Environment
	sessions     *juicevox.SyncMap[game.ClientID, *session]
	upgrader     websocket.Upgrader
}

// New opens the storage in cfg.DataDir, loads the map and the stored
// objects, and spawns the configured objects if nothing was stored.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var passwordHash *console.PasswordHash
	if cfg.ConsolePasswordHash != "" {
		var err error
		if passwordHash, err = console.ParsePasswordHash(cfg.ConsolePasswordHash); err != nil {
			return nil, errors.Wrap(err, "console_password_hash")
		}
	}
	for _, dir := range []string{cfg.DataDir, cfg.ScriptsDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, juicevox.WithStack(err)
		}
	}
	store, err := storage.New(ctx, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	audit, err := storage.NewAuditLogger(filepath.Join(cfg.DataDir, "audit.log"), logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	world := mapdb.New()
	if err := world.Load(store, logger); err != nil {
		audit.Close()
		store.Close()
		return nil, err
	}
	s := &Server{
		cfg:          cfg,
		passwordHash: passwordHash,
		logger:       logger,
		store:        store,
		audit:        audit,
		scripts:      scripts.NewStore(cfg.ScriptsDir, cfg.ScriptCacheTTL),
		sessions:     juicevox.NewSyncMap[game.ClientID, *session](),
	}
	s.env = game.New(world, logger, game.WithScripts(s.scripts), game.WithStaticStore(store))
	n, err := s.env.LoadStatic(ctx)
	if err != nil {
		s.release()
		return nil, err
	}
	if n == 0 {
		n = s.spawnConfigured()
	}
	logger.Info("environment ready", "objects", n, "blocks", len(world.BlockPositions()))
	return s, nil
}

// spawnConfigured spawns the objects listed in the configuration, at node
// positions. Failures are logged and skipped.
func (s *Server) spawnConfigured() int {
	spawned := 0
	for _, sp := range s.cfg.Spawn {
		pos := r3.Scale(object.BS, r3.Vec{X: sp.Pos[0], Y: sp.Pos[1], Z: sp.Pos[2]})
		var err error
		switch sp.Type {
		case "test":
			var data []byte
			if sp.Data != "" {
				if data, err = wire.SerializeShortString(sp.Data); err != nil {
					break
				}
			}
			_, err = s.env.Spawn(object.TypeTest, pos, data)
		case "script":
			_, err = s.env.SpawnScripted(sp.Script, pos, sp.Data)
		default:
			err = errors.Wrapf(game.ErrUnknownType, "%q", sp.Type)
		}
		if err != nil {
			s.logger.Warn("spawning configured object", "type", sp.Type, "script", sp.Script, "err", err)
			continue
		}
		spawned++
	}
	return spawned
}

func (s *Server) Env() *game.Environment {
	return s.env
}

// Save stores every live object and the changed map blocks.
func (s *Server) Save(ctx context.Context) (int, error) {
	n, err := s.env.SaveStatic(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.env.World().Save(s.store); err != nil {
		return 0, err
	}
	return n, nil
}

// Start serves until ctx is done or a component fails.
func (s *Server) Start(ctx context.Context) error {
	watcher, err := scripts.NewWatcher(s.scripts, s.logger, nil)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
	g.Go(func() error {
		return s.tickLoop(ctx)
	})
	g.Go(func() error {
		return s.saveLoop(ctx)
	})
	g.Go(func() error {
		return s.serveHTTP(ctx)
	})
	if s.passwordHash == nil {
		s.logger.Warn("no console password hash configured, console disabled")
	} else {
		signer, created, err := pemfile.KeyParams{
			KeyPath:       filepath.Join(s.cfg.DataDir, "console.pem"),
			SSHPubKeyPath: filepath.Join(s.cfg.DataDir, "console.pub"),
		}.Ensure()
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("generated console host key", "dir", s.cfg.DataDir)
		}
		c := console.New(ctx, console.Options{
			Env:          s.env,
			PasswordHash: s.passwordHash,
			Save:         s.Save,
			Behaviors:    s.scripts.Names,
			Audit:        s.audit,
			Logger:       s.logger,
			HostKey:      signer,
		})
		g.Go(func() error {
			return c.ListenAndServe(ctx, s.cfg.SSHAddr)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("server failed", "err", err, "stack", juicevox.StackTrace(err))
		return err
	}
	return nil
}

// Close saves the environment and releases everything the server holds.
func (s *Server) Close() error {
	ctx := juicevox.MakeMainContext(context.Background())
	n, err := s.Save(ctx)
	if err != nil {
		s.logger.Error("saving on close", "err", err)
	} else {
		s.logger.Info("saved", "objects", n)
		s.audit.Log(ctx, "SAVE", storage.AuditSave{Objects: n})
	}
	if rerr := s.release(); err == nil {
		err = rerr
	}
	return err
}

func (s *Server) release() error {
	var result error
	if err := s.env.Close(); err != nil && result == nil {
		result = err
	}
	if err := s.audit.Close(); err != nil && result == nil {
		result = err
	}
	if err := s.store.Close(); err != nil && result == nil {
		result = err
	}
	return result
}

func (s *Server) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dtime := now.Sub(last).Seconds()
			last = now
			s.tick(dtime)
		}
	}
}

// tick steps the environment and sends every session the objects it gained
// or lost and the messages of the objects it knows.
func (s *Server) tick(dtime float64) {
	msgs := s.env.Step(dtime)
	radius := s.cfg.ActiveObjectRadius * object.BS
	for sess := range s.sessions.Values() {
		removed, added, err := s.env.UpdateClient(sess.id, sess.position(), radius)
		if err != nil {
			// The session disconnected during the tick.
			continue
		}
		if len(removed) > 0 || len(added) > 0 {
			frame, err := EncodeRemoveAdd(removed, added)
			if err != nil {
				sess.logger.Error("encoding remove/add", "err", err)
			} else {
				sess.send(frame, true)
			}
		}
		reliable, unreliable := SplitReliable(s.env.KnownMessages(sess.id, msgs))
		s.sendMessages(sess, reliable, true)
		s.sendMessages(sess, unreliable, false)
	}
}

func (s *Server) sendMessages(sess *session, msgs []object.Message, reliable bool) {
	if len(msgs) == 0 {
		return
	}
	frame, skipped := EncodeMessages(msgs)
	for _, msg := range skipped {
		sess.logger.Warn("message too long", "id", msg.ID, "len", len(msg.Data))
	}
	if len(skipped) == len(msgs) {
		return
	}
	if !sess.send(frame, reliable) {
		sess.logger.Debug("dropped unreliable messages", "count", len(msgs))
	}
}

func (s *Server) saveLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Save(ctx)
			if err != nil {
				s.logger.Error("periodic save", "err", err, "stack", juicevox.StackTrace(err))
				continue
			}
			s.logger.Debug("saved", "objects", n)
		}
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWebsocket(ctx, w, r)
	})
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown", "err", err)
		}
	}()
	s.logger.Info("http listening", "addr", s.cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return juicevox.WithStack(err)
	}
	return nil
}

// handleWebsocket runs one client session until it disconnects or ctx is done.
func (s *Server) handleWebsocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade", "err", err, "remote", r.RemoteAddr)
		return
	}
	sess := newSession(game.ClientID(uuid.NewString()), conn, s.logger)
	s.env.AddClient(sess.id)
	s.sessions.Set(sess.id, sess)
	sess.logger.Info("session started", "remote", r.RemoteAddr)
	defer func() {
		s.sessions.Del(sess.id)
		s.env.RemoveClient(sess.id)
		conn.Close()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.writeLoop(ctx)
	})
	g.Go(func() error {
		return sess.readLoop()
	})
	g.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})
	err = g.Wait()
	sess.logger.Info("session ended", "err", err)
}
