// Package console serves an SSH admin console operating on a running
// environment.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/game"
	"github.com/zond/juicevox/storage"
	"golang.org/x/term"

	gossh "golang.org/x/crypto/ssh"
)

const (
	consoleUser = "admin"
)

type Options struct {
	Env          *game.Environment
	// PasswordHash of the admin user. Nil rejects every login.
	PasswordHash *PasswordHash
	// Save persists the world and returns the number of objects stored.
	Save func(ctx context.Context) (int, error)
	// Behaviors lists the scripted behaviors available to /spawn.
	Behaviors func() ([]string, error)
	Audit     *storage.AuditLogger
	Logger    *slog.Logger
	HostKey   gossh.Signer
	// LoginDelay is the time a host has to wait after a failed login, 10s by default.
	LoginDelay time.Duration
}

type Console struct {
	opts    Options
	limiter *loginRateLimiter
}

func New(ctx context.Context, opts Options) *Console {
	if opts.LoginDelay == 0 {
		opts.LoginDelay = loginAttemptInterval
	}
	return &Console{
		opts:    opts,
		limiter: newLoginRateLimiter(ctx, opts.LoginDelay),
	}
}

func (c *Console) audit(ctx context.Context, event string, data storage.AuditData) {
	if c.opts.Audit != nil {
		c.opts.Audit.Log(ctx, event, data)
	}
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// checkPassword is the password handler of the SSH server.
func (c *Console) checkPassword(ctx ssh.Context, password string) bool {
	host := remoteHost(ctx.RemoteAddr())
	c.limiter.waitIfNeeded(ctx, host)
	if ctx.User() != consoleUser || c.opts.PasswordHash == nil || !c.opts.PasswordHash.Verify(password) {
		c.limiter.recordFailure(host)
		c.audit(ctx, "LOGIN_FAILED", storage.AuditLoginFailed{User: ctx.User(), Remote: ctx.RemoteAddr().String()})
		c.opts.Logger.Warn("console login failed", "user", ctx.User(), "remote", ctx.RemoteAddr())
		return false
	}
	c.limiter.clearFailure(host)
	return true
}

// HandleSession runs the command loop of one console session.
func (c *Console) HandleSession(sess ssh.Session) {
	ctx := storage.WithSessionID(sess.Context())
	conn := &Connection{
		console: c,
		term:    term.NewTerminal(sess, "> "),
		ctx:     ctx,
	}
	c.audit(ctx, "LOGIN", storage.AuditLogin{User: sess.User(), Remote: sess.RemoteAddr().String()})
	defer c.audit(ctx, "SESSION_END", storage.AuditSessionEnd{User: sess.User()})
	if err := conn.Process(); err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(conn.term, "InternalServerError: %v\n", err)
		c.opts.Logger.Error("console session failed", "err", err, "stack", juicevox.StackTrace(err))
	}
}

// ListenAndServe serves the console on addr until ctx is done.
func (c *Console) ListenAndServe(ctx context.Context, addr string) error {
	srv := &ssh.Server{
		Addr:            addr,
		Handler:         c.HandleSession,
		PasswordHandler: c.checkPassword,
	}
	srv.AddHostKey(c.opts.HostKey)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	c.opts.Logger.Info("console listening", "addr", addr, "fingerprint", gossh.FingerprintSHA256(c.opts.HostKey.PublicKey()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return juicevox.WithStack(err)
	}
	return nil
}
