package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/zond/juicevox"
)

const (
	MainSession = "main"
)

type sessionIDKey struct{}

// WithSessionID returns a context carrying a fresh session id.
func WithSessionID(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, uuid.NewString())
}

// SessionID returns the session id of ctx. Contexts of the server process
// itself report MainSession.
func SessionID(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id, true
	}
	if juicevox.IsMainContext(ctx) {
		return MainSession, true
	}
	return "", false
}

// AuditLogger writes administrative events to a file as JSON lines.
type AuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	logger *slog.Logger
}

// AuditData is the interface for typed audit event data.
type AuditData interface {
	auditData()
}

type AuditEntry struct {
	Time      string    `json:"time"`
	SessionID string    `json:"session_id,omitempty"`
	Event     string    `json:"event"`
	Data      AuditData `json:"data"`
}

type AuditLogin struct {
	User   string `json:"user"`
	Remote string `json:"remote"`
}

func (AuditLogin) auditData() {}

type AuditLoginFailed struct {
	User   string `json:"user"`
	Remote string `json:"remote"`
}

func (AuditLoginFailed) auditData() {}

type AuditSessionEnd struct {
	User string `json:"user"`
}

func (AuditSessionEnd) auditData() {}

// AuditSpawn is logged when an object is spawned from the console.
type AuditSpawn struct {
	ID       uint16     `json:"id"`
	Type     string     `json:"type"`
	Behavior string     `json:"behavior,omitempty"`
	Pos      [3]float64 `json:"pos"`
}

func (AuditSpawn) auditData() {}

type AuditRemove struct {
	ID uint16 `json:"id"`
}

func (AuditRemove) auditData() {}

type AuditSetNode struct {
	Pos     [3]int16 `json:"pos"`
	Content uint16   `json:"content"`
}

func (AuditSetNode) auditData() {}

type AuditSave struct {
	Objects int `json:"objects"`
}

func (AuditSave) auditData() {}

// NewAuditLogger appends to the file at path. Write failures are reported to logger.
func NewAuditLogger(path string, logger *slog.Logger) (*AuditLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	return &AuditLogger{
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger,
	}, nil
}

// Log writes an entry and syncs the file.
// Panics if encoding fails, since that means one of the AuditData types is broken.
func (a *AuditLogger) Log(ctx context.Context, event string, data AuditData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sessionID, _ := SessionID(ctx)
	if err := a.enc.Encode(AuditEntry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Event:     event,
		Data:      data,
	}); err != nil {
		panic(fmt.Sprintf("audit log encode failed: %v", err))
	}
	if err := a.file.Sync(); err != nil {
		a.logger.Warn("audit log sync failed", "err", err)
	}
}

func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return juicevox.WithStack(a.file.Close())
}
