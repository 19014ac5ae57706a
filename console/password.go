package console

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"golang.org/x/crypto/argon2"
)

const (
	passwordTime    = 1
	passwordMemory  = 64 * 1024 // KiB
	passwordThreads = 4
	passwordKeyLen  = 32
	passwordSaltLen = 16
)

var (
	ErrPasswordHash = errors.New("malformed password hash")
)

var b64 = base64.RawStdEncoding

// PasswordHash is an argon2id key with the parameters it was derived with.
// Its string form is the PHC format $argon2id$v=19$m=..,t=..,p=..$salt$key.
type PasswordHash struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	Salt    []byte
	Key     []byte
}

// NewPasswordHash derives a hash of password with a fresh salt.
func NewPasswordHash(password string) (*PasswordHash, error) {
	h := &PasswordHash{
		Memory:  passwordMemory,
		Time:    passwordTime,
		Threads: passwordThreads,
		Salt:    make([]byte, passwordSaltLen),
	}
	if _, err := rand.Read(h.Salt); err != nil {
		return nil, juicevox.WithStack(err)
	}
	h.Key = h.derive(password, passwordKeyLen)
	return h, nil
}

func (h *PasswordHash) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.Salt, h.Time, h.Memory, h.Threads, keyLen)
}

// ParsePasswordHash parses the string form of a PasswordHash.
func ParsePasswordHash(s string) (*PasswordHash, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return nil, errors.Wrap(ErrPasswordHash, "not an argon2id PHC string")
	}
	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errors.Wrapf(ErrPasswordHash, "version %q", fields[2])
	}
	h := &PasswordHash{}
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Time, &h.Threads); err != nil || n != 3 {
		return nil, errors.Wrapf(ErrPasswordHash, "parameters %q", fields[3])
	}
	if h.Time == 0 || h.Threads == 0 {
		return nil, errors.Wrapf(ErrPasswordHash, "parameters %q", fields[3])
	}
	var err error
	if h.Salt, err = b64.DecodeString(fields[4]); err != nil {
		return nil, errors.Wrap(ErrPasswordHash, "salt")
	}
	if h.Key, err = b64.DecodeString(fields[5]); err != nil || len(h.Key) == 0 {
		return nil, errors.Wrap(ErrPasswordHash, "key")
	}
	return h, nil
}

func (h *PasswordHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Time, h.Threads,
		b64.EncodeToString(h.Salt), b64.EncodeToString(h.Key))
}

// Verify reports whether password derives the same key.
func (h *PasswordHash) Verify(password string) bool {
	return subtle.ConstantTimeCompare(h.derive(password, uint32(len(h.Key))), h.Key) == 1
}
