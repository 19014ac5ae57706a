// Package pemfile keeps the SSH host key of the admin console on disk.
package pemfile

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/zond/juicevox"

	gossh "golang.org/x/crypto/ssh"
)

const (
	defaultBits = 4096
)

type KeyParams struct {
	KeyPath       string
	SSHPubKeyPath string
	// Bits defaults to 4096.
	Bits int
}

// Generate writes a new RSA private key to KeyPath and its public half in
// authorized_keys format to SSHPubKeyPath.
func (k KeyParams) Generate() error {
	bits := k.Bits
	if bits == 0 {
		bits = defaultBits
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return juicevox.WithStack(err)
	}
	if err := os.WriteFile(k.KeyPath, pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
		}),
		0600,
	); err != nil {
		return juicevox.WithStack(err)
	}

	pub, err := gossh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return juicevox.WithStack(err)
	}
	if err := os.WriteFile(k.SSHPubKeyPath, gossh.MarshalAuthorizedKey(pub), 0600); err != nil {
		return juicevox.WithStack(err)
	}
	return nil
}

// Ensure loads the key at KeyPath, generating it first if it doesn't exist.
// The returned bool is true if the key was generated.
func (k KeyParams) Ensure() (gossh.Signer, bool, error) {
	created := false
	pemBytes, err := os.ReadFile(k.KeyPath)
	if os.IsNotExist(err) {
		if err := k.Generate(); err != nil {
			return nil, false, err
		}
		created = true
		if pemBytes, err = os.ReadFile(k.KeyPath); err != nil {
			return nil, false, juicevox.WithStack(err)
		}
	} else if err != nil {
		return nil, false, juicevox.WithStack(err)
	}
	signer, err := gossh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, false, juicevox.WithStack(err)
	}
	return signer, created, nil
}
