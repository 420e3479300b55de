// Package swarm implements the cluster data plane (component K): node
// identity, join tokens, cluster/service/task lifecycle, and a task
// reconciler whose TaskOps is compose's ContainerOps without List.
package swarm

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// NodeIdentity is a cluster member's ed25519 keypair, stored on disk as a
// PEM-encoded OpenSSH private key.
type NodeIdentity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

func generateNodeIdentity() (*NodeIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate node identity: %w", err)
	}
	return &NodeIdentity{Public: pub, Private: priv}, nil
}

// encodePrivateKeyToPEM marshals the key in OpenSSH form, then PEM-encodes
// it for on-disk storage.
func encodePrivateKeyToPEM(priv ed25519.PrivateKey) ([]byte, error) {
	block, err := ssh.MarshalPrivateKey(priv, "rune node key")
	if err != nil {
		return nil, fmt.Errorf("marshal node private key: %w", err)
	}
	return pem.EncodeToMemory(block), nil
}

// LoadOrCreateNodeIdentity reads an existing PEM-encoded identity from
// path, or generates and persists a new one (mode 0600) if path cannot be
// read.
func LoadOrCreateNodeIdentity(path string) (*NodeIdentity, error) {
	if raw, err := os.ReadFile(path); err == nil {
		return decodeNodeIdentity(raw)
	}

	id, err := generateNodeIdentity()
	if err != nil {
		return nil, err
	}
	pemBytes, err := encodePrivateKeyToPEM(id.Private)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write node identity to %s: %w", path, err)
	}
	return id, nil
}

func decodeNodeIdentity(raw []byte) (*NodeIdentity, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in node identity file")
	}
	signer, err := ssh.ParseRawPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse node identity: %w", err)
	}
	priv, ok := signer.(*ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("node identity key is not ed25519")
	}
	return &NodeIdentity{Public: (*priv).Public().(ed25519.PublicKey), Private: *priv}, nil
}

func randomHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random hex: %w", err)
	}
	return hex.EncodeToString(b), nil
}
