package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil/base58"

	"github.com/fluencelabs/aquavm-sub001/internal/ir"
)

// KeyFormat selects the signature scheme of a key.
type KeyFormat uint32

const (
	// Ed25519 keys are created from a 32-byte seed.
	Ed25519 KeyFormat = 0

	// Secp256k1 keys are created from a 32-byte scalar.
	Secp256k1 KeyFormat = 1
)

// SecretSize is the length of the secret accepted by KeyPairFromSecret.
const SecretSize = 32

func (f KeyFormat) String() string {
	switch f {
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("KeyFormat(%d)", uint32(f))
	}
}

// ParseKeyFormat accepts "ed25519" or "secp256k1".
func ParseKeyFormat(s string) (KeyFormat, error) {
	switch s {
	case "ed25519":
		return Ed25519, nil
	case "secp256k1":
		return Secp256k1, nil
	default:
		return 0, &KeyError{Reason: fmt.Sprintf("unknown key format %q", s)}
	}
}

// KeyPair is a private key of either format.
type KeyPair struct {
	format KeyFormat
	secret []byte
	ed     ed25519.PrivateKey
	secp   *btcec.PrivateKey
}

// NewKeyPair generates a random key pair.
func NewKeyPair(format KeyFormat) (*KeyPair, error) {
	return generate(format, rand.Reader)
}

func generate(format KeyFormat, r io.Reader) (*KeyPair, error) {
	switch format {
	case Ed25519:
		seed := make([]byte, SecretSize)
		if _, err := io.ReadFull(r, seed); err != nil {
			return nil, fmt.Errorf("generate ed25519 seed: %w", err)
		}
		return KeyPairFromSecret(format, seed)
	case Secp256k1:
		priv, err := btcec.NewPrivateKey(btcec.S256())
		if err != nil {
			return nil, fmt.Errorf("generate secp256k1 key: %w", err)
		}
		return KeyPairFromSecret(format, priv.Serialize())
	default:
		return nil, &KeyError{Reason: fmt.Sprintf("unsupported key format %d", format)}
	}
}

// KeyPairFromSecret rebuilds a key pair from its 32-byte secret.
func KeyPairFromSecret(format KeyFormat, secret []byte) (*KeyPair, error) {
	if len(secret) != SecretSize {
		return nil, &KeyError{Reason: fmt.Sprintf("secret must be %d bytes, got %d", SecretSize, len(secret))}
	}

	kp := &KeyPair{format: format, secret: append([]byte(nil), secret...)}
	switch format {
	case Ed25519:
		kp.ed = ed25519.NewKeyFromSeed(secret)
	case Secp256k1:
		priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), secret)
		if priv.D.Sign() == 0 || priv.D.Cmp(btcec.S256().N) >= 0 {
			return nil, &KeyError{Reason: "secp256k1 scalar out of range"}
		}
		kp.secp = priv
	default:
		return nil, &KeyError{Reason: fmt.Sprintf("unsupported key format %d", format)}
	}
	return kp, nil
}

// Format returns the key format.
func (k *KeyPair) Format() KeyFormat {
	return k.format
}

// Secret returns a copy of the 32-byte secret.
func (k *KeyPair) Secret() []byte {
	return append([]byte(nil), k.secret...)
}

// PublicKey returns the public half.
func (k *KeyPair) PublicKey() PublicKey {
	switch k.format {
	case Secp256k1:
		return PublicKey{Format: Secp256k1, Bytes: k.secp.PubKey().SerializeCompressed()}
	default:
		return PublicKey{Format: Ed25519, Bytes: append([]byte(nil), k.ed.Public().(ed25519.PublicKey)...)}
	}
}

// PeerID returns the textual peer id of the public key.
func (k *KeyPair) PeerID() string {
	return k.PublicKey().PeerID()
}

// Sign signs the blake2b-256 digest of msg.
func (k *KeyPair) Sign(msg []byte) (Signature, error) {
	digest := ir.Digest(msg)
	switch k.format {
	case Secp256k1:
		sig, err := k.secp.Sign(digest)
		if err != nil {
			return nil, fmt.Errorf("secp256k1 sign: %w", err)
		}
		return Signature(sig.Serialize()), nil
	default:
		return Signature(ed25519.Sign(k.ed, digest)), nil
	}
}

// PublicKey is a public key tagged with its format.
type PublicKey struct {
	Format KeyFormat
	Bytes  []byte
}

// PeerID encodes the key as base58(format ‖ key).
func (p PublicKey) PeerID() string {
	buf := make([]byte, 0, len(p.Bytes)+1)
	buf = append(buf, byte(p.Format))
	buf = append(buf, p.Bytes...)
	return base58.Encode(buf)
}

// PublicKeyFromPeerID decodes a peer id produced by PeerID.
func PublicKeyFromPeerID(peerID string) (PublicKey, error) {
	raw := base58.Decode(peerID)
	if len(raw) < 2 {
		return PublicKey{}, &KeyError{Reason: fmt.Sprintf("peer id %q is not a public key", peerID)}
	}

	format := KeyFormat(raw[0])
	key := raw[1:]
	switch format {
	case Ed25519:
		if len(key) != ed25519.PublicKeySize {
			return PublicKey{}, &KeyError{Reason: fmt.Sprintf("peer id %q: ed25519 key must be %d bytes", peerID, ed25519.PublicKeySize)}
		}
	case Secp256k1:
		if _, err := btcec.ParsePubKey(key, btcec.S256()); err != nil {
			return PublicKey{}, &KeyError{Reason: fmt.Sprintf("peer id %q: %v", peerID, err)}
		}
	default:
		return PublicKey{}, &KeyError{Reason: fmt.Sprintf("peer id %q: unsupported key format %d", peerID, format)}
	}
	return PublicKey{Format: format, Bytes: key}, nil
}

// Verify checks sig over the blake2b-256 digest of msg.
func (p PublicKey) Verify(msg []byte, sig Signature) error {
	digest := ir.Digest(msg)
	switch p.Format {
	case Ed25519:
		if len(p.Bytes) != ed25519.PublicKeySize {
			return &KeyError{Reason: "ed25519 key has wrong length"}
		}
		if !ed25519.Verify(ed25519.PublicKey(p.Bytes), digest, sig) {
			return errBadSignature
		}
		return nil
	case Secp256k1:
		pub, err := btcec.ParsePubKey(p.Bytes, btcec.S256())
		if err != nil {
			return fmt.Errorf("parse secp256k1 key: %w", err)
		}
		parsed, err := btcec.ParseDERSignature(sig, btcec.S256())
		if err != nil {
			return fmt.Errorf("parse secp256k1 signature: %w", err)
		}
		if !parsed.Verify(digest, pub) {
			return errBadSignature
		}
		return nil
	default:
		return &KeyError{Reason: fmt.Sprintf("unsupported key format %d", p.Format)}
	}
}
