package testutil

import (
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
)

// KeyPair derives an ed25519 key pair from name. The same name always
// yields the same key, so scenarios can refer to peers by name.
func KeyPair(name string) *signature.KeyPair {
	return KeyPairWithFormat(name, signature.Ed25519)
}

// KeyPairWithFormat is KeyPair for an explicit key format.
//
// The secret is blake2b-256 of the name. For secp256k1 such a digest is a
// valid scalar with overwhelming probability; the function panics if not.
func KeyPairWithFormat(name string, format signature.KeyFormat) *signature.KeyPair {
	kp, err := signature.KeyPairFromSecret(format, ir.Digest([]byte("air-test-key:"+name)))
	if err != nil {
		panic(err)
	}
	return kp
}

// PeerID returns the peer id of KeyPair(name).
func PeerID(name string) string {
	return KeyPair(name).PeerID()
}
