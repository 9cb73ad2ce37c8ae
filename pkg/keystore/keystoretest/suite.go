// Package keystoretest checks that a keystore.KeyCustody implementation behaves as expected.
package keystoretest

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"testing"

	"code.securecomm.org/golang/pkg/algos"
	"code.securecomm.org/golang/pkg/keystore"
)

// Run executes the KeyCustody conformance tests against stores returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) keystore.KeyCustody) {
	t.Run("ECKeyIsStable", func(t *testing.T) { testECKeyIsStable(t, newStore(t)) })
	t.Run("ECKeySignAndAgree", func(t *testing.T) { testECKeySignAndAgree(t, newStore(t)) })
	t.Run("SecretKeyIsStable", func(t *testing.T) { testSecretKeyIsStable(t, newStore(t)) })
	t.Run("KeyTypeConflict", func(t *testing.T) { testKeyTypeConflict(t, newStore(t)) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, newStore(t)) })
}

func p256(t *testing.T) algos.Curve {
	curve, err := algos.GetCurve(algos.CURVE_P256)
	if nil != err {
		t.Fatalf("failed loading P256, got error %v", err)
	}
	return curve
}

func testECKeyIsStable(t *testing.T, ks keystore.KeyCustody) {
	k1, err := ks.ECKey("identity", p256(t))
	if nil != err {
		t.Fatalf("failed first ECKey, got error %v", err)
	}
	k2, err := ks.ECKey("identity", p256(t))
	if nil != err {
		t.Fatalf("failed second ECKey, got error %v", err)
	}
	pub1 := k1.Public().(*ecdsa.PublicKey)
	pub2 := k2.Public().(*ecdsa.PublicKey)
	if !pub1.Equal(pub2) {
		t.Error("ECKey returned distinct keys for the same alias")
	}

	k3, err := ks.ECKey("other", p256(t))
	if nil != err {
		t.Fatalf("failed ECKey(other), got error %v", err)
	}
	if pub1.Equal(k3.Public()) {
		t.Error("distinct aliases share the same key")
	}
}

func testECKeySignAndAgree(t *testing.T, ks keystore.KeyCustody) {
	key, err := ks.ECKey("identity", p256(t))
	if nil != err {
		t.Fatalf("failed ECKey, got error %v", err)
	}
	digest := sha256.Sum256([]byte("hello"))
	sig, err := key.Sign(rand.Reader, digest[:], crypto.SHA256)
	if nil != err {
		t.Fatalf("failed Sign, got error %v", err)
	}
	pub := key.Public().(*ecdsa.PublicKey)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		t.Error("failed signature verification")
	}

	peer, err := ecdh.P256().GenerateKey(rand.Reader)
	if nil != err {
		t.Fatalf("failed generating peer key, got error %v", err)
	}
	secret1, err := key.ECDH(peer.PublicKey())
	if nil != err {
		t.Fatalf("failed ECDH, got error %v", err)
	}
	local, err := pub.ECDH()
	if nil != err {
		t.Fatalf("failed converting public key, got error %v", err)
	}
	secret2, err := peer.ECDH(local)
	if nil != err {
		t.Fatalf("failed peer ECDH, got error %v", err)
	}
	if !bytes.Equal(secret1, secret2) {
		t.Error("ECDH secrets differ")
	}

	_, err = key.ECDH(nil)
	if nil == err {
		t.Error("ECDH(nil) did not fail")
	}
}

func testSecretKeyIsStable(t *testing.T, ks keystore.KeyCustody) {
	aead1, err := ks.SecretKey("blob")
	if nil != err {
		t.Fatalf("failed first SecretKey, got error %v", err)
	}
	nonce := make([]byte, aead1.NonceSize())
	ct := aead1.Seal(nil, nonce, []byte("secret"), nil)

	aead2, err := ks.SecretKey("blob")
	if nil != err {
		t.Fatalf("failed second SecretKey, got error %v", err)
	}
	pt, err := aead2.Open(nil, nonce, ct, nil)
	if nil != err {
		t.Fatalf("SecretKey changed between calls, got error %v", err)
	}
	if string(pt) != "secret" {
		t.Errorf("failed plaintext control, got %q", pt)
	}

	aead3, err := ks.SecretKey("other")
	if nil != err {
		t.Fatalf("failed SecretKey(other), got error %v", err)
	}
	if _, err = aead3.Open(nil, nonce, ct, nil); nil == err {
		t.Error("distinct aliases share the same secret key")
	}
}

func testKeyTypeConflict(t *testing.T, ks keystore.KeyCustody) {
	_, err := ks.ECKey("identity", p256(t))
	if nil != err {
		t.Fatalf("failed ECKey, got error %v", err)
	}
	_, err = ks.SecretKey("identity")
	if !errors.Is(err, keystore.ErrKeyType) {
		t.Errorf("expected ErrKeyType, got %v", err)
	}

	_, err = ks.SecretKey("blob")
	if nil != err {
		t.Fatalf("failed SecretKey, got error %v", err)
	}
	_, err = ks.ECKey("blob", p256(t))
	if !errors.Is(err, keystore.ErrKeyType) {
		t.Errorf("expected ErrKeyType, got %v", err)
	}

	x25519, err := algos.GetCurve(algos.CURVE_X25519)
	if nil != err {
		t.Fatalf("failed loading X25519, got error %v", err)
	}
	_, err = ks.ECKey("x", x25519)
	if !errors.Is(err, keystore.ErrKeyType) {
		t.Errorf("expected ErrKeyType for X25519, got %v", err)
	}
}

func testDeleteKey(t *testing.T, ks keystore.KeyCustody) {
	k1, err := ks.ECKey("identity", p256(t))
	if nil != err {
		t.Fatalf("failed ECKey, got error %v", err)
	}
	found, err := ks.Contains("identity")
	if nil != err || !found {
		t.Fatalf("failed Contains control, got %v, %v", found, err)
	}

	err = ks.DeleteKey("identity")
	if nil != err {
		t.Fatalf("failed DeleteKey, got error %v", err)
	}
	found, err = ks.Contains("identity")
	if nil != err || found {
		t.Fatalf("key still present after DeleteKey, got %v, %v", found, err)
	}
	err = ks.DeleteKey("identity")
	if nil != err {
		t.Errorf("DeleteKey of missing alias failed, got error %v", err)
	}

	k2, err := ks.ECKey("identity", p256(t))
	if nil != err {
		t.Fatalf("failed ECKey after delete, got error %v", err)
	}
	if k1.Public().(*ecdsa.PublicKey).Equal(k2.Public()) {
		t.Error("deleted key was resurrected")
	}
}
