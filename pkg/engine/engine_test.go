package engine

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"testing"

	"golang.org/x/crypto/hkdf"

	"code.securecomm.org/golang/pkg/algos"
	"code.securecomm.org/golang/pkg/keystore"
)

func TestIdentityKeyPairIdempotent(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())

	kp1, err := eng.IdentityKeyPair()
	if nil != err {
		t.Fatalf("failed IdentityKeyPair, got error %v", err)
	}
	kp2, err := eng.IdentityKeyPair()
	if nil != err {
		t.Fatalf("failed IdentityKeyPair, got error %v", err)
	}
	if !bytes.Equal(kp1.PublicBytes, kp2.PublicBytes) {
		t.Error("IdentityKeyPair public encodings differ")
	}

	pub, err := x509.ParsePKIXPublicKey(kp1.PublicBytes)
	if nil != err {
		t.Fatalf("PublicBytes is not SubjectPublicKeyInfo, got error %v", err)
	}
	if !kp1.Public.Equal(pub) {
		t.Error("PublicBytes does not encode Public")
	}
	if elliptic.P256() != kp1.Public.Curve {
		t.Errorf("identity key on unexpected curve %s", kp1.Public.Curve.Params().Name)
	}
}

func TestIdentityAlias(t *testing.T) {
	keys := keystore.NewMemKeyStore()
	e1 := newEngine(t, keys)
	e2 := newEngine(t, keys, WithIdentityAlias("other_identity"))

	kp1, _ := e1.IdentityKeyPair()
	kp2, _ := e2.IdentityKeyPair()
	if bytes.Equal(kp1.PublicBytes, kp2.PublicBytes) {
		t.Error("distinct aliases share the same identity key")
	}
	found, _ := keys.Contains(DefaultIdentityAlias)
	if !found {
		t.Errorf("identity key not stored under %s", DefaultIdentityAlias)
	}
}

func TestIdentityKeyPairPlatformFailure(t *testing.T) {
	keys := keystore.NewMemKeyStore()
	keys.SetUnavailable(true)
	eng := newEngine(t, keys)

	_, err := eng.IdentityKeyPair()
	if !errors.Is(err, ErrPlatform) {
		t.Errorf("expected ErrPlatform, got %v", err)
	}
	if !errors.Is(err, keystore.ErrUnavailable) {
		t.Errorf("expected keystore.ErrUnavailable cause, got %v", err)
	}
	_, err = eng.Sign([]byte("message"))
	if !errors.Is(err, ErrPlatform) {
		t.Errorf("failed Sign, expected ErrPlatform, got %v", err)
	}
}

func TestAgreeSymmetric(t *testing.T) {
	alice := newEngine(t, keystore.NewMemKeyStore())
	bob := newEngine(t, keystore.NewMemKeyStore())
	akp, _ := alice.IdentityKeyPair()
	bkp, _ := bob.IdentityKeyPair()

	s1, err := alice.Agree(akp.Private, bkp.Public)
	if nil != err {
		t.Fatalf("failed Agree, got error %v", err)
	}
	s2, err := bob.Agree(bkp.Private, akp.Public)
	if nil != err {
		t.Fatalf("failed Agree, got error %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("shared secrets differ")
	}
	if len(s1) != alice.Curve().DHLen() {
		t.Errorf("unexpected shared secret size %d", len(s1))
	}
}

func TestAgreeDistinctPeers(t *testing.T) {
	alice := newEngine(t, keystore.NewMemKeyStore())
	akp, _ := alice.IdentityKeyPair()

	secrets := make([][]byte, 0, 2)
	for range 2 {
		peer := newEngine(t, keystore.NewMemKeyStore())
		pkp, _ := peer.IdentityKeyPair()
		secret, err := alice.Agree(akp.Private, pkp.Public)
		if nil != err {
			t.Fatalf("failed Agree, got error %v", err)
		}
		secrets = append(secrets, secret)
	}
	if bytes.Equal(secrets[0], secrets[1]) {
		t.Error("distinct peers share the same secret")
	}
}

func TestAgreeIncompatibleCurve(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())
	kp, _ := eng.IdentityKeyPair()

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if nil != err {
		t.Fatalf("failed generating P384 key, got error %v", err)
	}
	_, err = eng.Agree(kp.Private, &p384.PublicKey)
	if !errors.Is(err, ErrKeyAgreement) {
		t.Errorf("expected ErrKeyAgreement, got %v", err)
	}
	_, err = eng.Agree(kp.Private, nil)
	if !errors.Is(err, ErrKeyAgreement) {
		t.Errorf("expected ErrKeyAgreement for nil key, got %v", err)
	}
}

func TestParsePublicKey(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())
	kp, _ := eng.IdentityKeyPair()

	pub, err := eng.ParsePublicKey(kp.PublicBytes)
	if nil != err {
		t.Fatalf("failed ParsePublicKey, got error %v", err)
	}
	if !kp.Public.Equal(pub) {
		t.Error("parsed key differs")
	}

	p384, _ := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	p384der, _ := x509.MarshalPKIXPublicKey(&p384.PublicKey)

	testcases := []struct {
		desc string
		der  []byte
	}{
		{desc: "nil", der: nil},
		{desc: "garbage", der: []byte("not a key")},
		{desc: "truncated", der: kp.PublicBytes[:len(kp.PublicBytes)-1]},
		{desc: "P384", der: p384der},
		{desc: "off curve", der: offCurve(kp.PublicBytes)},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := eng.ParsePublicKey(tc.der)
			if !errors.Is(err, ErrKeyAgreement) {
				t.Errorf("expected ErrKeyAgreement, got %v", err)
			}
		})
	}
}

func TestDeriveSessionKey(t *testing.T) {
	secret := bytes.Repeat([]byte{0x0B}, 32)

	k1, err := DeriveSessionKey(secret, nil, nil)
	if nil != err {
		t.Fatalf("failed DeriveSessionKey, got error %v", err)
	}
	k2, _ := DeriveSessionKey(secret, make([]byte, SaltSize), []byte(DefaultInfo))
	if !k1.Equal(k2) {
		t.Error("default salt & info not applied")
	}

	// matches a direct HKDF-SHA256 expansion
	expected := make([]byte, SessionKeySize)
	_, _ = io.ReadFull(hkdf.New(sha256.New, secret, make([]byte, SaltSize), []byte(DefaultInfo)), expected)
	if !bytes.Equal(expected, k1.key) {
		t.Errorf("unexpected session key")
	}

	variants := []struct {
		salt []byte
		info []byte
	}{
		{salt: bytes.Repeat([]byte{0x01}, SaltSize), info: nil},
		{salt: nil, info: []byte("other info")},
	}
	for pos, v := range variants {
		k, err := DeriveSessionKey(secret, v.salt, v.info)
		if nil != err {
			t.Fatalf("case#%d failed DeriveSessionKey, got error %v", pos, err)
		}
		if k.Equal(k1) {
			t.Errorf("case#%d derived the default key", pos)
		}
	}

	_, err = DeriveSessionKey(nil, nil, nil)
	if nil == err {
		t.Error("DeriveSessionKey accepted empty secret")
	}
}

func TestEngineDeriveSessionKeyInfo(t *testing.T) {
	secret := bytes.Repeat([]byte{0x0C}, 32)
	e1 := newEngine(t, keystore.NewMemKeyStore())
	e2 := newEngine(t, keystore.NewMemKeyStore(), WithInfo("custom/v2"))

	k1, _ := e1.DeriveSessionKey(secret)
	ref, _ := DeriveSessionKey(secret, nil, nil)
	if !k1.Equal(ref) {
		t.Error("Engine default info differs from DefaultInfo")
	}
	k2, _ := e2.DeriveSessionKey(secret)
	if k2.Equal(k1) {
		t.Error("WithInfo ignored")
	}
}

func TestEngineDeriveSessionKeyHash(t *testing.T) {
	secret := bytes.Repeat([]byte{0x0D}, 32)
	eng := newEngine(t, keystore.NewMemKeyStore(), WithHash(algos.HASH_SHA512))

	key, err := eng.DeriveSessionKey(secret)
	if nil != err {
		t.Fatalf("failed DeriveSessionKey, got error %v", err)
	}
	ref, _ := DeriveSessionKey(secret, nil, nil)
	if !key.Equal(ref) {
		t.Error("WithHash changed the session key derivation")
	}
}

func TestSessionKeyRedacted(t *testing.T) {
	key, _ := DeriveSessionKey([]byte("secret"), nil, nil)
	for _, verb := range []string{"%v", "%s", "%+v"} {
		out := fmt.Sprintf(verb, key)
		if bytes.Contains([]byte(out), key.key) || "SessionKey(redacted)" != out {
			t.Errorf("%s leaks session key, got %q", verb, out)
		}
	}
	key.Destroy()
	if key.Equal(key) {
		t.Error("destroyed key still usable")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())
	key, _ := DeriveSessionKey([]byte("shared secret"), nil, nil)

	for pos, plaintext := range [][]byte{{}, []byte("ping"), bytes.Repeat([]byte{0xAA}, 1000)} {
		t.Run(fmt.Sprintf("case#%d", pos), func(t *testing.T) {
			ct, iv, err := eng.Encrypt(plaintext, key)
			if nil != err {
				t.Fatalf("failed Encrypt, got error %v", err)
			}
			if len(iv) != IVSize || len(ct) != len(plaintext)+TagSize {
				t.Fatalf("unexpected sizes, iv %d ct %d", len(iv), len(ct))
			}
			got, err := eng.Decrypt(ct, key, iv)
			if nil != err {
				t.Fatalf("failed Decrypt, got error %v", err)
			}
			if !bytes.Equal(plaintext, got) {
				t.Errorf("failed round trip, %x != %x", got, plaintext)
			}
		})
	}
}

func TestEncryptFreshIV(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())
	key, _ := DeriveSessionKey([]byte("shared secret"), nil, nil)

	_, iv1, _ := eng.Encrypt([]byte("m"), key)
	_, iv2, _ := eng.Encrypt([]byte("m"), key)
	if bytes.Equal(iv1, iv2) {
		t.Error("iv reused")
	}
}

func TestDecryptTampered(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())
	key, _ := DeriveSessionKey([]byte("shared secret"), nil, nil)
	other, _ := DeriveSessionKey([]byte("other secret"), nil, nil)
	ct, iv, _ := eng.Encrypt([]byte("attack at dawn"), key)

	for bit := range len(ct) * 8 {
		tampered := bytes.Clone(ct)
		tampered[bit/8] ^= 1 << (bit % 8)
		_, err := eng.Decrypt(tampered, key, iv)
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("bit %d flip not detected, got %v", bit, err)
		}
	}

	badIV := bytes.Clone(iv)
	badIV[0] ^= 0x80
	testcases := []struct {
		desc string
		ct   []byte
		key  *SessionKey
		iv   []byte
	}{
		{desc: "wrong key", ct: ct, key: other, iv: iv},
		{desc: "wrong iv", ct: ct, key: key, iv: badIV},
		{desc: "short iv", ct: ct, key: key, iv: iv[:8]},
		{desc: "truncated", ct: ct[:TagSize-1], key: key, iv: iv},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			pt, err := eng.Decrypt(tc.ct, tc.key, tc.iv)
			if !errors.Is(err, ErrAuthentication) {
				t.Errorf("expected ErrAuthentication, got %v", err)
			}
			if nil != pt {
				t.Error("partial plaintext returned")
			}
		})
	}
}

func TestSignVerify(t *testing.T) {
	eng := newEngine(t, keystore.NewMemKeyStore())
	other := newEngine(t, keystore.NewMemKeyStore())
	message := []byte("message to sign")

	sig, err := eng.Sign(message)
	if nil != err {
		t.Fatalf("failed Sign, got error %v", err)
	}
	ok, err := eng.Verify(message, sig)
	if nil != err || !ok {
		t.Fatalf("failed Verify, got %v error %v", ok, err)
	}

	kp, _ := eng.IdentityKeyPair()
	if !other.VerifyWith(kp.Public, message, sig) {
		t.Error("failed VerifyWith of peer signature")
	}
	if ok, _ := other.Verify(message, sig); ok {
		t.Error("signature verified against another identity")
	}
	if ok, _ := eng.Verify([]byte("other message"), sig); ok {
		t.Error("signature verified for another message")
	}
	tampered := bytes.Clone(sig)
	tampered[len(tampered)-1] ^= 0x01
	if ok, _ := eng.Verify(message, tampered); ok {
		t.Error("tampered signature verified")
	}
	if eng.VerifyWith(nil, message, sig) {
		t.Error("VerifyWith accepted nil key")
	}
}

func TestOptions(t *testing.T) {
	keys := keystore.NewMemKeyStore()

	eng := newEngine(t, keys, WithCurve(algos.CURVE_P384), WithHash(algos.HASH_SHA512))
	kp, err := eng.IdentityKeyPair()
	if nil != err {
		t.Fatalf("failed IdentityKeyPair, got error %v", err)
	}
	if elliptic.P384() != kp.Public.Curve {
		t.Error("WithCurve ignored")
	}
	sig, _ := eng.Sign([]byte("m"))
	if ok, _ := eng.Verify([]byte("m"), sig); !ok {
		t.Error("failed Verify with SHA512")
	}

	invalid := []Option{
		WithCurve(algos.CURVE_X25519),
		WithCurve("unknown"),
		WithHash("unknown"),
		WithIdentityAlias(""),
	}
	for pos, opt := range invalid {
		_, err := New(keys, opt)
		if nil == err {
			t.Errorf("case#%d New accepted invalid option", pos)
		}
	}
	_, err = New(nil)
	if nil == err {
		t.Error("New accepted nil KeyCustody")
	}
}

func newEngine(t *testing.T, keys keystore.KeyCustody, opts ...Option) *Engine {
	eng, err := New(keys, opts...)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	return eng
}

// offCurve returns der with the last byte of its EC point altered.
func offCurve(der []byte) []byte {
	rv := bytes.Clone(der)
	rv[len(rv)-1] ^= 0x01
	return rv
}
