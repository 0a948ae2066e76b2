package archive

import (
	"bytes"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	k1, err := DeriveKey([]byte("hunter2"), salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := DeriveKey([]byte("hunter2"), salt)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("DeriveKey is not deterministic for the same password+salt")
	}
	if len(k1) != KeySize {
		t.Fatalf("expected key of %d bytes, got %d", KeySize, len(k1))
	}
}

func TestDeriveKey_RejectsBadInputs(t *testing.T) {
	salt, _ := NewSalt()
	if _, err := DeriveKey(nil, salt); err == nil {
		t.Error("expected error for empty password")
	}
	if _, err := DeriveKey([]byte("x"), []byte("short")); err == nil {
		t.Error("expected error for wrong salt length")
	}
}

func TestStreamCipher_RoundTrip(t *testing.T) {
	key, _ := DeriveKey([]byte("password"), mustSalt(t))
	prefix := mustNoncePrefix(t)

	enc, err := NewStreamCipher(key, prefix)
	if err != nil {
		t.Fatalf("NewStreamCipher: %v", err)
	}
	var sealed [][]byte
	f1, err := enc.EncryptNext(nil, []byte("frame one"))
	if err != nil {
		t.Fatalf("EncryptNext: %v", err)
	}
	sealed = append(sealed, f1)
	f2, err := enc.EncryptLast(nil, []byte("final frame"))
	if err != nil {
		t.Fatalf("EncryptLast: %v", err)
	}
	sealed = append(sealed, f2)

	dec, err := NewStreamCipher(key, prefix)
	if err != nil {
		t.Fatalf("NewStreamCipher: %v", err)
	}
	p1, err := dec.DecryptNext(nil, sealed[0])
	if err != nil {
		t.Fatalf("DecryptNext: %v", err)
	}
	if string(p1) != "frame one" {
		t.Fatalf("got %q, want %q", p1, "frame one")
	}
	p2, err := dec.DecryptLast(nil, sealed[1])
	if err != nil {
		t.Fatalf("DecryptLast: %v", err)
	}
	if string(p2) != "final frame" {
		t.Fatalf("got %q, want %q", p2, "final frame")
	}
}

func TestStreamCipher_RejectsFrameAfterTerminal(t *testing.T) {
	key, _ := DeriveKey([]byte("password"), mustSalt(t))
	prefix := mustNoncePrefix(t)
	sc, _ := NewStreamCipher(key, prefix)

	if _, err := sc.EncryptLast(nil, []byte("last")); err != nil {
		t.Fatalf("EncryptLast: %v", err)
	}
	if _, err := sc.EncryptNext(nil, []byte("oops")); err == nil {
		t.Fatal("expected error sealing a frame after the terminal frame")
	}
}

func TestStreamCipher_TamperedCiphertextFailsToOpen(t *testing.T) {
	key, _ := DeriveKey([]byte("password"), mustSalt(t))
	prefix := mustNoncePrefix(t)
	enc, _ := NewStreamCipher(key, prefix)
	sealed, err := enc.EncryptLast(nil, []byte("payload"))
	if err != nil {
		t.Fatalf("EncryptLast: %v", err)
	}
	sealed[0] ^= 0xFF

	dec, _ := NewStreamCipher(key, prefix)
	if _, err := dec.DecryptLast(nil, sealed); err == nil {
		t.Fatal("expected decryption to fail on tampered ciphertext")
	}
}

func mustSalt(t *testing.T) []byte {
	t.Helper()
	s, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	return s
}

func mustNoncePrefix(t *testing.T) []byte {
	t.Helper()
	p, err := NewNoncePrefix()
	if err != nil {
		t.Fatalf("NewNoncePrefix: %v", err)
	}
	return p
}
