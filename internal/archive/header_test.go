package archive

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteHeaderDispatch_Unencrypted(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Compressed: true, GzipLevel: 6}
	if err := WriteHeader(&buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	legacy, got, payload, err := Dispatch(&buf)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if legacy {
		t.Fatal("expected a v1 archive, got legacy")
	}
	if got.Encrypted || !got.Compressed || got.GzipLevel != 6 {
		t.Fatalf("unexpected header: %+v", got)
	}
	if payload == nil {
		t.Fatal("expected a non-nil payload reader")
	}
}

func TestWriteHeaderDispatch_Encrypted(t *testing.T) {
	var buf bytes.Buffer
	salt := mustSalt(t)
	prefix := mustNoncePrefix(t)
	h := Header{Encrypted: true, Compressed: true, GzipLevel: 9, Salt: salt, NoncePrefix: prefix}
	if err := WriteHeader(&buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	_, got, _, err := Dispatch(&buf)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !got.Encrypted {
		t.Fatal("expected Encrypted to be true")
	}
	if !bytes.Equal(got.Salt, salt) {
		t.Fatalf("salt mismatch: got %x want %x", got.Salt, salt)
	}
	if !bytes.Equal(got.NoncePrefix, prefix) {
		t.Fatalf("nonce prefix mismatch: got %x want %x", got.NoncePrefix, prefix)
	}
}

func TestDispatch_LegacyGzipMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magicHeader[:])
	buf.Write([]byte{0x1f, 0x8b, 0x08, 0x00}) // gzip magic right after the krate magic + rest of a fake stream
	buf.Write(bytes.Repeat([]byte{0}, 20))

	legacy, _, payload, err := Dispatch(&buf)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !legacy {
		t.Fatal("expected legacy detection on gzip magic")
	}
	got, _ := readAll(t, payload)
	if got[0] != 0x1f || got[1] != 0x8b {
		t.Fatal("legacy payload must have the gzip magic reattached to the front")
	}
}

func TestDispatch_RejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("not-a-krate-archive-at-all")
	_, _, _, err := Dispatch(buf)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDispatch_RejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magicHeader[:])
	buf.WriteByte(0x42) // neither legacyVersionByte nor versionV1
	_, _, _, err := Dispatch(&buf)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func readAll(t *testing.T, r interface{ Read([]byte) (int, error) }) ([]byte, error) {
	t.Helper()
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out, nil
		}
	}
}
