package archive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPackUnpack_RoundTrip_Unencrypted(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "hello.txt"), "hello, krate")

	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs: []string{filepath.Join(src, "hello.txt")},
		Output: archivePath,
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	outDir := t.TempDir()
	if err := NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   outDir,
	}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "hello.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "hello, krate" {
		t.Fatalf("got %q, want %q", got, "hello, krate")
	}
}

func TestPackUnpack_RoundTrip_Encrypted(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "secret.txt"), "top secret payload")

	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs:   []string{filepath.Join(src, "secret.txt")},
		Output:   archivePath,
		Password: "correct horse battery staple",
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	outDir := t.TempDir()
	if err := NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   outDir,
		Password:    "correct horse battery staple",
	}); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(outDir, "secret.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "top secret payload" {
		t.Fatalf("got %q, want %q", got, "top secret payload")
	}
}

func TestUnpack_EncryptedWithoutPassword(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "f.txt"), "data")
	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs:   []string{filepath.Join(src, "f.txt")},
		Output:   archivePath,
		Password: "pw",
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	err := NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   t.TempDir(),
	})
	if !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
}

func TestUnpack_WrongPasswordFailsDecryption(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "f.txt"), "data")
	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs:   []string{filepath.Join(src, "f.txt")},
		Output:   archivePath,
		Password: "correct",
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	err := NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   t.TempDir(),
		Password:    "wrong",
	})
	if !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestUnpack_TamperedArchiveFailsDecryption(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "f.txt"), "some payload bytes for tamper test")
	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs:   []string{filepath.Join(src, "f.txt")},
		Output:   archivePath,
		Password: "pw",
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte well past the header, inside the framed ciphertext.
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	err = NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   t.TempDir(),
		Password:    "pw",
	})
	if err == nil {
		t.Fatal("expected tampered archive to fail to extract")
	}
}

func TestUnpack_TruncatedArchiveErrors(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "f.txt"), "enough content to span a frame boundary maybe")
	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs: []string{filepath.Join(src, "f.txt")},
		Output: archivePath,
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	truncated := data[:len(data)-5]
	if err := os.WriteFile(archivePath, truncated, 0o644); err != nil {
		t.Fatal(err)
	}

	err = NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected truncated archive to fail to extract")
	}
}

func TestPack_NoInputsErrors(t *testing.T) {
	err := NewPacker().Pack(PackOptions{Output: filepath.Join(t.TempDir(), "out.krate")})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestUnpack_CleansUpFreshOutputDirOnFailure(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "f.txt"), "some payload bytes for tamper test")
	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs:   []string{filepath.Join(src, "f.txt")},
		Output:   archivePath,
		Password: "pw",
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(t.TempDir(), "did-not-exist-yet")
	err = NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   outDir,
		Password:    "pw",
	})
	if err == nil {
		t.Fatal("expected tampered archive to fail to extract")
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Fatal("expected a freshly created output directory to be removed after a failed extract")
	}
}

func TestUnpack_PreservesPreExistingOutputDirOnFailure(t *testing.T) {
	src := t.TempDir()
	mustWriteFile(t, filepath.Join(src, "f.txt"), "some payload bytes for tamper test")
	archivePath := filepath.Join(t.TempDir(), "out.krate")
	if err := NewPacker().Pack(PackOptions{
		Inputs:   []string{filepath.Join(src, "f.txt")},
		Output:   archivePath,
		Password: "pw",
	}); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	mustWriteFile(t, filepath.Join(outDir, "preexisting.txt"), "keep me")

	err = NewUnpacker().Unpack(UnpackOptions{
		ArchivePath: archivePath,
		OutputDir:   outDir,
		Password:    "pw",
	})
	if err == nil {
		t.Fatal("expected tampered archive to fail to extract")
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "preexisting.txt")); statErr != nil {
		t.Fatal("expected pre-existing output directory content to survive a failed extract")
	}
}

func TestPack_CleansUpPartialOutputOnFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.krate")
	err := NewPacker().Pack(PackOptions{
		Inputs: []string{"/no/such/input-xyz"},
		Output: out,
	})
	if err == nil {
		t.Fatal("expected an error for a missing input path")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("expected partial output file to be removed after a failed pack")
	}
}
