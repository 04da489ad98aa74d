package notarykey

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEnsurePrivateKeyFile_CreatesAndReuses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notary.key")

	key1, created1, err := EnsurePrivateKeyFile(path)
	if err != nil {
		t.Fatalf("EnsurePrivateKeyFile create: %v", err)
	}
	if !created1 {
		t.Fatalf("created1: got false want true")
	}
	addr1 := Address(key1)
	if addr1 == (common.Address{}) {
		t.Fatalf("zero notary address")
	}

	key2, created2, err := EnsurePrivateKeyFile(path)
	if err != nil {
		t.Fatalf("EnsurePrivateKeyFile reuse: %v", err)
	}
	if created2 {
		t.Fatalf("created2: got true want false")
	}
	if Address(key2) != addr1 {
		t.Fatalf("address mismatch: got %s want %s", Address(key2), addr1)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat key: %v", err)
		}
		if got := info.Mode().Perm(); got != 0o600 {
			t.Fatalf("permissions: got %o want 600", got)
		}
	}
}

type staticProvider map[string]string

func (p staticProvider) Get(_ context.Context, key string) (string, error) {
	return p[key], nil
}

func TestFromProvider(t *testing.T) {
	t.Parallel()

	p := staticProvider{
		"notary/signing-key": "0x4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a",
		"notary/garbage":     "not-a-key",
	}

	key, err := FromProvider(context.Background(), p, "notary/signing-key")
	if err != nil {
		t.Fatalf("FromProvider: %v", err)
	}
	if Address(key) == (common.Address{}) {
		t.Fatalf("zero address from provider key")
	}

	if _, err := FromProvider(context.Background(), p, "notary/garbage"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := FromProvider(context.Background(), nil, "x"); err == nil {
		t.Fatalf("expected nil provider error")
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	got, err := NormalizeAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	if err != nil {
		t.Fatalf("NormalizeAddress: %v", err)
	}
	if got != common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7") {
		t.Fatalf("normalized: got %s", got)
	}

	if _, err := NormalizeAddress("0x1234"); err == nil {
		t.Fatalf("expected invalid address error")
	}
}
