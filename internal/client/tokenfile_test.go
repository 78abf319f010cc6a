package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTokenFile_SaveLoadDelete(t *testing.T) {
	t.Setenv(TokenEnv, "")
	f := TokenFile{Dir: filepath.Join(t.TempDir(), "creds")}

	ti, err := f.Load()
	if err != nil || ti != nil {
		t.Fatalf("expected no token initially, got %+v, %v", ti, err)
	}

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := f.Save("Bearer abc.def.ghi", "alice", &exp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(f.Dir, credFileName))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %o", perm)
	}

	ti, err = f.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ti.Token != "abc.def.ghi" || ti.Username != "alice" || ti.Source != "file" {
		t.Errorf("unexpected token info %+v", ti)
	}
	if ti.ExpiresAt == nil || !ti.ExpiresAt.Equal(exp) {
		t.Errorf("expiry not kept: %v", ti.ExpiresAt)
	}

	if err := f.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := f.Delete(); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if ti, _ := f.Load(); ti != nil {
		t.Errorf("token still present after delete: %+v", ti)
	}
}

func TestTokenFile_EnvOverride(t *testing.T) {
	t.Setenv(TokenEnv, "bearer from-env")
	f := TokenFile{Dir: t.TempDir()}

	ti, err := f.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ti.Token != "from-env" || ti.Source != "env" {
		t.Errorf("unexpected token info %+v", ti)
	}
}

func TestTokenFile_RejectsEmpty(t *testing.T) {
	f := TokenFile{Dir: t.TempDir()}
	if err := f.Save("  ", "", nil); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestTokenInfo_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if !(&TokenInfo{ExpiresAt: &past}).Expired(now) {
		t.Error("past expiry should be expired")
	}
	if (&TokenInfo{ExpiresAt: &future}).Expired(now) {
		t.Error("future expiry should not be expired")
	}
	if (&TokenInfo{}).Expired(now) {
		t.Error("unknown expiry should not be expired")
	}
}
