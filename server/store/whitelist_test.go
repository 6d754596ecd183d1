package store

import (
	"path/filepath"
	"testing"
)

func TestWhitelistDisabledAllowsEveryone(t *testing.T) {
	w, err := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.toml"))
	if err != nil {
		t.Fatalf("LoadWhitelist: %v", err)
	}
	if !w.Allowed("anyone") {
		t.Fatalf("expected disabled whitelist to allow everyone")
	}
}

func TestWhitelistAddAndAllow(t *testing.T) {
	w, err := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.toml"))
	if err != nil {
		t.Fatalf("LoadWhitelist: %v", err)
	}
	w.SetEnabled(true)
	if w.Allowed("raylan") {
		t.Fatalf("expected raylan to be rejected before being added")
	}
	added, err := w.Add("Raylan")
	if err != nil || !added {
		t.Fatalf("Add: added=%v err=%v", added, err)
	}
	if !w.Allowed("raylan") {
		t.Fatalf("expected case-insensitive match after Add")
	}
}

func TestWhitelistRemove(t *testing.T) {
	w, _ := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.toml"))
	w.SetEnabled(true)
	w.Add("boyd")
	removed, err := w.Remove("BOYD")
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	if w.Allowed("boyd") {
		t.Fatalf("expected boyd to be rejected after removal")
	}
}

func TestWhitelistPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist.toml")
	w1, _ := LoadWhitelist(path)
	w1.Add("ava")

	w2, err := LoadWhitelist(path)
	if err != nil {
		t.Fatalf("reload LoadWhitelist: %v", err)
	}
	w2.SetEnabled(true)
	if !w2.Allowed("ava") {
		t.Fatalf("expected ava to survive reload")
	}
}

func TestWhitelistRejectsEmptyName(t *testing.T) {
	w, _ := LoadWhitelist(filepath.Join(t.TempDir(), "whitelist.toml"))
	if _, err := w.Add("   "); err != ErrWhitelistInvalidName {
		t.Fatalf("expected ErrWhitelistInvalidName, got %v", err)
	}
}
