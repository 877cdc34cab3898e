package config

import (
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Imap.Address = "mail.example.org:993"
	cfg.Imap.Username = "+33601020304"
	cfg.Imap.RootFolder = "RCSMessageStore"
	cfg.Message.PushMms = false

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Imap.Address != "mail.example.org:993" {
		t.Errorf("address = %q", loaded.Imap.Address)
	}
	if loaded.Imap.RootFolder != "RCSMessageStore" {
		t.Errorf("root folder = %q", loaded.Imap.RootFolder)
	}
	if loaded.Message.PushMms {
		t.Error("push_mms should be false")
	}
	if !loaded.Message.PushSms {
		t.Error("push_sms should stay true (default)")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIntervalFallback(t *testing.T) {
	cfg := &Config{}
	if got := cfg.Interval(); got.Minutes() != 5 {
		t.Errorf("zero interval should fall back to 5m, got %v", got)
	}
}
