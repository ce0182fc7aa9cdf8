package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".toml"), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMergesDefaultThenOverlay(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "default", `
video_fps = 30
audio_enabled = true
`)
	writeProfile(t, dir, "highspeed", `
video_fps = 60
mosample_enabled = true
mosample_mult = 16
mosample_exposure = 1.0
`)

	p, err := Load(dir, "highspeed")
	if err != nil {
		t.Fatal(err)
	}
	if p.VideoFPS != 60 {
		t.Fatalf("video_fps = %d, want 60 (overlay should win)", p.VideoFPS)
	}
	if !p.AudioEnabled {
		t.Fatal("audio_enabled should be inherited true from the default profile")
	}
	if !p.MosampleEnabled || p.MosampleMult != 16 {
		t.Fatalf("mosample settings not merged: %+v", p)
	}
}

func TestLoadDefaultOnlyUsesBuiltinDefaults(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(dir, "default")
	if err != nil {
		t.Fatal(err)
	}
	if p.VideoFPS != 60 || p.VideoEncoder != "libx264" {
		t.Fatalf("unexpected builtin defaults: %+v", p)
	}
}

func TestLoadRejectsInvalidMosampleExposure(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "default", `
mosample_enabled = true
mosample_mult = 4
mosample_exposure = 2.0
`)
	if _, err := Load(dir, "default"); err == nil {
		t.Fatal("expected validation error for exposure out of (0,1]")
	}
}
