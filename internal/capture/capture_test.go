package capture

import (
	"path/filepath"
	"testing"

	"github.com/AWWShuck/pwnycloud/internal/testutil"
)

var testExtensions = []string{".pcap", ".pcapng", ".22000", ".json"}

func TestIsCaptureFile(t *testing.T) {
	m := NewMatcher(testExtensions)

	tests := []struct {
		path string
		want bool
	}{
		{"ap_station.pcap", true},
		{"ap_station.pcapng", true},
		{"cracked.22000", true},
		{"ap_station.json", true},
		{"AP_STATION.PCAP", true}, // case-insensitive
		{"notes.txt", false},
		{"ap_station.pcap.tmp", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		if got := m.IsCaptureFile(tt.path); got != tt.want {
			t.Errorf("IsCaptureFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(testExtensions)

	want1 := testutil.WriteCapture(t, dir, "ap1.pcap", "capture data")
	want2 := testutil.WriteCapture(t, dir, "nested/ap2.pcapng", "more data")
	testutil.WriteCapture(t, dir, "readme.txt", "not a capture")

	files, err := m.DiscoverFiles(dir)
	if err != nil {
		t.Fatalf("DiscoverFiles failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(files), files)
	}

	found := make(map[string]bool)
	for _, f := range files {
		found[f] = true
	}
	if !found[want1] || !found[want2] {
		t.Errorf("expected %s and %s in %v", want1, want2, files)
	}
}

func TestDiscoverFilesSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(testExtensions)

	testutil.WriteCapture(t, dir, ".state.json", "{}")
	testutil.WriteCapture(t, dir, ".hidden/ap.pcap", "capture data")
	visible := testutil.WriteCapture(t, dir, "ap.pcap", "capture data")

	files, err := m.DiscoverFiles(dir)
	if err != nil {
		t.Fatalf("DiscoverFiles failed: %v", err)
	}

	if len(files) != 1 || files[0] != visible {
		t.Errorf("expected only %s, got %v", visible, files)
	}
}

func TestDiscoverFilesEmptyDir(t *testing.T) {
	m := NewMatcher(testExtensions)

	files, err := m.DiscoverFiles(t.TempDir())
	if err != nil {
		t.Fatalf("DiscoverFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestRelativePath(t *testing.T) {
	rel, err := RelativePath("/home/pi/handshakes", "/home/pi/handshakes/nested/ap.pcap")
	if err != nil {
		t.Fatalf("RelativePath failed: %v", err)
	}
	if rel != filepath.Join("nested", "ap.pcap") {
		t.Errorf("expected nested/ap.pcap, got %s", rel)
	}
}
