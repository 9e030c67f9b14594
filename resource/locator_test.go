package resource

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	l := NewLocator("/store", 32)

	tests := []struct {
		name      string
		fid       string
		wantShard string
		wantLeaf  string
	}{
		{
			name:      "no index defaults to zero",
			fid:       "00112233445566778899aabbccddeeff",
			wantShard: "0",
			wantLeaf:  "0112233445566778899aabbccddeeff+0",
		},
		{
			name:      "explicit index",
			fid:       "00112233445566778899aabbccddeeff+7",
			wantShard: "0",
			wantLeaf:  "0112233445566778899aabbccddeeff+7",
		},
		{
			name:      "explicit zero index",
			fid:       "f0112233445566778899aabbccddeeff+0",
			wantShard: "f",
			wantLeaf:  "0112233445566778899aabbccddeeff+0",
		},
		{
			name:      "leading zeros in index are normalized",
			fid:       "a0112233445566778899aabbccddeeff+007",
			wantShard: "a",
			wantLeaf:  "0112233445566778899aabbccddeeff+7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := l.Resolve(tt.fid)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.fid, err)
			}
			dir, leaf := filepath.Split(path)
			if got := filepath.Base(dir); got != tt.wantShard {
				t.Errorf("shard = %q, want %q", got, tt.wantShard)
			}
			if leaf != tt.wantLeaf {
				t.Errorf("leaf = %q, want %q", leaf, tt.wantLeaf)
			}
			if !strings.HasPrefix(path, l.FilesRoot()+string(filepath.Separator)) {
				t.Errorf("path %q is not under %q", path, l.FilesRoot())
			}
		})
	}
}

func TestResolve_IsPure(t *testing.T) {
	l := NewLocator(t.TempDir(), 32)
	fid := "00112233445566778899aabbccddeeff+3"
	first, err := l.Resolve(fid)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	for range 10 {
		again, _ := l.Resolve(fid)
		if again != first {
			t.Fatalf("Resolve(%q) = %q, then %q", fid, first, again)
		}
	}
}

func TestResolve_Invalid(t *testing.T) {
	l := NewLocator("/store", 32)

	tests := []string{
		"not-a-fid",
		"123",
		"",
		"00112233445566778899AABBCCDDEEFF",
		"00112233445566778899aabbccddeef",
		"00112233445566778899aabbccddeeff0",
		"00112233445566778899aabbccddeeff+",
		"00112233445566778899aabbccddeeff+-1",
		"00112233445566778899aabbccddeeff+1x",
		"00112233445566778899aabbccddeeff+99999999999999999999999",
		"../112233445566778899aabbccddeeff",
	}
	for _, fid := range tests {
		t.Run(fid, func(t *testing.T) {
			_, err := l.Resolve(fid)
			if !errors.Is(err, ErrInvalidFid) {
				t.Errorf("Resolve(%q) error = %v, want ErrInvalidFid", fid, err)
			}
		})
	}
}

func TestFid_String(t *testing.T) {
	l := NewLocator("/store", 32)
	tests := []struct {
		in   string
		want string
	}{
		{"00112233445566778899aabbccddeeff", "00112233445566778899aabbccddeeff"},
		{"00112233445566778899aabbccddeeff+0", "00112233445566778899aabbccddeeff"},
		{"00112233445566778899aabbccddeeff+12", "00112233445566778899aabbccddeeff+12"},
	}
	for _, tt := range tests {
		f, err := l.Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.in, err)
		}
		if f.String() != tt.want {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, f.String(), tt.want)
		}
	}
}

func TestFromPath(t *testing.T) {
	l := NewLocator("/store", 32)

	fid := "00112233445566778899aabbccddeeff+4"
	path, err := l.Resolve(fid)
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	f, err := l.FromPath(path)
	if err != nil {
		t.Fatalf("FromPath(%q) error = %v", path, err)
	}
	if f.String() != fid {
		t.Errorf("FromPath round trip = %q, want %q", f.String(), fid)
	}

	bad := []string{
		filepath.Join(l.FilesRoot(), "0", "0112233445566778899aabbccddeeff"),
		filepath.Join(l.FilesRoot(), "0", "0112233445566778899aabbccddeeff+04"),
		filepath.Join(l.FilesRoot(), "00", "112233445566778899aabbccddeeff+0"),
		filepath.Join(l.FilesRoot(), "0", "tmp0001"),
	}
	for _, p := range bad {
		if _, err := l.FromPath(p); !errors.Is(err, ErrInvalidFid) {
			t.Errorf("FromPath(%q) error = %v, want ErrInvalidFid", p, err)
		}
	}
}

func TestLocations(t *testing.T) {
	l := NewLocator("/store", 64)
	if got, want := l.DBPath(), filepath.Join("/store", "dbooru.db"); got != want {
		t.Errorf("DBPath() = %q, want %q", got, want)
	}
	if got, want := l.FilesRoot(), filepath.Join("/store", "files"); got != want {
		t.Errorf("FilesRoot() = %q, want %q", got, want)
	}
	if got, want := l.TmpRoot(), filepath.Join("/store", "tmp"); got != want {
		t.Errorf("TmpRoot() = %q, want %q", got, want)
	}
}
