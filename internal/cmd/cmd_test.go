package cmd

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dendrascience/dbooru/internal/config"
)

// run executes the CLI with args against a fresh root command and returns
// what it wrote to stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	if err != nil {
		t.Fatalf("dbooru %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// newStore initializes a store in a temp dir and returns its root.
func newStore(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvVar, "")
	root := filepath.Join(t.TempDir(), "store")
	mustRun(t, "init", root)
	return root
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPutCatStatRm(t *testing.T) {
	root := newStore(t)
	src := filepath.Join(t.TempDir(), "photo.jpg")
	writeFile(t, src, "not really a jpeg")

	fid := strings.TrimSpace(mustRun(t, "--root", root, "put", "--attr", "tag=test", src))
	if fid != sha("not really a jpeg") {
		t.Fatalf("put printed %q, want %q", fid, sha("not really a jpeg"))
	}

	if got := mustRun(t, "--root", root, "cat", fid); got != "not really a jpeg" {
		t.Errorf("cat = %q", got)
	}

	stat := mustRun(t, "--root", root, "stat", fid)
	for _, want := range []string{"Fid:      " + fid, "17 bytes", "name=photo.jpg", "tag=test"} {
		if !strings.Contains(stat, want) {
			t.Errorf("stat output missing %q:\n%s", want, stat)
		}
	}
	if strings.Contains(stat, "Warning") {
		t.Errorf("stat warned about a tracked blob:\n%s", stat)
	}

	mustRun(t, "--root", root, "rm", fid)
	if _, err := run(t, "", "--root", root, "cat", fid); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cat after rm: err = %v, want not exist", err)
	}
	if _, err := run(t, "", "--root", root, "attr", "ls", fid); err != nil {
		t.Errorf("attr ls after rm: %v", err)
	}
}

func TestPutStdin(t *testing.T) {
	root := newStore(t)
	out, err := run(t, "from stdin", "--root", root, "put", "-")
	if err != nil {
		t.Fatal(err)
	}
	fid := strings.TrimSpace(out)
	if fid != sha("from stdin") {
		t.Errorf("fid = %q", fid)
	}
	if got := mustRun(t, "--root", root, "attr", "ls", fid); got != "" {
		t.Errorf("stdin put recorded attributes: %q", got)
	}
}

func TestAttrCommands(t *testing.T) {
	root := newStore(t)
	fid := strings.TrimSpace(mustRun(t, "--root", root, "put", "--no-name", "-"))

	mustRun(t, "--root", root, "attr", "set", fid, "rating", "safe")
	mustRun(t, "--root", root, "attr", "set", fid, "artist", "someone")
	mustRun(t, "--root", root, "attr", "set", fid+"+0", "rating", "questionable")

	if got := mustRun(t, "--root", root, "attr", "get", fid, "rating"); got != "questionable\n" {
		t.Errorf("attr get = %q", got)
	}
	if got := mustRun(t, "--root", root, "attr", "ls", fid); got != "artist=someone\nrating=questionable\n" {
		t.Errorf("attr ls = %q", got)
	}

	mustRun(t, "--root", root, "attr", "rm", fid, "artist")
	if _, err := run(t, "", "--root", root, "attr", "get", fid, "artist"); err == nil {
		t.Error("attr get of removed key succeeded")
	}
	if _, err := run(t, "", "--root", root, "attr", "rm", fid, "artist"); err == nil {
		t.Error("attr rm of missing key succeeded")
	}
	if _, err := run(t, "", "--root", root, "attr", "ls", "not-a-fid"); err == nil {
		t.Error("attr ls of invalid fid succeeded")
	}
}

func TestUninitializedStore(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	root := filepath.Join(t.TempDir(), "missing")
	_, err := run(t, "x", "--root", root, "put", "-")
	if !errors.Is(err, backend.ErrNotInitialized) {
		t.Errorf("put on missing store: err = %v, want ErrNotInitialized", err)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "from-config")
	cfgPath := filepath.Join(dir, "dbooru.yaml")
	writeFile(t, cfgPath, "root: "+root+"\nlog:\n  level: error\n")
	t.Setenv(config.EnvVar, cfgPath)

	mustRun(t, "init")
	if _, err := os.Stat(filepath.Join(root, "dbooru.db")); err != nil {
		t.Fatalf("init did not use configured root: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "root: "+root+"\nlog:\n  format: xml\n")
	if _, err := run(t, "", "--config", bad, "count"); err == nil {
		t.Error("invalid config accepted")
	}
}

func TestImport(t *testing.T) {
	root := newStore(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "nested", "b.txt"), "beta")
	writeFile(t, filepath.Join(src, "nested", "deeper", "c.txt"), "alpha")

	out := mustRun(t, "--root", root, "import", "-j", "3", src)
	if !strings.Contains(out, "Imported 3 files") || !strings.Contains(out, "store holds 2 blobs") {
		t.Errorf("import output = %q", out)
	}

	if got := mustRun(t, "--root", root, "attr", "get", sha("beta"), "name"); got != "nested/b.txt\n" {
		t.Errorf("name of beta = %q", got)
	}

	count := mustRun(t, "--root", root, "count")
	if !strings.Contains(count, "Total blobs: 2") || !strings.Contains(count, "Metadata rows: 2") {
		t.Errorf("count output = %q", count)
	}
}

func TestImportDryRun(t *testing.T) {
	root := newStore(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	out := mustRun(t, "--root", root, "import", "--dry-run", src)
	if !strings.Contains(out, "a.txt") {
		t.Errorf("dry run output = %q", out)
	}
	if count := mustRun(t, "--root", root, "count"); !strings.Contains(count, "Total blobs: 0") {
		t.Errorf("dry run stored blobs: %q", count)
	}
}

func TestSeed(t *testing.T) {
	root := newStore(t)
	out := mustRun(t, "--root", root, "seed", "-n", "40", "-l", "1")
	if !strings.Contains(out, "Stored 40 blobs") {
		t.Errorf("seed output = %q", out)
	}
	// One line drawn from a pool of 50 means at most 50 distinct blobs.
	count := mustRun(t, "--root", root, "count", "--shards")
	if !strings.Contains(count, "Metadata rows:") {
		t.Errorf("count output = %q", count)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "store")
	b, err := backend.Init(root, backend.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	logger := slog.New(slog.DiscardHandler)

	good, err := b.Put(ctx, strings.NewReader("good"))
	if err != nil {
		t.Fatal(err)
	}

	orphan, err := b.Put(ctx, strings.NewReader("orphan"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Metadata().DeleteFile(ctx, orphan); err != nil {
		t.Fatal(err)
	}

	dangling := sha("never stored")
	if err := b.Metadata().InsertFile(ctx, dangling); err != nil {
		t.Fatal(err)
	}

	corrupt, err := b.Put(ctx, strings.NewReader("corrupt me"))
	if err != nil {
		t.Fatal(err)
	}
	corruptPath, _ := b.Locator().Resolve(corrupt)
	os.Chmod(corruptPath, 0o644)
	writeFile(t, corruptPath, "corrupted")

	writeFile(t, filepath.Join(b.Locator().FilesRoot(), "a", "junk"), "junk")
	writeFile(t, filepath.Join(b.Locator().TmpRoot(), "leftover"), "partial")

	r, err := validateStore(ctx, b, logger, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	check := func(name string, got []string, want ...string) {
		t.Helper()
		if len(got) != len(want) {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
		for i := range want {
			if !strings.HasSuffix(got[i], want[i]) {
				t.Errorf("%s[%d] = %q, want suffix %q", name, i, got[i], want[i])
			}
		}
	}
	check("corrupt", r.corrupt, corrupt)
	check("orphans", r.orphans, orphan)
	check("dangling", r.dangling, dangling)
	check("stray", r.stray, "junk")
	check("stale", r.stale, "leftover")
	if r.blobs != 3 {
		t.Errorf("blobs = %d, want 3", r.blobs)
	}
	if n := r.unresolved(false); n != 5 {
		t.Errorf("unresolved = %d, want 5", n)
	}

	r, err = validateStore(ctx, b, logger, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if r.repaired != 3 {
		t.Errorf("repaired = %d, want 3", r.repaired)
	}

	r, err = validateStore(ctx, b, logger, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	check("orphans after repair", r.orphans)
	check("dangling after repair", r.dangling)
	check("stale after repair", r.stale)
	if n := r.unresolved(false); n != 2 {
		t.Errorf("unresolved after repair = %d, want 2 (corrupt and stray)", n)
	}
	if ok, _ := b.Metadata().HasFile(ctx, orphan); !ok {
		t.Error("orphan was not recorded")
	}
	if ok, _ := b.Metadata().HasFile(ctx, good); !ok {
		t.Error("good blob lost its row")
	}
}

func TestValidateCommand(t *testing.T) {
	root := newStore(t)
	mustRun(t, "--root", root, "seed", "-n", "5")
	out := mustRun(t, "--root", root, "validate")
	if !strings.Contains(out, "Corrupt blobs: 0") {
		t.Errorf("validate output = %q", out)
	}

	writeFile(t, filepath.Join(root, "tmp", "leftover"), "x")
	if _, err := run(t, "", "--root", root, "validate"); err == nil {
		t.Error("validate passed with a stale sink")
	}
	if _, err := run(t, "", "--root", root, "validate", "--repair"); err != nil {
		t.Errorf("validate --repair: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out := mustRun(t, "version", "--json")
	if !strings.Contains(out, `"package": "dbooru"`) {
		t.Errorf("version --json = %q", out)
	}
}
