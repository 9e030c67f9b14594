package metadata

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dbooru.db"), Options{PoolSize: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for range 3 {
		if err := s.InsertFile(ctx, "abc"); err != nil {
			t.Fatalf("InsertFile: %v", err)
		}
	}
	n, err := s.CountFiles(ctx)
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if n != 1 {
		t.Errorf("CountFiles = %d, want 1", n)
	}
	ok, err := s.HasFile(ctx, "abc")
	if err != nil || !ok {
		t.Errorf("HasFile(abc) = %v, %v; want true", ok, err)
	}
	ok, err = s.HasFile(ctx, "missing")
	if err != nil || ok {
		t.Errorf("HasFile(missing) = %v, %v; want false", ok, err)
	}
}

func TestDeleteFile_CascadesAttributes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.InsertFile(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAttribute(ctx, "abc", "name", "cat.png"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAttribute(ctx, "abc", "tag", "cute"); err != nil {
		t.Fatal(err)
	}

	existed, err := s.DeleteFile(ctx, "abc")
	if err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if !existed {
		t.Error("DeleteFile reported no row")
	}

	attrs, err := s.ListAttributes(ctx, "abc")
	if err != nil {
		t.Fatalf("ListAttributes: %v", err)
	}
	if len(attrs) != 0 {
		t.Errorf("attributes after delete = %v, want none", attrs)
	}
	if _, err := s.GetAttribute(ctx, "abc", "name"); !errors.Is(err, ErrNoAttribute) {
		t.Errorf("GetAttribute after delete error = %v, want ErrNoAttribute", err)
	}

	existed, err = s.DeleteFile(ctx, "abc")
	if err != nil || existed {
		t.Errorf("second DeleteFile = %v, %v; want false, nil", existed, err)
	}
}

func TestSetAttribute_Replaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.InsertFile(ctx, "abc"); err != nil {
		t.Fatal(err)
	}

	for _, v := range []string{"one", "two", "three"} {
		if err := s.SetAttribute(ctx, "abc", "k", v); err != nil {
			t.Fatalf("SetAttribute(%q): %v", v, err)
		}
	}
	got, err := s.GetAttribute(ctx, "abc", "k")
	if err != nil {
		t.Fatalf("GetAttribute: %v", err)
	}
	if got != "three" {
		t.Errorf("GetAttribute = %q, want three", got)
	}
	attrs, _ := s.ListAttributes(ctx, "abc")
	if len(attrs) != 1 {
		t.Errorf("ListAttributes = %v, want one entry", attrs)
	}
}

func TestSetAttribute_UnknownFid(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetAttribute(context.Background(), "nope", "k", "v"); err == nil {
		t.Error("SetAttribute on unrecorded fid succeeded")
	}
}

func TestDeleteAttribute(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.InsertFile(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAttribute(ctx, "abc", "k", "v"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAttribute(ctx, "abc", "k"); err != nil {
		t.Fatalf("DeleteAttribute: %v", err)
	}
	if err := s.DeleteAttribute(ctx, "abc", "k"); !errors.Is(err, ErrNoAttribute) {
		t.Errorf("second DeleteAttribute error = %v, want ErrNoAttribute", err)
	}
}

func TestListAttributes_Sorted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.InsertFile(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"zeta", "alpha", "mid"} {
		if err := s.SetAttribute(ctx, "abc", k, k+"-v"); err != nil {
			t.Fatal(err)
		}
	}
	attrs, err := s.ListAttributes(ctx, "abc")
	if err != nil {
		t.Fatal(err)
	}
	want := []Attribute{{"alpha", "alpha-v"}, {"mid", "mid-v"}, {"zeta", "zeta-v"}}
	if !slices.Equal(attrs, want) {
		t.Errorf("ListAttributes = %v, want %v", attrs, want)
	}
}

func TestListFiles_Paging(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var want []string
	for i := range 25 {
		fid := fmt.Sprintf("fid%02d", i)
		want = append(want, fid)
		if err := s.InsertFile(ctx, fid); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		offset, limit int
		want          []string
	}{
		{0, 10, want[:10]},
		{10, 10, want[10:20]},
		{20, 10, want[20:]},
		{25, 10, nil},
		{100, 10, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d+%d", tt.offset, tt.limit), func(t *testing.T) {
			got, err := s.ListFiles(ctx, tt.offset, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ListFiles(%d, %d) = %v, want %v", tt.offset, tt.limit, got, tt.want)
			}
		})
	}

	var all []string
	for fid, err := range s.Files(ctx, 7) {
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, fid)
	}
	if !slices.Equal(all, want) {
		t.Errorf("Files = %v, want %v", all, want)
	}
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dbooru.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertFile(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if ok, _ := s.HasFile(ctx, "abc"); !ok {
		t.Error("fid lost across reopen")
	}
}
