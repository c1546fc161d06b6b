package archive

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("content of "+name), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return paths
}

func zipMembers(t *testing.T, path string) []string {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip %s: %v", path, err)
	}
	defer func() { _ = reader.Close() }()
	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names
}

func TestArchiveName(t *testing.T) {
	cases := []struct {
		stem string
		ext  string
		want string
	}{
		{"alpha", "zip", "alpha.zip"},
		{"alpha", ".zip", "alpha.zip"},
		{"alpha", "", "alpha.zip"},
	}
	for _, c := range cases {
		if got := ArchiveName(c.stem, c.ext); got != c.want {
			t.Fatalf("ArchiveName(%q,%q)=%q want %q", c.stem, c.ext, got, c.want)
		}
	}
}

func TestPackageWritesAllMembers(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	files := writeFiles(t, dataDir, "alpha_1.csv", "alpha_2.csv")

	res := Package(context.Background(), Task{
		Stem:        "alpha",
		Files:       files,
		SourceDir:   dataDir,
		OutputDir:   outDir,
		ArchiveName: "alpha.zip",
		Overwrite:   true,
	})
	if res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.FileCount != 2 || res.ArchivePath != filepath.Join(outDir, "alpha.zip") {
		t.Fatalf("unexpected result: %+v", res)
	}
	if diff := cmp.Diff([]string{"alpha_1.csv", "alpha_2.csv"}, zipMembers(t, res.ArchivePath)); diff != "" {
		t.Fatalf("member mismatch (-want +got):\n%s", diff)
	}

	reader, err := zip.OpenReader(res.ArchivePath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = reader.Close() }()
	rc, err := reader.File[0].Open()
	if err != nil {
		t.Fatalf("open member: %v", err)
	}
	defer func() { _ = rc.Close() }()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read member: %v", err)
	}
	if string(content) != "content of alpha_1.csv" {
		t.Fatalf("unexpected member content %q", content)
	}
}

func TestPackageEmptyGroupPolicies(t *testing.T) {
	outDir := t.TempDir()

	skipped := Package(context.Background(), Task{Stem: "ghost", OutputDir: outDir, EmptyPolicy: EmptySkip, Overwrite: true})
	if skipped.Status != StatusSkipped || skipped.Reason != ReasonNoFiles {
		t.Fatalf("expected skipped result, got %+v", skipped)
	}
	if _, err := os.Stat(filepath.Join(outDir, "ghost.zip")); !os.IsNotExist(err) {
		t.Fatalf("skip policy must not write an archive, stat err=%v", err)
	}

	empty := Package(context.Background(), Task{Stem: "ghost", OutputDir: outDir, EmptyPolicy: EmptyArchive, Overwrite: true})
	if empty.Status != StatusSucceeded || empty.FileCount != 0 {
		t.Fatalf("expected empty archive success, got %+v", empty)
	}
	if got := zipMembers(t, empty.ArchivePath); len(got) != 0 {
		t.Fatalf("expected zero members, got %v", got)
	}
}

func TestPackageOverwriteDisabledSkipsExisting(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	files := writeFiles(t, dataDir, "alpha_1.csv")
	dest := filepath.Join(outDir, "alpha.zip")
	if err := os.WriteFile(dest, []byte("existing"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := Package(context.Background(), Task{Stem: "alpha", Files: files, OutputDir: outDir, ArchiveName: "alpha.zip"})
	if res.Status != StatusSkipped || res.Reason != ReasonArchiveExists {
		t.Fatalf("expected skipped/exists, got %+v", res)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "existing" {
		t.Fatalf("existing archive modified")
	}
}

func TestPackageUnreadableFileLeavesNoArchive(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	files := writeFiles(t, dataDir, "beta_1.csv")
	broken := filepath.Join(dataDir, "beta_2.csv")
	if err := os.Symlink(filepath.Join(dataDir, "missing"), broken); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	files = append(files, broken)

	res := Package(context.Background(), Task{Stem: "beta", Files: files, OutputDir: outDir, ArchiveName: "beta.zip", Overwrite: true})
	if res.Status != StatusFailed || !strings.Contains(res.Err, "beta_2.csv") {
		t.Fatalf("expected failure naming the broken file, got %+v", res)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read out dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files in output dir, found %d", len(entries))
	}
}

func TestPackageCancelledContext(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	files := writeFiles(t, dataDir, "alpha_1.csv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Package(ctx, Task{Stem: "alpha", Files: files, OutputDir: outDir, Overwrite: true})
	if res.Status != StatusFailed || res.Err != context.Canceled.Error() {
		t.Fatalf("expected cancellation failure, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(outDir, "alpha.zip")); !os.IsNotExist(err) {
		t.Fatalf("archive must not exist after cancellation")
	}
}

func TestEntryNames(t *testing.T) {
	dataDir := filepath.Join("data")
	files := []string{
		filepath.Join(dataDir, "2023", "alpha_1.csv"),
		filepath.Join(dataDir, "2024", "alpha_1.csv"),
		filepath.Join(dataDir, "alpha_2.csv"),
	}

	flat := entryNames(Task{Files: files, SourceDir: dataDir, Layout: LayoutFlat})
	if diff := cmp.Diff([]string{"alpha_1.csv", "alpha_1(1).csv", "alpha_2.csv"}, flat); diff != "" {
		t.Fatalf("flat names (-want +got):\n%s", diff)
	}

	nested := entryNames(Task{Files: files, SourceDir: dataDir, Layout: LayoutNested})
	if diff := cmp.Diff([]string{"2023/alpha_1.csv", "2024/alpha_1.csv", "alpha_2.csv"}, nested); diff != "" {
		t.Fatalf("nested names (-want +got):\n%s", diff)
	}
}

func TestEntryNamesSuffixNeverCollides(t *testing.T) {
	files := []string{
		filepath.Join("data", "a", "x_1(1).csv"),
		filepath.Join("data", "a", "x_1.csv"),
		filepath.Join("data", "b", "x_1.csv"),
		filepath.Join("data", "c", "x_1.csv"),
	}
	got := entryNames(Task{Files: files, SourceDir: "data", Layout: LayoutFlat})
	want := []string{"x_1(1).csv", "x_1.csv", "x_1(2).csv", "x_1(3).csv"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("flat names (-want +got):\n%s", diff)
	}
}

func TestPackageMissingOutputDir(t *testing.T) {
	res := Package(context.Background(), Task{Stem: "alpha", Files: []string{"x"}})
	if res.Status != StatusFailed || res.Err != ErrNoOutputDir.Error() {
		t.Fatalf("expected output dir failure, got %+v", res)
	}
}
