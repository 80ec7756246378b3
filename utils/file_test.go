package utils

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestSafeJoinDir(t *testing.T) {
	parentDir := "/some/parent"

	validSubdirs := []string{"sub", "sub/dir", "a/b/../c", "./sub"}
	for _, subdir := range validSubdirs {
		_, err := SafeJoinDir(parentDir, subdir)
		test.That(t, err, test.ShouldBeNil)
	}

	invalidSubdirs := []string{"../../../etc/passwd", "..", "../sibling", ""}
	for _, subdir := range invalidSubdirs {
		_, err := SafeJoinDir(parentDir, subdir)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "unsafe path join")
	}
}

func TestExpandHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	test.That(t, err, test.ShouldBeNil)

	expanded, err := ExpandHomeDir("~/data")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, expanded, test.ShouldEqual, filepath.Join(home, "data"))

	expanded, err = ExpandHomeDir("/abs/data")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, expanded, test.ShouldEqual, "/abs/data")
}

func TestResolvePath(t *testing.T) {
	test.That(t, ResolvePath("/base", "rel/file.ply"), test.ShouldEqual, "/base/rel/file.ply")
	test.That(t, ResolvePath("/base", "/abs/file.ply"), test.ShouldEqual, "/abs/file.ply")
	test.That(t, ResolvePath("/base", ""), test.ShouldEqual, "")
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	test.That(t, os.WriteFile(src, []byte("cloud"), 0o600), test.ShouldBeNil)
	test.That(t, CopyFile(src, dst), test.ShouldBeNil)

	//nolint:gosec
	got, err := os.ReadFile(dst)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(got), test.ShouldEqual, "cloud")

	test.That(t, DirExists(dir), test.ShouldBeTrue)
	test.That(t, DirExists(src), test.ShouldBeFalse)
	test.That(t, CopyFile(filepath.Join(dir, "missing"), dst), test.ShouldNotBeNil)
}
