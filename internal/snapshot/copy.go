package snapshot

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// guard decides which entries of a source directory are skipped during
// a recursive copy.
type guard struct {
	root    string   // snapshot store root, already resolved
	exclude []string // doublestar patterns, matched against slash paths
}

// skipDir reports whether a directory must not be descended into.
func (g guard) skipDir(path, rel, name string) bool {
	if name == DirName {
		return true
	}
	if within(g.root, path) {
		return true
	}
	return g.excluded(rel, name)
}

// excluded matches the entry's path relative to the copy source, and its
// bare name, against the exclude patterns.
func (g guard) excluded(rel, name string) bool {
	slashRel := filepath.ToSlash(rel)
	for _, pattern := range g.exclude {
		if ok, _ := doublestar.Match(pattern, slashRel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// within reports whether candidate is root itself or one of its
// descendants. Both the literal and the symlink-resolved form of the
// candidate are checked.
func within(root, candidate string) bool {
	if isDescendant(root, candidate) {
		return true
	}
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		return isDescendant(root, resolved)
	}
	return false
}

func isDescendant(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// copyFile copies a regular file, preserving its permission bits.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyDir recursively copies src into dst, skipping whatever the guard
// rejects. Symlinks are recreated, not followed. Existing files in dst
// are overwritten; files only present in dst are left alone.
func copyDir(src, dst string, g guard) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if rel != "." && g.skipDir(path, rel, d.Name()) {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if g.excluded(rel, d.Name()) {
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil // sockets, devices, pipes
		}
	})
}

// copyPath copies a file or a directory tree to dst.
func copyPath(src, dst string, g guard) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst, g)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file or directory", src)
	}
	return copyFile(src, dst)
}
