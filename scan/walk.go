package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Enumerate lists the files under root that match the filename filter,
// honoring the recursion toggle and depth bound. Order is the walker's
// lexical order, so repeated runs over the same tree report identically.
//
// A root that does not exist or is not a directory is an error: there is
// nothing meaningful to report over. Unreadable subdirectories are skipped
// so one bad ACL cannot sink the batch.
func Enumerate(root, filter string, recurse bool, maxDepth int) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}
	if filter != "" {
		if _, err := filepath.Match(filter, "probe"); err != nil {
			return nil, fmt.Errorf("filename filter %q: %w", filter, err)
		}
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if p == root {
				return nil
			}
			if !recurse {
				return fs.SkipDir
			}
			if maxDepth >= 0 && dirLevel(root, p) > maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, d.Name()); !ok {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	return files, nil
}

// dirLevel is the number of directory levels dir sits below root. Files in a
// level-N directory are depth-N files, so a depth bound of N admits
// directories up to level N and no further.
func dirLevel(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
