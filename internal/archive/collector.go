package archive

import (
	"fmt"
	"os"
	"path/filepath"
)

// Entry pairs a source path on disk with the name it is stored under
// inside the archive.
type Entry struct {
	Source  string
	ArcName string
}

// EntryCollector walks the given input paths and produces the ordered
// list of (source, archive name) entries to pack. Top-level name
// collisions between distinct inputs are disambiguated with a
// "-2", "-3", ... suffix on the archive name, in input order.
type EntryCollector struct{}

// Collect walks inputs and returns the flattened entry list.
func (EntryCollector) Collect(inputs []string) ([]Entry, error) {
	var entries []Entry
	used := make(map[string]int)

	for _, p := range inputs {
		info, err := os.Lstat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, p)
		}

		base := filepath.Base(p)
		used[base]++
		top := base
		if n := used[base]; n > 1 {
			top = fmt.Sprintf("%s-%d", base, n)
		}

		if info.IsDir() {
			err := filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if fi.IsDir() {
					return nil
				}
				rel, err := filepath.Rel(p, path)
				if err != nil {
					return err
				}
				entries = append(entries, Entry{Source: path, ArcName: filepath.Join(top, rel)})
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPathNotFound, err)
			}
		} else {
			entries = append(entries, Entry{Source: p, ArcName: top})
		}
	}

	return entries, nil
}
