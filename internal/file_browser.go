package internal

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
)

// FileItem is one row of the attachment browser.
type FileItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

type fileBrowser struct {
	path   string
	items  []FileItem
	cursor int
	err    error
}

func (b *fileBrowser) load(path string, items []FileItem) {
	b.path = path
	b.items = items
	b.cursor = 0
	b.err = nil
}

func (b *fileBrowser) move(delta int) {
	if len(b.items) == 0 {
		return
	}
	b.cursor = min(max(b.cursor+delta, 0), len(b.items)-1)
}

func (b *fileBrowser) selected() (FileItem, bool) {
	if b.cursor < 0 || b.cursor >= len(b.items) {
		return FileItem{}, false
	}
	return b.items[b.cursor], true
}

// browseDirectory lists path for the browser: parent first, then
// directories, then files, hidden entries skipped.
func browseDirectory(path string) ([]FileItem, error) {
	path = filepath.Clean(path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]FileItem, 0, len(entries)+1)
	for _, entry := range entries {
		if len(entry.Name()) > 0 && entry.Name()[0] == '.' {
			continue
		}
		item := FileItem{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return items[i].Name < items[j].Name
	})

	if parent := filepath.Dir(path); parent != path {
		items = append([]FileItem{{Name: "..", Path: parent, IsDir: true}}, items...)
	}
	return items, nil
}

// getDefaultBrowsePath returns a sensible starting directory for the browser.
func getDefaultBrowsePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		for _, dir := range []string{"Pictures", "Documents", "Downloads"} {
			candidate := filepath.Join(home, dir)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func formatFileSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
