package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Entry describes one report file.
type Entry struct {
	Name      string
	Path      string
	Size      int64
	Target    string
	CreatedAt time.Time
}

// HumanSize renders the file size for operators ("1.2 kB").
func (e Entry) HumanSize() string {
	return humanize.Bytes(uint64(e.Size))
}

// Catalog lists reports in a directory. It never modifies the directory.
type Catalog struct {
	dir string
}

// NewCatalog creates a Catalog over dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// List returns the last limit reports in filename order. A limit of zero
// or less returns all of them. A missing directory yields no entries.
func (c *Catalog) List(limit int) ([]Entry, error) {
	return c.list(limit, func(Entry) bool { return true })
}

// ListTarget is List restricted to one target.
func (c *Catalog) ListTarget(target string, limit int) ([]Entry, error) {
	return c.list(limit, func(e Entry) bool { return e.Target == target })
}

func (c *Catalog) list(limit int, keep func(Entry) bool) ([]Entry, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read report dir: %w", err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		target, at, ok := ParseFileName(d.Name())
		if !ok {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		e := Entry{
			Name:      d.Name(),
			Path:      filepath.Join(c.dir, d.Name()),
			Size:      info.Size(),
			Target:    target,
			CreatedAt: at,
		}
		if keep(e) {
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// ParseFileName splits summary_<target>_<YYYYMMDD_HHMMSS>.txt into its
// target and local timestamp.
func ParseFileName(name string) (string, time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", time.Time{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if len(core) < len(stampLayout)+2 {
		return "", time.Time{}, false
	}
	stamp := core[len(core)-len(stampLayout):]
	sep := len(core) - len(stampLayout) - 1
	if core[sep] != '_' {
		return "", time.Time{}, false
	}
	at, err := time.ParseInLocation(stampLayout, stamp, time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return core[:sep], at, true
}
