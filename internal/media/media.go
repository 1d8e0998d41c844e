// Package media keeps the fixed lists of audio clips and images the bot
// picks from. A Library is built once at startup and never re-read.
package media

import (
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type Source string

const (
	SourceScan   Source = "scan"   // list the directory once
	SourceStatic Source = "static" // use a configured list of names
)

// Rand is the randomness a Library needs. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) IntN(n int) int                     { return rand.IntN(n) }
func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultRand uses the goroutine-safe top-level math/rand/v2 source.
var DefaultRand Rand = globalRand{}

// Library is an immutable snapshot of candidate file paths.
type Library struct {
	dir   string
	items []string
}

// Load builds a library from either a directory scan or a static list.
func Load(source Source, dir string, names, exts []string) (*Library, error) {
	switch source {
	case SourceScan, "":
		return Scan(dir, exts)
	case SourceStatic:
		return Static(dir, names), nil
	default:
		return nil, fmt.Errorf("unknown media source %q", source)
	}
}

// Scan lists dir recursively and keeps files whose extension is in exts
// (case-insensitive). An empty exts keeps every file.
func Scan(dir string, exts []string) (*Library, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("media folder %s: %w", dir, err)
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var items []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(allowed) == 0 || allowed[strings.ToLower(filepath.Ext(d.Name()))] {
			items = append(items, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	slices.Sort(items)
	return &Library{dir: dir, items: items}, nil
}

// Static uses names relative to dir as is. Names are not checked here; a
// missing file is detected when it is picked.
func Static(dir string, names []string) *Library {
	items := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			items = append(items, filepath.Join(dir, n))
		}
	}
	return &Library{dir: dir, items: items}
}

func (l *Library) Dir() string { return l.dir }

func (l *Library) Len() int { return len(l.items) }

// Items returns a copy of the candidate paths.
func (l *Library) Items() []string {
	return slices.Clone(l.items)
}

// Pick returns one path chosen uniformly at random.
func (l *Library) Pick(r Rand) (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	return l.items[r.IntN(len(l.items))], true
}

// PickShuffled shuffles a copy of the list and returns its first entry.
func (l *Library) PickShuffled(r Rand) (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	items := l.Items()
	r.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	return items[0], true
}

// Exists reports whether path is a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
