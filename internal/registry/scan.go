// Package registry discovers installed modes by scanning directories for
// modes/*.mode files and classifying them by file name.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"apyd/internal/common/fsutil"
	"apyd/internal/langpair"
)

// Kind is a class of installed mode.
type Kind string

const (
	Pairs      Kind = "pairs"
	Analyzers  Kind = "analyzers"
	Generators Kind = "generators"
	Taggers    Kind = "taggers"
)

// ParseKind accepts the plural and singular forms used by the HTTP layer.
func ParseKind(s string) (Kind, bool) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "pair":
		return Pairs, true
	case "analyzer", "analyser":
		return Analyzers, true
	case "generator":
		return Generators, true
	case "tagger":
		return Taggers, true
	}
	return "", false
}

// Mode locates one installed mode file.
type Mode struct {
	// Name is the mode file name without extension, e.g. "eng-spa".
	Name string
	// Dir is the install root: the parent of the modes directory.
	Dir string
	// Path is the absolute path of the .mode file.
	Path string
}

// Registry is an immutable snapshot of what is installed. Pairs are indexed
// by "src-trg", the others by language code (or "lang-lang" for
// bilingual analyzers and generators).
type Registry struct {
	Pairs      map[string]Mode
	Analyzers  map[string]Mode
	Generators map[string]Mode
	Taggers    map[string]Mode
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		Pairs:      map[string]Mode{},
		Analyzers:  map[string]Mode{},
		Generators: map[string]Mode{},
		Taggers:    map[string]Mode{},
	}
}

// Modes returns the table for kind; nil for an unknown kind.
func (r *Registry) Modes(kind Kind) map[string]Mode {
	switch kind {
	case Pairs:
		return r.Pairs
	case Analyzers:
		return r.Analyzers
	case Generators:
		return r.Generators
	case Taggers:
		return r.Taggers
	}
	return nil
}

// Lookup finds the mode installed for name under kind.
func (r *Registry) Lookup(kind Kind, name string) (Mode, bool) {
	m, ok := r.Modes(kind)[name]
	return m, ok
}

// Installed returns the set of installed pair keys.
func (r *Registry) Installed() langpair.Set {
	s := make(langpair.Set, len(r.Pairs))
	for k := range r.Pairs {
		s[k] = struct{}{}
	}
	return s
}

// Names returns the sorted keys of kind's table.
func (r *Registry) Names(kind Kind) []string {
	m := r.Modes(kind)
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Empty reports whether nothing at all is installed.
func (r *Registry) Empty() bool {
	return len(r.Pairs)+len(r.Analyzers)+len(r.Generators)+len(r.Taggers) == 0
}

const langRE = `[a-z]{2,3}(?:_[A-Za-z0-9]+)*`

// Order matters: "eng-mor" would also read as a pair.
var classifiers = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{Analyzers, regexp.MustCompile(`^(` + langRE + `(?:-` + langRE + `)?)-(?:an)?mor(?:ph)?$`)},
	{Generators, regexp.MustCompile(`^(` + langRE + `(?:-` + langRE + `)?)-gener[A-Za-z]*$`)},
	{Taggers, regexp.MustCompile(`^(` + langRE + `(?:-` + langRE + `)?)-tagger$`)},
	{Pairs, regexp.MustCompile(`^(` + langRE + `-` + langRE + `)$`)},
}

// Classify maps a mode name to its kind and lookup key.
func Classify(name string) (Kind, string, bool) {
	for _, c := range classifiers {
		if m := c.re.FindStringSubmatch(name); m != nil {
			return c.kind, m[1], true
		}
	}
	return "", "", false
}

// Scan walks dirs in order and registers every modes/*.mode file found. When
// the same name is installed twice the first directory wins. Missing
// directories are skipped; other walk errors abort the scan.
func Scan(dirs ...string) (*Registry, error) {
	roots, err := fsutil.AbsDirs(dirs)
	if err != nil {
		return nil, err
	}
	reg := New()
	for _, root := range roots {
		if err := scanRoot(reg, root); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func scanRoot(reg *Registry, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtrees do not hide the rest of the install.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".mode" {
			return nil
		}
		modesDir := filepath.Dir(path)
		if filepath.Base(modesDir) != "modes" {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), ".mode")
		kind, key, ok := Classify(name)
		if !ok {
			return nil
		}
		table := reg.Modes(kind)
		if _, dup := table[key]; !dup {
			table[key] = Mode{Name: name, Dir: filepath.Dir(modesDir), Path: path}
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	return nil
}

// ModesDirs lists every directory named "modes" under dirs. The watcher
// subscribes to these as well as to the roots.
func ModesDirs(dirs ...string) []string {
	roots, err := fsutil.AbsDirs(dirs)
	if err != nil {
		return nil
	}
	var out []string
	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() && path != root {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() && d.Name() == "modes" {
				out = append(out, path)
				return fs.SkipDir
			}
			return nil
		})
	}
	return out
}
