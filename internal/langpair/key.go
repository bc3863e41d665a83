// Package langpair models configuration keys ("src-trg" pairs with optional
// underscore-separated variants) and the two resolvers built on them:
// variant fallback and multi-hop path search over installed pairs.
package langpair

import (
	"fmt"
	"sort"
	"strings"
)

// Lang is one side of a key: a base code plus variant segments in written
// order, e.g. "cat_valencia_uni" -> {Base: "cat", Variants: [valencia uni]}.
type Lang struct {
	Base     string
	Variants []string
}

// ParseLang splits a language code into base and variants.
func ParseLang(s string) (Lang, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Lang{}, fmt.Errorf("empty language code")
	}
	parts := strings.Split(s, "_")
	for _, p := range parts {
		if p == "" {
			return Lang{}, fmt.Errorf("malformed language code %q", s)
		}
	}
	l := Lang{Base: parts[0]}
	if len(parts) > 1 {
		l.Variants = append([]string(nil), parts[1:]...)
	}
	return l, nil
}

// Truncate keeps the first n variant segments.
func (l Lang) Truncate(n int) Lang {
	if n >= len(l.Variants) {
		return l
	}
	if n <= 0 {
		return Lang{Base: l.Base}
	}
	return Lang{Base: l.Base, Variants: l.Variants[:n]}
}

func (l Lang) String() string {
	if len(l.Variants) == 0 {
		return l.Base
	}
	return l.Base + "_" + strings.Join(l.Variants, "_")
}

// Key identifies one installed pipeline, e.g. "spa-cat_valencia".
type Key struct {
	Src Lang
	Trg Lang
}

// ParseKey parses "src-trg".
func ParseKey(s string) (Key, error) {
	src, trg, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || strings.Contains(trg, "-") {
		return Key{}, fmt.Errorf("malformed pair %q: want src-trg", s)
	}
	return NewKey(src, trg)
}

// NewKey builds a key from its two language codes.
func NewKey(src, trg string) (Key, error) {
	sl, err := ParseLang(src)
	if err != nil {
		return Key{}, err
	}
	tl, err := ParseLang(trg)
	if err != nil {
		return Key{}, err
	}
	return Key{Src: sl, Trg: tl}, nil
}

// MustKey is ParseKey for literals known to be valid.
func MustKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) String() string { return k.Src.String() + "-" + k.Trg.String() }

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k.Src.Base == "" && k.Trg.Base == "" }

// Set is a set of installed keys, indexed by their string form.
type Set map[string]struct{}

// NewSet builds a Set from key strings.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is installed.
func (s Set) Has(k Key) bool {
	_, ok := s[k.String()]
	return ok
}

// Keys returns the parsed members in sorted order, skipping malformed ones.
func (s Set) Keys() []Key {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Key, 0, len(names))
	for _, n := range names {
		if k, err := ParseKey(n); err == nil {
			out = append(out, k)
		}
	}
	return out
}
