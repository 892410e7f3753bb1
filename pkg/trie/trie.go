// Package trie implements a generic pattern trie for slash-separated
// names. It backs the registries that route a provider name like
// "piper/en_US-amy" to a handler.
//
// Registered patterns may contain wildcards:
//   - "a/b"  matches exactly
//   - "a/*"  matches any single segment ("a/x" but not "a/x/y")
//   - "a/**" matches one or more remaining segments (must end the pattern)
//
// On lookup an exact segment wins over "*", which wins over "**".
package trie

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrBadPattern is returned for malformed patterns, such as segments
// after a "**" wildcard.
var ErrBadPattern = errors.New(`trie: pattern must look like "a/b", "a/*", or "a/**"`)

// Trie stores values of type T under slash-separated patterns and
// resolves names against them. The zero value is not usable; call New.
// Trie is not safe for concurrent mutation.
type Trie[T any] struct {
	children map[string]*Trie[T] // exact segment
	wildOne  *Trie[T]            // "*"
	wildRest *Trie[T]            // "**"
	set      bool
	value    T
}

// New creates an empty Trie.
func New[T any]() *Trie[T] {
	return &Trie[T]{}
}

func (t *Trie[T]) assign(fn func(ptr *T, existed bool) error) error {
	if err := fn(&t.value, t.set); err != nil {
		return err
	}
	t.set = true
	return nil
}

// Set stores a value under pattern. fn receives a pointer to the slot
// and whether a value already existed there, so callers can decide how
// to handle replacement.
func (t *Trie[T]) Set(pattern string, fn func(ptr *T, existed bool) error) error {
	if pattern == "" {
		return t.assign(fn)
	}
	head, rest := splitSeg(pattern)
	switch head {
	case "*":
		if t.wildOne == nil {
			t.wildOne = &Trie[T]{}
		}
		return t.wildOne.Set(rest, fn)
	case "**":
		if rest != "" {
			return ErrBadPattern
		}
		if t.wildRest == nil {
			t.wildRest = &Trie[T]{}
		}
		return t.wildRest.assign(fn)
	default:
		if t.children == nil {
			t.children = make(map[string]*Trie[T])
		}
		ch, ok := t.children[head]
		if !ok {
			ch = &Trie[T]{}
			t.children[head] = ch
		}
		return ch.Set(rest, fn)
	}
}

// SetValue stores value under pattern, replacing any previous value.
func (t *Trie[T]) SetValue(pattern string, value T) error {
	return t.Set(pattern, func(ptr *T, _ bool) error {
		*ptr = value
		return nil
	})
}

// GetValue resolves name and returns the stored value.
func (t *Trie[T]) GetValue(name string) (T, bool) {
	_, v, ok := t.match("", name)
	if !ok {
		var zero T
		return zero, false
	}
	return v, true
}

// Match resolves name and returns the winning pattern alongside the
// stored value.
func (t *Trie[T]) Match(name string) (pattern string, value T, ok bool) {
	return t.match("", name)
}

func (t *Trie[T]) match(prefix, name string) (string, T, bool) {
	if name == "" {
		return prefix, t.value, t.set
	}
	head, rest := splitSeg(name)
	if t.children != nil {
		if ch, ok := t.children[head]; ok {
			if pat, v, ok := ch.match(join(prefix, head), rest); ok {
				return pat, v, true
			}
		}
	}
	if t.wildOne != nil {
		if pat, v, ok := t.wildOne.match(join(prefix, "*"), rest); ok {
			return pat, v, true
		}
	}
	if t.wildRest != nil && t.wildRest.set {
		return join(prefix, "**"), t.wildRest.value, true
	}
	var zero T
	return "", zero, false
}

// Walk calls f for every stored pattern. Order is unspecified.
func (t *Trie[T]) Walk(f func(pattern string, value T)) {
	t.walk("", f)
}

func (t *Trie[T]) walk(prefix string, f func(string, T)) {
	if t.set {
		f(prefix, t.value)
	}
	for seg, ch := range t.children {
		ch.walk(join(prefix, seg), f)
	}
	if t.wildOne != nil {
		t.wildOne.walk(join(prefix, "*"), f)
	}
	if t.wildRest != nil {
		t.wildRest.walk(join(prefix, "**"), f)
	}
}

// Len returns the number of stored patterns.
func (t *Trie[T]) Len() int {
	n := 0
	t.Walk(func(string, T) { n++ })
	return n
}

// String renders the stored patterns sorted, one per line. For debugging.
func (t *Trie[T]) String() string {
	var lines []string
	t.Walk(func(pattern string, value T) {
		lines = append(lines, fmt.Sprintf("%s: %v", pattern, value))
	})
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func splitSeg(s string) (head, rest string) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func join(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "/" + seg
}
