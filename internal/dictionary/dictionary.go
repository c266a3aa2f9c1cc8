// Package dictionary owns the accepted word set.
//
// The active set is an immutable snapshot swapped in atomically on every
// successful load, so lookups running in game sessions never observe a
// half-loaded list. A failed load keeps the previous snapshot.
package dictionary

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/text/cases"
)

//go:embed default_words.txt
var embeddedWords string

var ErrEmpty = errors.New("dictionary: word list is empty")

const maxWordLen = 100

type snapshot struct {
	set      map[string]struct{}
	sorted   []string
	loadedAt time.Time
}

type Dictionary struct {
	cur atomic.Pointer[snapshot]
}

// New returns an empty dictionary. Every lookup misses until a load succeeds.
func New() *Dictionary {
	d := &Dictionary{}
	d.cur.Store(&snapshot{set: map[string]struct{}{}})
	return d
}

// FromWords builds a dictionary from an in-memory list.
func FromWords(words ...string) *Dictionary {
	d := New()
	d.swap(normalize(words))
	return d
}

// Default returns a dictionary backed by the embedded word list.
func Default() *Dictionary {
	d := New()
	_ = d.Load(strings.NewReader(embeddedWords))
	return d
}

// Load replaces the active set with the words read from r.
func (d *Dictionary) Load(r io.Reader) error {
	words, err := readWords(r)
	if err != nil {
		return fmt.Errorf("dictionary: read: %w", err)
	}
	if len(words) == 0 {
		return ErrEmpty
	}
	d.swap(words)
	return nil
}

// LoadFile replaces the active set with the contents of path.
func (d *Dictionary) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}
	defer f.Close()
	return d.Load(f)
}

// LoadFiles merges several word sources into one set. It is all or
// nothing: if any source fails, every failure is reported and the previous
// set stays active.
func (d *Dictionary) LoadFiles(paths ...string) error {
	var (
		all  []string
		errs error
	)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dictionary: %w", err))
			continue
		}
		words, err := readWords(f)
		f.Close()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dictionary: read %s: %w", p, err))
			continue
		}
		all = append(all, words...)
	}
	if errs != nil {
		return errs
	}
	if len(all) == 0 {
		return ErrEmpty
	}
	d.swap(all)
	return nil
}

// Contains reports whether word is in the active set, ignoring case.
func (d *Dictionary) Contains(word string) bool {
	_, ok := d.cur.Load().set[fold(word)]
	return ok
}

// WordsWithPrefix returns words starting with prefix in lexical order.
// A limit of zero or less returns every match.
func (d *Dictionary) WordsWithPrefix(prefix string, limit int) []string {
	s := d.cur.Load()
	prefix = fold(prefix)
	i := sort.SearchStrings(s.sorted, prefix)
	var out []string
	for ; i < len(s.sorted); i++ {
		w := s.sorted[i]
		if !strings.HasPrefix(w, prefix) {
			break
		}
		out = append(out, w)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (d *Dictionary) Len() int { return len(d.cur.Load().sorted) }

// LoadedAt is the zero time until the first successful load.
func (d *Dictionary) LoadedAt() time.Time { return d.cur.Load().loadedAt }

func (d *Dictionary) swap(words []string) {
	set := make(map[string]struct{}, len(words))
	sorted := make([]string, 0, len(words))
	for _, w := range words {
		if _, dup := set[w]; dup {
			continue
		}
		set[w] = struct{}{}
		sorted = append(sorted, w)
	}
	sort.Strings(sorted)
	d.cur.Store(&snapshot{set: set, sorted: sorted, loadedAt: time.Now()})
}

func readWords(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if w := fold(line); isWord(w) {
			out = append(out, w)
		}
	}
	return out, sc.Err()
}

func normalize(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = fold(strings.TrimSpace(w)); isWord(w) {
			out = append(out, w)
		}
	}
	return out
}

// fold builds a fresh Caser per call; a Caser must not be shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

func isWord(s string) bool {
	if len(s) == 0 || len(s) > maxWordLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
