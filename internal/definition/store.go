package definition

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Select returns a copy holding only the records of config, plus those
// without a config. The copy is validated on its own so that a record
// pointing at a node of another configuration fails with ErrMissingNode.
func (d *Definition) Select(config string) (*Definition, error) {
	if !d.HasConfig(config) {
		return nil, fmt.Errorf("%s: %q: %w", d.Name, config, ErrUnknownConfig)
	}
	in := func(c string) bool { return c == "" || c == config }

	out := *d
	out.Nodes = filter(d.Nodes, func(n Node) bool { return in(n.Config) })
	out.Beams = filter(d.Beams, func(b Beam) bool { return in(b.Config) })
	out.Shocks = filter(d.Shocks, func(s Shock) bool { return in(s.Config) })
	out.Hydros = filter(d.Hydros, func(h Hydro) bool { return in(h.Config) })
	out.Commands = filter(d.Commands, func(c Command) bool { return in(c.Config) })
	out.Ties = filter(d.Ties, func(t Tie) bool { return in(t.Config) })
	if err := Validate(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Decode reads one JSON definition and validates it.
func Decode(r io.Reader) (*Definition, error) {
	var d Definition
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode: %v: %w", err, ErrMalformed)
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadFile decodes a .json or .json.gz definition file.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	d, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return d, nil
}

// Store maps definition names to validated, immutable records. It is safe
// for concurrent use.
type Store struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

func NewStore() *Store {
	return &Store{defs: make(map[string]*Definition)}
}

// Put validates d and stores it under its name, replacing any previous one.
func (s *Store) Put(d *Definition) error {
	if err := Validate(d); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[d.Name] = d
	return nil
}

// Get returns the definition stored under name.
func (s *Store) Get(name string) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	return d, ok
}

// Names returns the stored names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.defs))
	for n := range s.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

// LoadDir loads every .json and .json.gz file in dir. Files that fail to
// load are skipped and reported together in the returned error; the count
// is the number of definitions stored.
func (s *Store) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")) {
			continue
		}
		d, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.Put(d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
