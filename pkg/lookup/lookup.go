// Package lookup resolves MeSH identifiers and names to canonical entries.
package lookup

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/japaniel/meshdb/pkg/db"
	"github.com/japaniel/meshdb/pkg/mesh"
)

// ErrNotFound is returned when nothing matches.
var ErrNotFound = errors.New("mesh entry not found")

// Entry is the canonical identifier/name pair of a record.
type Entry struct {
	UI          string   `json:"identifier"`
	Name        string   `json:"name"`
	TreeNumbers []string `json:"tree_numbers,omitempty"`
}

// Resolver finds records by identifier or by name.
type Resolver interface {
	ByUI(ui string) (Entry, error)
	ByName(name string) (Entry, error)
}

var folder = cases.Fold()

// Key folds case and normalizes unicode so that "Neoplasms", "NEOPLASMS" and
// compatibility forms of the same text collide.
func Key(s string) string {
	return folder.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// Index is an in-memory Resolver over extracted records. Names are matched on
// record names first, then on term names. An Index is read-only once built and
// safe for concurrent use.
type Index struct {
	byUI   map[string]Entry
	byName map[string][]string
	byTerm map[string][]string
}

// NewIndex builds an index of records. When several records share a name the
// lowest identifier wins.
func NewIndex(records []mesh.Record) *Index {
	idx := &Index{
		byUI:   make(map[string]Entry, len(records)),
		byName: make(map[string][]string, len(records)),
		byTerm: make(map[string][]string),
	}
	for _, r := range records {
		idx.add(r)
	}
	for _, m := range []map[string][]string{idx.byName, idx.byTerm} {
		for k, uis := range m {
			sort.Strings(uis)
			m[k] = dedupSorted(uis)
		}
	}
	return idx
}

func (idx *Index) add(r mesh.Record) {
	if r.UI == "" {
		return
	}
	if _, ok := idx.byUI[r.UI]; ok {
		return
	}
	idx.byUI[r.UI] = Entry{UI: r.UI, Name: r.Name, TreeNumbers: r.TreeNumbers}
	if k := Key(r.Name); k != "" {
		idx.byName[k] = append(idx.byName[k], r.UI)
	}
	for _, c := range r.Concepts {
		if k := Key(c.Name); k != "" {
			idx.byTerm[k] = append(idx.byTerm[k], r.UI)
		}
		for _, t := range c.Terms {
			if k := Key(t.Name); k != "" {
				idx.byTerm[k] = append(idx.byTerm[k], r.UI)
			}
		}
	}
}

func dedupSorted(s []string) []string {
	out := s[:0]
	for i, v := range s {
		if i == 0 || v != s[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.byUI)
}

// ByUI returns the record with identifier ui.
func (idx *Index) ByUI(ui string) (Entry, error) {
	e, ok := idx.byUI[strings.ToUpper(strings.TrimSpace(ui))]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// ByName returns the record named name, falling back to the record owning a
// term of that name.
func (idx *Index) ByName(name string) (Entry, error) {
	k := Key(name)
	if k == "" {
		return Entry{}, ErrNotFound
	}
	uis, ok := idx.byName[k]
	if !ok {
		uis, ok = idx.byTerm[k]
	}
	if !ok || len(uis) == 0 {
		return Entry{}, ErrNotFound
	}
	return idx.byUI[uis[0]], nil
}

// StoreResolver resolves against a populated store.
type StoreResolver struct {
	DB db.DBExecutor
}

// NewStoreResolver creates a StoreResolver.
func NewStoreResolver(conn db.DBExecutor) *StoreResolver {
	return &StoreResolver{DB: conn}
}

// ByUI returns the stored descriptor with identifier ui.
func (s *StoreResolver) ByUI(ui string) (Entry, error) {
	d, err := db.GetDescriptorByUI(s.DB, strings.ToUpper(strings.TrimSpace(ui)))
	return fromDescriptor(d, err)
}

// ByName matches descriptor names, then term names.
func (s *StoreResolver) ByName(name string) (Entry, error) {
	d, err := db.GetDescriptorByName(s.DB, name)
	if errors.Is(err, db.ErrNotFound) {
		d, err = db.GetDescriptorByTermName(s.DB, name)
	}
	return fromDescriptor(d, err)
}

func fromDescriptor(d *db.Descriptor, err error) (Entry, error) {
	if errors.Is(err, db.ErrNotFound) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{UI: d.DescriptorUI, Name: d.Name, TreeNumbers: d.TreeNumbers}, nil
}
