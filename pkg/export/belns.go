// Package export writes subsets of the vocabulary as BEL namespace files.
package export

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/japaniel/meshdb/pkg/db"
	"github.com/japaniel/meshdb/pkg/mesh"
)

// Namespace domains understood by BEL tooling.
const (
	DomainBiologicalProcess = "BiologicalProcess"
	DomainOther             = "Other"
)

// DefaultFunctions is used when a preset names no functions.
const DefaultFunctions = "A"

// Preset describes one namespace file cut from a tree category.
type Preset struct {
	Keyword     string
	Name        string
	Description string
	Domain      string
	// TreePrefix selects descriptors having a tree number starting with it.
	TreePrefix string
	// Functions is the encoding written for values whose own encoding is
	// unresolved.
	Functions string
}

var presets = map[string]Preset{
	"MESHA": {
		Keyword:     "MESHA",
		Name:        "Anatomy terms",
		Description: "MeSH Anatomy",
		Domain:      DomainOther,
		TreePrefix:  "A",
	},
	"MESHC": {
		Keyword:     "MESHC",
		Name:        "MESHC",
		Description: "MeSH Diseases",
		Domain:      DomainBiologicalProcess,
		TreePrefix:  "C",
		Functions:   "O",
	},
	"MESHE": {
		Keyword:     "MESHE",
		Name:        "Analytical, Diagnostic and Therapeutic Techniques and Equipment Category",
		Description: "MeSH Analytical, Diagnostic and Therapeutic Techniques and Equipment Category",
		Domain:      DomainOther,
		TreePrefix:  "E",
	},
	"MESHF": {
		Keyword:     "MESHF",
		Name:        "MeSH Psychiatry and Psychology",
		Description: "MeSH Psychiatry and Psychology",
		Domain:      DomainBiologicalProcess,
		TreePrefix:  "F",
		Functions:   "OBA",
	},
}

// LookupPreset returns the named preset. Any other "MESH<prefix>" keyword
// yields a generic preset over that tree prefix.
func LookupPreset(keyword string) (Preset, error) {
	kw := strings.ToUpper(strings.TrimSpace(keyword))
	if p, ok := presets[kw]; ok {
		return p, nil
	}
	prefix := strings.TrimPrefix(kw, "MESH")
	if prefix == kw || prefix == "" || !isTreePrefix(prefix) {
		return Preset{}, fmt.Errorf("unknown namespace %q", keyword)
	}
	return Preset{
		Keyword:     kw,
		Name:        kw,
		Description: "A namespace from MeSH entries starting with " + prefix,
		Domain:      DomainOther,
		TreePrefix:  prefix,
	}, nil
}

// PresetKeywords lists the named presets, sorted.
func PresetKeywords() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isTreePrefix(s string) bool {
	if s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s[1:] {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// Value is one namespace entry.
type Value struct {
	Name     string
	Encoding string
}

// Header holds the metadata sections of a namespace file.
type Header struct {
	Version   string
	Created   time.Time
	Author    string
	Contact   string
	Copyright string
	Citation  string
}

// DefaultHeader returns a header stamped with the current time.
func DefaultHeader(version string) Header {
	return Header{
		Version:   version,
		Created:   time.Now().UTC(),
		Author:    "meshdb",
		Copyright: "Other/Proprietary",
		Citation:  "MeSH",
	}
}

// Values selects descriptors with a tree number under p.TreePrefix and pairs
// each name with its encoding. Names are deduplicated and sorted.
func Values(p Preset, records []mesh.Record) []Value {
	var out []Value
	for _, r := range records {
		if r.Name == "" || !r.HasTreePrefix(p.TreePrefix) {
			continue
		}
		out = append(out, Value{Name: r.Name, Encoding: p.encoding(r.TreeNumbers)})
	}
	return sortValues(out)
}

// StoreValues is Values over a populated store.
func StoreValues(conn db.DBExecutor, p Preset) ([]Value, error) {
	ds, err := db.ListDescriptorsByTreePrefix(conn, p.TreePrefix)
	if err != nil {
		return nil, fmt.Errorf("list %s descriptors: %w", p.Keyword, err)
	}
	out := make([]Value, 0, len(ds))
	for _, d := range ds {
		out = append(out, Value{Name: d.Name, Encoding: p.encoding(d.TreeNumbers)})
	}
	return sortValues(out), nil
}

func (p Preset) encoding(treeNumbers []string) string {
	if enc := mesh.Encoding(treeNumbers); enc != mesh.EncodingUnresolved {
		return enc
	}
	if p.Functions != "" {
		return p.Functions
	}
	return DefaultFunctions
}

func sortValues(vs []Value) []Value {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Name < vs[j].Name })
	out := vs[:0]
	for i, v := range vs {
		if i > 0 && v.Name == vs[i-1].Name {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Write renders a BEL namespace file.
func Write(w io.Writer, p Preset, h Header, values []Value) error {
	bw := bufio.NewWriter(w)

	section := func(name string, kv ...string) {
		fmt.Fprintf(bw, "[%s]\n", name)
		for i := 0; i+1 < len(kv); i += 2 {
			fmt.Fprintf(bw, "%s=%s\n", kv[i], kv[i+1])
		}
		bw.WriteString("\n")
	}

	created := h.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	section("Namespace",
		"Keyword", p.Keyword,
		"NameString", p.Name,
		"DomainString", p.Domain,
		"DescriptionString", p.Description,
		"VersionString", h.Version,
		"CreatedDateTime", created.Format(time.RFC3339),
	)
	author := []string{"NameString", h.Author, "CopyrightString", h.Copyright}
	if h.Contact != "" {
		author = append(author, "ContactInfoString", h.Contact)
	}
	section("Author", author...)
	section("Citation", "NameString", h.Citation)
	section("Processing",
		"CaseSensitiveFlag", "yes",
		"DelimiterString", "|",
		"CacheableFlag", "yes",
	)

	bw.WriteString("[Values]\n")
	for _, v := range values {
		fmt.Fprintf(bw, "%s|%s\n", v.Name, v.Encoding)
	}
	return bw.Flush()
}
