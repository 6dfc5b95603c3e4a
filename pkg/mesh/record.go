package mesh

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Version returns the current version of the package.
func Version() string { return "0.2.0" }

// RecordKind tells descriptors apart from supplemental concept records.
type RecordKind string

const (
	KindDescriptor   RecordKind = "descriptor"
	KindSupplemental RecordKind = "supplemental"
)

// identifierPattern matches descriptor (D) and supplemental (C) identifiers.
var identifierPattern = regexp.MustCompile(`^[CD]\d{6,9}$`)

// IsIdentifier reports whether s looks like a MeSH record identifier.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Record is a MeSH descriptor or supplemental record as extracted from the XML dump.
type Record struct {
	Kind        RecordKind
	UI          string
	Name        string
	SCRClass    string // supplemental records only
	TreeNumbers []string
	Concepts    []Concept
	Qualifiers  []Qualifier
	// Parents is filled by BuildParents; nil until then.
	Parents []string
}

// Concept groups synonymous terms under a record.
type Concept struct {
	UI            string            `json:"concept_ui"`
	Name          string            `json:"name"`
	SemanticTypes []string          `json:"semantic_types"`
	Terms         []Term            `json:"terms"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Term is a single lexical string of a concept. Permuted variants share a UI.
type Term struct {
	UI         string            `json:"term_ui"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Qualifier is an allowable subheading of a descriptor.
type Qualifier struct {
	UI   string `json:"qualifier_ui"`
	Name string `json:"name"`
}

// recordJSON is the on-disk cache shape. Exactly one of DescriptorUI and
// SupplementalUI is set.
type recordJSON struct {
	DescriptorUI   string      `json:"descriptor_ui,omitempty"`
	SupplementalUI string      `json:"supplemental_ui,omitempty"`
	Name           string      `json:"name"`
	SCRClass       string      `json:"scr,omitempty"`
	TreeNumbers    []string    `json:"tree_numbers"`
	Concepts       []Concept   `json:"concepts"`
	Qualifiers     []Qualifier `json:"qualifiers,omitempty"`
	Parents        []string    `json:"parents"`
}

// MarshalJSON writes the record in the cache format.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Name:        r.Name,
		SCRClass:    r.SCRClass,
		TreeNumbers: nonNil(r.TreeNumbers),
		Concepts:    r.Concepts,
		Qualifiers:  r.Qualifiers,
		Parents:     nonNil(r.Parents),
	}
	if out.Concepts == nil {
		out.Concepts = []Concept{}
	}
	if r.Kind == KindSupplemental {
		out.SupplementalUI = r.UI
	} else {
		out.DescriptorUI = r.UI
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the cache format. The identifier key decides the kind.
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.DescriptorUI != "":
		r.Kind, r.UI = KindDescriptor, in.DescriptorUI
	case in.SupplementalUI != "":
		r.Kind, r.UI = KindSupplemental, in.SupplementalUI
	default:
		return fmt.Errorf("record %q has no identifier", in.Name)
	}
	r.Name = in.Name
	r.SCRClass = in.SCRClass
	r.TreeNumbers = in.TreeNumbers
	r.Concepts = in.Concepts
	r.Qualifiers = in.Qualifiers
	r.Parents = in.Parents
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
