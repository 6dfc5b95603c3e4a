// Package normalize rewrites MeSH references in labeled-graph documents to
// canonical identifier/name pairs.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/logging"
	"github.com/japaniel/meshdb/pkg/lookup"
	"github.com/japaniel/meshdb/pkg/mesh"
)

// CanonicalNamespace is the namespace resolved nodes are rewritten to.
const CanonicalNamespace = "mesh"

// meshLabels are the namespace labels, upper-cased, that refer to MeSH.
var meshLabels = map[string]struct{}{
	"MESH":   {},
	"MSH":    {},
	"MESHA":  {},
	"MESHC":  {},
	"MESHD":  {},
	"MESHE":  {},
	"MESHF":  {},
	"MESHPP": {},
	"MESHCS": {},
	"MESHDS": {},
}

// IsMeSHNamespace reports whether ns labels a MeSH vocabulary, ignoring case.
func IsMeSHNamespace(ns string) bool {
	_, ok := meshLabels[strings.ToUpper(strings.TrimSpace(ns))]
	return ok
}

// Node is a typed entity of a graph document.
type Node struct {
	Function   string `json:"function,omitempty"`
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
}

// Edge connects two nodes by index.
type Edge struct {
	Source   int    `json:"source"`
	Target   int    `json:"target"`
	Relation string `json:"relation"`
}

// Document is a labeled graph.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges,omitempty"`
}

// ReadDocument decodes a JSON document and checks that edges point at nodes.
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	for i, e := range doc.Edges {
		if e.Source < 0 || e.Source >= len(doc.Nodes) || e.Target < 0 || e.Target >= len(doc.Nodes) {
			return nil, fmt.Errorf("edge %d references a missing node (%d -> %d)", i, e.Source, e.Target)
		}
	}
	return &doc, nil
}

// WriteDocument encodes doc as indented JSON.
func WriteDocument(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ParseReference splits a "NS:value" reference. Values may contain colons.
func ParseReference(ref string) (namespace, value string, err error) {
	ns, v, ok := strings.Cut(strings.TrimSpace(ref), ":")
	ns, v = strings.TrimSpace(ns), strings.TrimSpace(v)
	if !ok || ns == "" || v == "" {
		return "", "", fmt.Errorf("invalid reference %q, want NS:value", ref)
	}
	return ns, strings.Trim(v, `"`), nil
}

// Result counts rewritten nodes per original namespace label and lists the
// MeSH references that could not be resolved.
type Result struct {
	Rewritten  map[string]int `json:"rewritten"`
	Unresolved []Node         `json:"unresolved,omitempty"`
}

// Total is the number of rewritten nodes.
func (r Result) Total() int {
	n := 0
	for _, c := range r.Rewritten {
		n += c
	}
	return n
}

// Labels returns the counted namespace labels, sorted.
func (r Result) Labels() []string {
	out := make([]string, 0, len(r.Rewritten))
	for k := range r.Rewritten {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalizer rewrites documents against a Resolver.
type Normalizer struct {
	Resolver lookup.Resolver
	Logger   *zap.Logger
}

// Normalize rewrites doc in place with a default Normalizer.
func Normalize(doc *Document, r lookup.Resolver) (Result, error) {
	return (&Normalizer{Resolver: r}).Normalize(doc)
}

// Normalize rewrites every MeSH node of doc in place. Identifiers and names
// may carry a MeSH "NS:" prefix. A node resolves by its identifier, or by its name when the name looks like an identifier, and
// otherwise by name. Nodes that do not resolve are left untouched. Resolver
// errors other than not found abort the run.
func (n *Normalizer) Normalize(doc *Document) (Result, error) {
	log := logging.OrNop(n.Logger)
	res := Result{Rewritten: map[string]int{}}

	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if !IsMeSHNamespace(node.Namespace) {
			continue
		}
		entry, err := n.resolve(*node)
		if errors.Is(err, lookup.ErrNotFound) {
			log.Debug("unresolved mesh reference",
				zap.String("namespace", node.Namespace),
				zap.String("name", node.Name),
				zap.String("identifier", node.Identifier))
			res.Unresolved = append(res.Unresolved, *node)
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("resolve node %d (%s:%s): %w", i, node.Namespace, node.Name, err)
		}

		res.Rewritten[node.Namespace]++
		node.Namespace = CanonicalNamespace
		node.Name = entry.Name
		node.Identifier = entry.UI
	}

	log.Info("normalized document",
		zap.Int("nodes", len(doc.Nodes)),
		zap.Int("rewritten", res.Total()),
		zap.Int("unresolved", len(res.Unresolved)))
	return res, nil
}

// stripReference drops a MeSH namespace prefix from "NS:value". Other
// strings, including names that merely contain a colon, come back unchanged.
func stripReference(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ":") {
		return s
	}
	ns, v, err := ParseReference(s)
	if err != nil || !IsMeSHNamespace(ns) {
		return s
	}
	return v
}

func (n *Normalizer) resolve(node Node) (lookup.Entry, error) {
	if id := stripReference(node.Identifier); id != "" {
		return n.Resolver.ByUI(id)
	}
	name := stripReference(node.Name)
	if mesh.IsIdentifier(strings.ToUpper(name)) {
		e, err := n.Resolver.ByUI(name)
		if !errors.Is(err, lookup.ErrNotFound) {
			return e, err
		}
	}
	return n.Resolver.ByName(name)
}
