package mesh

import (
	"sort"
	"strings"
)

// ParentTreeNumber returns the tree number one level up, or false for a root
// number such as "C04".
func ParentTreeNumber(treeNumber string) (string, bool) {
	i := strings.LastIndexByte(treeNumber, '.')
	if i <= 0 {
		return "", false
	}
	return treeNumber[:i], true
}

// TreeIndex maps every observed tree number to the identifier of the record
// that carries it.
func TreeIndex(records []Record) map[string]string {
	idx := make(map[string]string)
	for _, r := range records {
		for _, tn := range r.TreeNumbers {
			idx[tn] = r.UI
		}
	}
	return idx
}

// BuildParents fills Parents on every record from the tree numbers of the
// whole batch. Every tree number contributes an edge to the owner of its
// prefix. Prefixes nobody owns are dropped, and a record is never its own
// parent. The resulting sets are sorted.
func BuildParents(records []Record) {
	idx := TreeIndex(records)

	for i := range records {
		seen := make(map[string]struct{})
		for _, tn := range records[i].TreeNumbers {
			parentTN, ok := ParentTreeNumber(tn)
			if !ok {
				continue
			}
			parentUI, ok := idx[parentTN]
			if !ok || parentUI == records[i].UI {
				continue
			}
			seen[parentUI] = struct{}{}
		}

		parents := make([]string, 0, len(seen))
		for ui := range seen {
			parents = append(parents, ui)
		}
		sort.Strings(parents)
		records[i].Parents = parents
	}
}

// Children inverts the parent relation: parent identifier -> sorted child identifiers.
func Children(records []Record) map[string][]string {
	out := make(map[string][]string)
	for _, r := range records {
		for _, p := range r.Parents {
			out[p] = append(out[p], r.UI)
		}
	}
	for p := range out {
		sort.Strings(out[p])
	}
	return out
}

// Roots returns the identifiers of records without parents, in input order.
func Roots(records []Record) []string {
	var roots []string
	for _, r := range records {
		if len(r.Parents) == 0 {
			roots = append(roots, r.UI)
		}
	}
	return roots
}
