package mesh

import "strings"

// Semantic encodings consumed by BEL namespaces.
const (
	EncodingPathology = "O"
	EncodingProcess   = "B"
	EncodingChemical  = "A"
	// EncodingUnresolved is returned when no category matches. Namespace
	// writers substitute their own default function set for it.
	EncodingUnresolved = ""
)

var (
	pathologyPrefixes = []string{"C", "F"}
	processPrefix     = "G"
	processExclusions = []string{"G01", "G15", "G17"}
	chemicalPrefix    = "D"
)

func hasAnyPrefix(treeNumbers, prefixes []string) bool {
	for _, tn := range treeNumbers {
		for _, p := range prefixes {
			if strings.HasPrefix(tn, p) {
				return true
			}
		}
	}
	return false
}

// IsPathology reports whether any tree number sits under Diseases (C) or
// Psychiatry and Psychology (F).
func IsPathology(treeNumbers []string) bool {
	return hasAnyPrefix(treeNumbers, pathologyPrefixes)
}

// IsProcess reports whether the record sits under Phenomena and Processes (G)
// while none of its tree numbers fall under the excluded G branches.
func IsProcess(treeNumbers []string) bool {
	return hasAnyPrefix(treeNumbers, []string{processPrefix}) &&
		!hasAnyPrefix(treeNumbers, processExclusions)
}

// IsChemical reports whether any tree number sits under Chemicals and Drugs (D).
func IsChemical(treeNumbers []string) bool {
	return hasAnyPrefix(treeNumbers, []string{chemicalPrefix})
}

// Encoding returns the single-letter semantic encoding for a tree-number set.
// Pathology wins over process, process over chemical.
func Encoding(treeNumbers []string) string {
	switch {
	case IsPathology(treeNumbers):
		return EncodingPathology
	case IsProcess(treeNumbers):
		return EncodingProcess
	case IsChemical(treeNumbers):
		return EncodingChemical
	}
	return EncodingUnresolved
}

// Encoding is a convenience wrapper over the package-level Encoding.
func (r Record) Encoding() string { return Encoding(r.TreeNumbers) }

// HasTreePrefix reports whether any of the record's tree numbers starts with prefix.
func (r Record) HasTreePrefix(prefix string) bool {
	return hasAnyPrefix(r.TreeNumbers, []string{prefix})
}
