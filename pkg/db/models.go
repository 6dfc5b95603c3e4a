package db

// Descriptor is a stored MeSH descriptor or supplemental record.
type Descriptor struct {
	ID           int64
	DescriptorUI string
	Name         string
	Kind         string
	SCRClass     string
	TreeNumbers  []string
}

// Concept is a stored MeSH concept.
type Concept struct {
	ID           int64
	ConceptUI    string
	Name         string
	Preferred    bool
	DescriptorID int64
}

// Term is a stored MeSH term.
type Term struct {
	ID               int64
	TermUI           string
	Name             string
	LexicalTag       string
	ConceptPreferred bool
	RecordPreferred  bool
	Permuted         bool
	ConceptID        int64
}

// TermView is a term together with its owning concept and descriptor, the
// shape returned by term search.
type TermView struct {
	DescriptorUI   string `json:"descriptor_ui"`
	DescriptorName string `json:"descriptor_name"`
	ConceptUI      string `json:"concept_ui"`
	ConceptName    string `json:"concept_name"`
	TermUI         string `json:"term_ui"`
	TermName       string `json:"term_name"`
}
