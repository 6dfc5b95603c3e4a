// Package meshxml extracts MeSH records from the NLM descriptor and
// supplemental-record XML dumps.
package meshxml

import (
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/logging"
	"github.com/japaniel/meshdb/pkg/mesh"
)

// ParseError reports that an archive is not valid gzip-compressed XML.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNoRoot = errors.New("document has no root element")

type xmlRecord struct {
	XMLName          xml.Name
	SCRClass         string         `xml:"SCRClass,attr"`
	DescriptorUI     string         `xml:"DescriptorUI"`
	SupplementalUI   string         `xml:"SupplementalRecordUI"`
	DescriptorName   string         `xml:"DescriptorName>String"`
	SupplementalName string         `xml:"SupplementalRecordName>String"`
	TreeNumbers      []string       `xml:"TreeNumberList>TreeNumber"`
	Qualifiers       []xmlQualifier `xml:"AllowableQualifiersList>AllowableQualifier>QualifierReferredTo"`
	Concepts         []xmlConcept   `xml:"ConceptList>Concept"`
}

type xmlQualifier struct {
	UI   string `xml:"QualifierUI"`
	Name string `xml:"QualifierName>String"`
}

type xmlConcept struct {
	Attrs         []xml.Attr `xml:",any,attr"`
	UI            string     `xml:"ConceptUI"`
	Name          string     `xml:"ConceptName>String"`
	SemanticTypes []string   `xml:"SemanticTypeList>SemanticType>SemanticTypeUI"`
	Terms         []xmlTerm  `xml:"TermList>Term"`
}

type xmlTerm struct {
	Attrs []xml.Attr `xml:",any,attr"`
	UI    string     `xml:"TermUI"`
	Name  string     `xml:"String"`
}

// Parser reads gzip-compressed MeSH XML dumps.
type Parser struct {
	Logger *zap.Logger
}

// NewParser creates a parser. A nil logger disables logging.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{Logger: logging.OrNop(logger)}
}

// ParseFile parses the gzip archive at path.
func (p *Parser) ParseFile(path string) ([]mesh.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(path, f)
}

// Parse decompresses r and extracts every top-level record in document order.
// source only labels errors and log lines.
func (p *Parser) Parse(source string, r io.Reader) ([]mesh.Record, error) {
	start := time.Now()
	log := logging.OrNop(p.Logger)
	log.Info("parsing mesh xml", zap.String("source", source))

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	defer gz.Close()

	var records []mesh.Record
	err = Walk(gz, func(rec mesh.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Source = source
		}
		return nil, err
	}

	log.Info("parsed mesh xml",
		zap.String("source", source),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return records, nil
}

// Walk decodes uncompressed XML from r and calls fn for each child of the
// root element. Errors returned by fn stop the walk and are returned as is.
func Walk(r io.Reader, fn func(mesh.Record) error) error {
	dec := xml.NewDecoder(r)
	depth := 0
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ParseError{Err: err}
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				sawRoot = true
				depth++
				continue
			}
			// depth 1: a record element. DecodeElement consumes its end tag.
			var raw xmlRecord
			if err := dec.DecodeElement(&raw, &el); err != nil {
				return &ParseError{Err: err}
			}
			if err := fn(convert(raw)); err != nil {
				return err
			}
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return &ParseError{Err: errNoRoot}
	}
	return nil
}

func convert(raw xmlRecord) mesh.Record {
	rec := mesh.Record{
		Kind:        mesh.KindDescriptor,
		UI:          strings.TrimSpace(raw.DescriptorUI),
		Name:        strings.TrimSpace(raw.DescriptorName),
		TreeNumbers: distinct(raw.TreeNumbers),
	}
	if raw.SupplementalUI != "" || raw.XMLName.Local == "SupplementalRecord" {
		rec.Kind = mesh.KindSupplemental
		rec.UI = strings.TrimSpace(raw.SupplementalUI)
		rec.Name = strings.TrimSpace(raw.SupplementalName)
		rec.SCRClass = raw.SCRClass
	}

	for _, q := range raw.Qualifiers {
		rec.Qualifiers = append(rec.Qualifiers, mesh.Qualifier{
			UI:   strings.TrimSpace(q.UI),
			Name: strings.TrimSpace(q.Name),
		})
	}

	for _, c := range raw.Concepts {
		concept := mesh.Concept{
			UI:            strings.TrimSpace(c.UI),
			Name:          strings.TrimSpace(c.Name),
			SemanticTypes: distinct(c.SemanticTypes),
			Attributes:    attrMap(c.Attrs),
		}
		for _, t := range c.Terms {
			concept.Terms = append(concept.Terms, mesh.Term{
				UI:         strings.TrimSpace(t.UI),
				Name:       strings.TrimSpace(t.Name),
				Attributes: attrMap(t.Attrs),
			})
		}
		rec.Concepts = append(rec.Concepts, concept)
	}
	return rec
}

// distinct trims values and drops empties and duplicates, keeping first-seen order.
func distinct(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}
