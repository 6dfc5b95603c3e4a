package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/japaniel/meshdb/pkg/mesh"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func yn(attrs map[string]string, key string) bool {
	return strings.EqualFold(attrs[key], "Y")
}

// insertOrGet runs an INSERT OR IGNORE and then selects the row id. created
// reports whether the insert added a row.
func insertOrGet(db DBExecutor, insert string, insertArgs []interface{}, sel string, selArgs ...interface{}) (int64, bool, error) {
	res, err := db.Exec(insert, insertArgs...)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	var id int64
	if err := db.QueryRow(sel, selArgs...).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, n > 0, nil
}

// CreateOrGetDescriptor returns the id of the descriptor with rec.UI, inserting
// it when missing. Existing rows are left untouched.
func CreateOrGetDescriptor(db DBExecutor, rec mesh.Record) (int64, bool, error) {
	ui := strings.TrimSpace(rec.UI)
	if ui == "" {
		return 0, false, fmt.Errorf("descriptor ui must be non-empty")
	}
	kind := string(rec.Kind)
	if kind == "" {
		kind = string(mesh.KindDescriptor)
	}
	id, created, err := insertOrGet(db,
		`INSERT OR IGNORE INTO mesh_descriptor (descriptor_ui, name, kind, scr_class) VALUES (?, ?, ?, ?)`,
		[]interface{}{ui, rec.Name, kind, nullableString(rec.SCRClass)},
		`SELECT id FROM mesh_descriptor WHERE descriptor_ui = ?`, ui)
	if err != nil {
		return 0, false, fmt.Errorf("upsert descriptor %s: %w", ui, err)
	}
	return id, created, nil
}

// CreateOrGetConcept returns the id of the concept, inserting it and its
// semantic types when missing.
func CreateOrGetConcept(db DBExecutor, descriptorID int64, c mesh.Concept) (int64, bool, error) {
	if descriptorID <= 0 {
		return 0, false, fmt.Errorf("descriptorID must be positive")
	}
	ui := strings.TrimSpace(c.UI)
	if ui == "" {
		return 0, false, fmt.Errorf("concept ui must be non-empty")
	}
	id, created, err := insertOrGet(db,
		`INSERT OR IGNORE INTO mesh_concept (concept_ui, name, preferred, descriptor_id) VALUES (?, ?, ?, ?)`,
		[]interface{}{ui, c.Name, yn(c.Attributes, "PreferredConceptYN"), descriptorID},
		`SELECT id FROM mesh_concept WHERE concept_ui = ?`, ui)
	if err != nil {
		return 0, false, fmt.Errorf("upsert concept %s: %w", ui, err)
	}
	for _, st := range c.SemanticTypes {
		if _, err := db.Exec(`INSERT OR IGNORE INTO mesh_concept_semantic_type (concept_id, semantic_type_ui) VALUES (?, ?)`, id, st); err != nil {
			return 0, false, fmt.Errorf("add semantic type %s to %s: %w", st, ui, err)
		}
	}
	return id, created, nil
}

// CreateTerm inserts the term under conceptID unless the same (ui, name)
// pair is already there.
func CreateTerm(db DBExecutor, conceptID int64, t mesh.Term) (bool, error) {
	if conceptID <= 0 {
		return false, fmt.Errorf("conceptID must be positive")
	}
	res, err := db.Exec(`INSERT OR IGNORE INTO mesh_term
		(term_ui, name, lexical_tag, concept_preferred, record_preferred, permuted, concept_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UI, t.Name, nullableString(t.Attributes["LexicalTag"]),
		yn(t.Attributes, "ConceptPreferredTermYN"), yn(t.Attributes, "RecordPreferredTermYN"),
		yn(t.Attributes, "IsPermutedTermYN"), conceptID)
	if err != nil {
		return false, fmt.Errorf("insert term %s: %w", t.UI, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddTreeNumber attaches a tree number to a descriptor. Tree numbers are
// unique across the store; a number already present is skipped.
func AddTreeNumber(db DBExecutor, descriptorID int64, treeNumber string) (bool, error) {
	res, err := db.Exec(`INSERT OR IGNORE INTO mesh_tree (name, descriptor_id) VALUES (?, ?)`, treeNumber, descriptorID)
	if err != nil {
		return false, fmt.Errorf("insert tree %s: %w", treeNumber, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AddQualifier records an allowable qualifier of a descriptor.
func AddQualifier(db DBExecutor, descriptorID int64, q mesh.Qualifier) (bool, error) {
	res, err := db.Exec(`INSERT OR IGNORE INTO mesh_qualifier (descriptor_id, qualifier_ui, name) VALUES (?, ?, ?)`,
		descriptorID, q.UI, q.Name)
	if err != nil {
		return false, fmt.Errorf("insert qualifier %s: %w", q.UI, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LinkParent stores a child -> parent edge between two stored descriptors.
func LinkParent(db DBExecutor, childUI, parentUI string) (bool, error) {
	res, err := db.Exec(`INSERT OR IGNORE INTO mesh_descriptor_parent (descriptor_id, parent_id)
		SELECT c.id, p.id FROM mesh_descriptor c, mesh_descriptor p
		WHERE c.descriptor_ui = ? AND p.descriptor_ui = ?`, childUI, parentUI)
	if err != nil {
		return false, fmt.Errorf("link %s -> %s: %w", childUI, parentUI, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// nullableString returns nil for "" else the value.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const descriptorColumns = `d.id, d.descriptor_ui, d.name, d.kind, d.scr_class`

func scanDescriptor(row interface{ Scan(...interface{}) error }) (Descriptor, error) {
	var d Descriptor
	var scr sql.NullString
	if err := row.Scan(&d.ID, &d.DescriptorUI, &d.Name, &d.Kind, &scr); err != nil {
		return Descriptor{}, err
	}
	if scr.Valid {
		d.SCRClass = scr.String
	}
	return d, nil
}

func getDescriptor(db DBExecutor, where string, args ...interface{}) (*Descriptor, error) {
	row := db.QueryRow(`SELECT `+descriptorColumns+` FROM mesh_descriptor d WHERE `+where+` ORDER BY d.id LIMIT 1`, args...)
	d, err := scanDescriptor(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	trees, err := GetTreeNumbers(db, d.ID)
	if err != nil {
		return nil, err
	}
	d.TreeNumbers = trees
	return &d, nil
}

// GetDescriptorByUI returns the descriptor with the given identifier.
func GetDescriptorByUI(db DBExecutor, ui string) (*Descriptor, error) {
	return getDescriptor(db, `d.descriptor_ui = ?`, strings.TrimSpace(ui))
}

// GetDescriptorByName returns a descriptor by exact name, falling back to a
// case-insensitive match. With duplicate names the lowest id wins.
func GetDescriptorByName(db DBExecutor, name string) (*Descriptor, error) {
	name = strings.TrimSpace(name)
	d, err := getDescriptor(db, `d.name = ?`, name)
	if err != ErrNotFound {
		return d, err
	}
	return getDescriptor(db, `d.name = ? COLLATE NOCASE`, name)
}

// GetDescriptorByTermName returns the descriptor owning a term with the given
// name (exact, then case-insensitive).
func GetDescriptorByTermName(db DBExecutor, name string) (*Descriptor, error) {
	name = strings.TrimSpace(name)
	const q = `d.id = (SELECT c.descriptor_id FROM mesh_term t JOIN mesh_concept c ON c.id = t.concept_id WHERE t.name = ?%s ORDER BY t.id LIMIT 1)`
	d, err := getDescriptor(db, fmt.Sprintf(q, ""), name)
	if err != ErrNotFound {
		return d, err
	}
	return getDescriptor(db, fmt.Sprintf(q, " COLLATE NOCASE"), name)
}

const termViewQuery = `SELECT d.descriptor_ui, d.name, c.concept_ui, c.name, t.term_ui, t.name
	FROM mesh_term t
	JOIN mesh_concept c ON c.id = t.concept_id
	JOIN mesh_descriptor d ON d.id = c.descriptor_id`

// GetTermByName returns the first term whose name matches exactly.
func GetTermByName(db DBExecutor, name string) (*TermView, error) {
	var v TermView
	err := db.QueryRow(termViewQuery+` WHERE t.name = ? ORDER BY t.id LIMIT 1`, strings.TrimSpace(name)).
		Scan(&v.DescriptorUI, &v.DescriptorName, &v.ConceptUI, &v.ConceptName, &v.TermUI, &v.TermName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SearchTerms returns up to limit terms whose name contains q, case-insensitively.
func SearchTerms(db DBExecutor, q string, limit int) ([]TermView, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(q)) + "%"
	rows, err := db.Query(termViewQuery+` WHERE t.name LIKE ? ESCAPE '\' ORDER BY length(t.name), t.id LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TermView
	for rows.Next() {
		var v TermView
		if err := rows.Scan(&v.DescriptorUI, &v.DescriptorName, &v.ConceptUI, &v.ConceptName, &v.TermUI, &v.TermName); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetTreeNumbers returns the tree numbers of a descriptor, sorted.
func GetTreeNumbers(db DBExecutor, descriptorID int64) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM mesh_tree WHERE descriptor_id = ? ORDER BY name`, descriptorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var tn string
		if err := rows.Scan(&tn); err != nil {
			return nil, err
		}
		out = append(out, tn)
	}
	return out, rows.Err()
}

func queryDescriptors(db DBExecutor, query string, args ...interface{}) ([]Descriptor, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var out []Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before issuing the tree queries; the pool may hold a single connection.
	rows.Close()

	for i := range out {
		trees, err := GetTreeNumbers(db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].TreeNumbers = trees
	}
	return out, nil
}

// GetParents returns the parent descriptors of ui ordered by identifier.
func GetParents(db DBExecutor, ui string) ([]Descriptor, error) {
	return queryDescriptors(db, `SELECT `+descriptorColumns+` FROM mesh_descriptor d
		JOIN mesh_descriptor_parent dp ON dp.parent_id = d.id
		JOIN mesh_descriptor c ON c.id = dp.descriptor_id
		WHERE c.descriptor_ui = ? ORDER BY d.descriptor_ui`, ui)
}

// GetChildren returns the child descriptors of ui ordered by identifier.
func GetChildren(db DBExecutor, ui string) ([]Descriptor, error) {
	return queryDescriptors(db, `SELECT `+descriptorColumns+` FROM mesh_descriptor d
		JOIN mesh_descriptor_parent dp ON dp.descriptor_id = d.id
		JOIN mesh_descriptor p ON p.id = dp.parent_id
		WHERE p.descriptor_ui = ? ORDER BY d.descriptor_ui`, ui)
}

// ListDescriptorsByTreePrefix returns every descriptor with at least one tree
// number starting with prefix, ordered by name.
func ListDescriptorsByTreePrefix(db DBExecutor, prefix string) ([]Descriptor, error) {
	pattern := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix) + "%"
	return queryDescriptors(db, `SELECT `+descriptorColumns+` FROM mesh_descriptor d
		WHERE EXISTS (SELECT 1 FROM mesh_tree t WHERE t.descriptor_id = d.id AND t.name LIKE ? ESCAPE '\')
		ORDER BY d.name, d.id`, pattern)
}

func count(db DBExecutor, table string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountDescriptors returns the number of stored descriptors and supplemental records.
func CountDescriptors(db DBExecutor) (int, error) { return count(db, "mesh_descriptor") }

// CountConcepts returns the number of stored concepts.
func CountConcepts(db DBExecutor) (int, error) { return count(db, "mesh_concept") }

// CountTerms returns the number of stored terms.
func CountTerms(db DBExecutor) (int, error) { return count(db, "mesh_term") }

// CountTrees returns the number of stored tree numbers.
func CountTrees(db DBExecutor) (int, error) { return count(db, "mesh_tree") }

// IsPopulated reports whether any descriptor has been loaded.
func IsPopulated(db DBExecutor) (bool, error) {
	n, err := CountDescriptors(db)
	return n > 0, err
}
