package db

// Table names carry the "mesh_" prefix so the store can share a database
// with other vocabularies.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS mesh_descriptor (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	descriptor_ui TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	kind          TEXT NOT NULL DEFAULT 'descriptor',
	scr_class     TEXT
);
CREATE INDEX IF NOT EXISTS idx_mesh_descriptor_name ON mesh_descriptor(name);

CREATE TABLE IF NOT EXISTS mesh_concept (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	concept_ui    TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	preferred     INTEGER NOT NULL DEFAULT 0,
	descriptor_id INTEGER NOT NULL REFERENCES mesh_descriptor(id)
);
CREATE INDEX IF NOT EXISTS idx_mesh_concept_name ON mesh_concept(name);
CREATE INDEX IF NOT EXISTS idx_mesh_concept_descriptor ON mesh_concept(descriptor_id);

CREATE TABLE IF NOT EXISTS mesh_concept_semantic_type (
	concept_id       INTEGER NOT NULL REFERENCES mesh_concept(id),
	semantic_type_ui TEXT NOT NULL,
	UNIQUE(concept_id, semantic_type_ui)
);

CREATE TABLE IF NOT EXISTS mesh_term (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	term_ui           TEXT NOT NULL,
	name              TEXT NOT NULL,
	lexical_tag       TEXT,
	concept_preferred INTEGER NOT NULL DEFAULT 0,
	record_preferred  INTEGER NOT NULL DEFAULT 0,
	permuted          INTEGER NOT NULL DEFAULT 0,
	concept_id        INTEGER NOT NULL REFERENCES mesh_concept(id),
	UNIQUE(concept_id, term_ui, name)
);
CREATE INDEX IF NOT EXISTS idx_mesh_term_name ON mesh_term(name);
CREATE INDEX IF NOT EXISTS idx_mesh_term_ui ON mesh_term(term_ui);

CREATE TABLE IF NOT EXISTS mesh_tree (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL UNIQUE,
	descriptor_id INTEGER NOT NULL REFERENCES mesh_descriptor(id)
);
CREATE INDEX IF NOT EXISTS idx_mesh_tree_descriptor ON mesh_tree(descriptor_id);

CREATE TABLE IF NOT EXISTS mesh_qualifier (
	descriptor_id INTEGER NOT NULL REFERENCES mesh_descriptor(id),
	qualifier_ui  TEXT NOT NULL,
	name          TEXT NOT NULL,
	UNIQUE(descriptor_id, qualifier_ui)
);

CREATE TABLE IF NOT EXISTS mesh_descriptor_parent (
	descriptor_id INTEGER NOT NULL REFERENCES mesh_descriptor(id),
	parent_id     INTEGER NOT NULL REFERENCES mesh_descriptor(id),
	UNIQUE(descriptor_id, parent_id)
);
CREATE INDEX IF NOT EXISTS idx_mesh_descriptor_parent_parent ON mesh_descriptor_parent(parent_id)
`
