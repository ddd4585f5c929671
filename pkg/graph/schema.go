package graph

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	name        TEXT NOT NULL,
	metadata    TEXT
);

CREATE TABLE IF NOT EXISTS triplets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	subject    TEXT NOT NULL,
	predicate  TEXT NOT NULL,
	object     TEXT NOT NULL,
	metadata   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(subject, predicate, object)
);

CREATE INDEX IF NOT EXISTS idx_subject ON triplets(subject);
CREATE INDEX IF NOT EXISTS idx_object ON triplets(object);
CREATE INDEX IF NOT EXISTS idx_predicate ON triplets(predicate);
CREATE INDEX IF NOT EXISTS idx_entity_type ON entities(entity_type);
`

func (s *Store) createSchema() error {
	_, err := s.db.Exec(schemaDDL)
	return err
}
