package sqlitegraph

// schema is applied on every open. Statements are idempotent so opening an
// existing database is a no-op beyond the PRAGMA calls in pool.go.
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	content          TEXT NOT NULL,
	content_hash     TEXT NOT NULL,
	memory_type      TEXT NOT NULL,
	importance       REAL NOT NULL,
	confidence       REAL NOT NULL,
	created_at       DATETIME NOT NULL,
	valid_from       DATETIME NOT NULL,
	valid_to         DATETIME NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	session_id       TEXT NOT NULL DEFAULT '',
	agent_id         TEXT NOT NULL DEFAULT '',
	metadata         TEXT NOT NULL DEFAULT '{}',
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_valid_to ON memories(valid_to);
CREATE INDEX IF NOT EXISTS idx_memories_valid_from ON memories(valid_from DESC);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);

CREATE TABLE IF NOT EXISTS entities (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	kind    TEXT NOT NULL,
	surface TEXT NOT NULL DEFAULT '',
	UNIQUE(name, kind)
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

-- entity_mentions intentionally carries no foreign keys. Expire and Prune
-- reconcile the edge table themselves: each deletes the mention edges of the
-- memories it removed, and then the entities left with no mentions, inside
-- the same transaction as the memory delete.
CREATE TABLE IF NOT EXISTS entity_mentions (
	memory_id TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	PRIMARY KEY (memory_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_mentions_entity ON entity_mentions(entity_id);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content,
	content='memories',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
