package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS papers (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL DEFAULT '',
    s2_id          TEXT NOT NULL DEFAULT '',
    arxiv_id       TEXT NOT NULL DEFAULT '',
    doi            TEXT NOT NULL DEFAULT '',
    abstract       TEXT NOT NULL DEFAULT '',
    authors        TEXT NOT NULL DEFAULT '[]',
    year           INTEGER NOT NULL DEFAULT 0,
    published_at   TIMESTAMP,
    citation_count INTEGER NOT NULL DEFAULT 0,
    pdf_url        TEXT NOT NULL DEFAULT '',
    full_text      TEXT,
    created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    name        TEXT NOT NULL,
    norm_key    TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    confidence  REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    paper_id    TEXT NOT NULL REFERENCES papers (id),
    created_at  TIMESTAMP NOT NULL,
    seq         INTEGER NOT NULL,
    UNIQUE (kind, norm_key)
);

CREATE TABLE IF NOT EXISTS edges (
    kind        TEXT NOT NULL,
    from_id     TEXT NOT NULL,
    to_id       TEXT NOT NULL,
    confidence  REAL NOT NULL DEFAULT 0,
    improvement TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, from_id, to_id)
);

CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    seed_id          TEXT NOT NULL,
    paper_limit      INTEGER NOT NULL,
    status           TEXT NOT NULL,
    attempted        INTEGER NOT NULL DEFAULT 0,
    succeeded        INTEGER NOT NULL DEFAULT 0,
    failed           INTEGER NOT NULL DEFAULT 0,
    entities_created INTEGER NOT NULL DEFAULT 0,
    edges_created    INTEGER NOT NULL DEFAULT 0,
    error            TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMP NOT NULL,
    finished_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_tasks (
    run_id           TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
    paper_id         TEXT NOT NULL,
    position         INTEGER NOT NULL,
    state            TEXT NOT NULL,
    error            TEXT NOT NULL DEFAULT '',
    entities_created INTEGER NOT NULL DEFAULT 0,
    edges_created    INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL,
    started_at       TIMESTAMP,
    finished_at      TIMESTAMP,
    PRIMARY KEY (run_id, paper_id)
);
`
