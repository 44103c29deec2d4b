package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Settings: the extension's key-value store (values are JSON-encoded)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Checks: one row per finished verification attempt
CREATE TABLE IF NOT EXISTS checks (
    check_id INTEGER PRIMARY KEY AUTOINCREMENT,
    tab_id INTEGER NOT NULL,
    kind TEXT NOT NULL,              -- text, image, video
    passive BOOLEAN DEFAULT 0,
    origin_url TEXT,
    domain TEXT,                     -- registrable domain of origin_url
    outcome TEXT NOT NULL,           -- succeeded, failed, rejected
    classification TEXT,             -- failure taxonomy entry, empty on success
    accuracy TEXT,                   -- text verdict percentage string
    record_id TEXT,
    share_link TEXT,
    duration_ms INTEGER DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_checks_created ON checks(created_at);
CREATE INDEX IF NOT EXISTS idx_checks_domain ON checks(domain);
CREATE INDEX IF NOT EXISTS idx_checks_outcome ON checks(outcome);
`
