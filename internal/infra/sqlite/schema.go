package sqlite

// Schema creates every table if missing. Money is stored as canonical
// decimal text so no precision is lost.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    account_id   TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    account_type TEXT NOT NULL,
    institution  TEXT,                          -- lower-case bank tag, NULL for cash
    last_four    TEXT,
    currency     TEXT NOT NULL DEFAULT 'COP',
    balance      TEXT NOT NULL DEFAULT '0',
    is_active    INTEGER NOT NULL DEFAULT 1,
    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_accounts_institution
    ON accounts(institution, last_four);

CREATE TABLE IF NOT EXISTS categories (
    category_id   TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    category_type TEXT NOT NULL,
    is_active     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS automation_rules (
    rule_id                TEXT PRIMARY KEY,
    name                   TEXT NOT NULL,
    is_active              INTEGER NOT NULL DEFAULT 1,
    priority               INTEGER NOT NULL DEFAULT 0,
    conditions             TEXT,            -- JSON object
    actions                TEXT,            -- JSON object
    prompt_text            TEXT,
    match_phone            TEXT,
    transfer_to_account_id TEXT,
    created_at             TIMESTAMP NOT NULL,
    updated_at             TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_match_phone
    ON automation_rules(match_phone);

CREATE TABLE IF NOT EXISTS transactions (
    transaction_id         TEXT PRIMARY KEY,
    txn_date               TEXT NOT NULL,   -- YYYY-MM-DD
    txn_time               TEXT NOT NULL,   -- HH:MM:SS
    amount                 TEXT NOT NULL,
    description            TEXT NOT NULL,
    notes                  TEXT,
    category_id            TEXT,
    account_id             TEXT NOT NULL REFERENCES accounts(account_id),
    txn_type               TEXT NOT NULL,
    payment_method         TEXT,
    source                 TEXT,
    confidence             INTEGER,
    transfer_to_account_id TEXT,
    transfer_id            TEXT,
    raw_text               TEXT,
    parsed_data            TEXT,            -- JSON object
    applied_rules          TEXT,            -- JSON array of rule ids
    created_at             TIMESTAMP NOT NULL,
    updated_at             TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_date
    ON transactions(account_id, txn_date);

CREATE INDEX IF NOT EXISTS idx_transactions_transfer
    ON transactions(transfer_id);
`
