package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fee_overrides (
	level SMALLINT NOT NULL,
	platform TEXT NOT NULL,
	owner TEXT NOT NULL,
	repo TEXT NOT NULL DEFAULT '',
	issue TEXT NOT NULL DEFAULT '',
	fee SMALLINT NOT NULL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (level, platform, owner, repo, issue),
	CONSTRAINT level_range CHECK (level >= 1 AND level <= 3),
	CONSTRAINT fee_range CHECK ((fee >= 0 AND fee <= 100) OR fee = 255)
);
`
