package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS claim_totals (
	platform TEXT NOT NULL,
	org TEXT NOT NULL,
	user_id TEXT NOT NULL,
	claimed NUMERIC(78,0) NOT NULL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (platform, org, user_id),
	CONSTRAINT claimed_nonneg CHECK (claimed >= 0)
);

CREATE TABLE IF NOT EXISTS known_users (
	platform TEXT NOT NULL,
	org TEXT NOT NULL,
	user_id TEXT NOT NULL,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (platform, org, user_id)
);
`
