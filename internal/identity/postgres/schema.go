package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS identity_links (
	platform TEXT NOT NULL,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL,
	wallet BYTEA NOT NULL,
	nonce BIGINT NOT NULL,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (platform, user_id),
	CONSTRAINT wallet_len CHECK (octet_length(wallet) = 20),
	CONSTRAINT nonce_pos CHECK (nonce >= 1)
);

CREATE UNIQUE INDEX IF NOT EXISTS identity_links_wallet_idx ON identity_links (wallet);
`
