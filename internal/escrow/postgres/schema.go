package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bounties (
	bounty_id BYTEA PRIMARY KEY,
	platform TEXT NOT NULL,
	repo TEXT NOT NULL,
	issue TEXT NOT NULL,
	status SMALLINT NOT NULL,
	last_posted_at TIMESTAMPTZ NOT NULL,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT bounty_id_len CHECK (octet_length(bounty_id) = 32),
	CONSTRAINT status_range CHECK (status >= 1 AND status <= 2)
);

CREATE TABLE IF NOT EXISTS bounty_balances (
	bounty_id BYTEA NOT NULL REFERENCES bounties (bounty_id),
	token BYTEA NOT NULL,
	total NUMERIC(78,0) NOT NULL,
	share NUMERIC(78,0) NOT NULL DEFAULT 0,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (bounty_id, token),
	CONSTRAINT balance_token_len CHECK (octet_length(token) = 20),
	CONSTRAINT total_nonneg CHECK (total >= 0),
	CONSTRAINT share_nonneg CHECK (share >= 0)
);

CREATE TABLE IF NOT EXISTS bounty_positions (
	bounty_id BYTEA NOT NULL REFERENCES bounties (bounty_id),
	token BYTEA NOT NULL,
	depositor BYTEA NOT NULL,
	amount NUMERIC(78,0) NOT NULL,
	posted_at TIMESTAMPTZ NOT NULL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (bounty_id, token, depositor),
	CONSTRAINT position_token_len CHECK (octet_length(token) = 20),
	CONSTRAINT position_depositor_len CHECK (octet_length(depositor) = 20),
	CONSTRAINT position_amount_nonneg CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS bounty_contributors (
	bounty_id BYTEA NOT NULL REFERENCES bounties (bounty_id),
	user_id TEXT NOT NULL,
	ordinal INT NOT NULL,
	claimed BOOLEAN NOT NULL DEFAULT false,
	claimed_at TIMESTAMPTZ,

	PRIMARY KEY (bounty_id, user_id)
);

CREATE TABLE IF NOT EXISTS fee_pools (
	token BYTEA PRIMARY KEY,
	amount NUMERIC(78,0) NOT NULL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT pool_token_len CHECK (octet_length(token) = 20),
	CONSTRAINT pool_amount_nonneg CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS deferred_payouts (
	wallet BYTEA NOT NULL,
	token BYTEA NOT NULL,
	amount NUMERIC(78,0) NOT NULL,

	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	PRIMARY KEY (wallet, token),
	CONSTRAINT deferred_wallet_len CHECK (octet_length(wallet) = 20),
	CONSTRAINT deferred_token_len CHECK (octet_length(token) = 20),
	CONSTRAINT deferred_amount_nonneg CHECK (amount >= 0)
);
`
