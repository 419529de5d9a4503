package store

// Schema creates the tables used by Repository
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	plan_type TEXT NOT NULL DEFAULT 'free'
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	billing_period TEXT NOT NULL,
	renewal_date TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'other',
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id, is_active);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 0,
	reminder_days TEXT NOT NULL DEFAULT '[]',
	last_sent INTEGER,
	PRIMARY KEY (user_id, kind)
);
`
