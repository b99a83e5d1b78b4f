package app

import "serotonyl.ru/discord-autorole/internal/db/postgres"

// SQL-миграции встроены в код для упрощения деплоя.
var migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Rules},
	{Version: 2, SQL: migration002Grants},
	{Version: 3, SQL: migration003Tallies},
	{Version: 4, SQL: migration004Reputation},
}

var migration001Rules = `
CREATE TABLE IF NOT EXISTS autorole_rules (
    guild_id TEXT NOT NULL,
    name VARCHAR(32) NOT NULL,
    role_id TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    duration_ms BIGINT CHECK (duration_ms IS NULL OR duration_ms > 0),
    trigger_type VARCHAR(32) NOT NULL,
    trigger_args JSONB NOT NULL DEFAULT '{}',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (guild_id, name)
);
CREATE INDEX IF NOT EXISTS idx_autorole_rules_type ON autorole_rules(trigger_type) WHERE enabled;
CREATE INDEX IF NOT EXISTS idx_autorole_rules_role ON autorole_rules(guild_id, role_id);
`

var migration002Grants = `
CREATE TABLE IF NOT EXISTS autorole_grants (
    guild_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    rule_name VARCHAR(32) NOT NULL,
    type VARCHAR(16) NOT NULL CHECK (type IN ('LIVE', 'PERMANENT')),
    expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (guild_id, user_id, rule_name)
);
CREATE INDEX IF NOT EXISTS idx_autorole_grants_expiry ON autorole_grants(type, expires_at);
CREATE INDEX IF NOT EXISTS idx_autorole_grants_rule ON autorole_grants(guild_id, rule_name);
`

var migration003Tallies = `
CREATE TABLE IF NOT EXISTS autorole_reaction_tallies (
    guild_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    emoji_key TEXT NOT NULL,
    author_id TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (guild_id, message_id, emoji_key)
);
CREATE TABLE IF NOT EXISTS autorole_presence (
    guild_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    emoji_key TEXT NOT NULL,
    user_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (guild_id, message_id, emoji_key, user_id)
);
`

var migration004Reputation = `
CREATE TABLE IF NOT EXISTS reputation_scores (
    guild_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    positive_received INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (guild_id, user_id)
);
CREATE TABLE IF NOT EXISTS reputation_logs (
    id BIGSERIAL PRIMARY KEY,
    guild_id TEXT NOT NULL,
    from_user_id TEXT NOT NULL,
    to_user_id TEXT NOT NULL,
    points INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reputation_logs_from ON reputation_logs(guild_id, from_user_id, created_at DESC);
`
