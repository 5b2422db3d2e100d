package invitation

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DefaultNotifyChannel is the LISTEN/NOTIFY channel fired for every new invitation.
const DefaultNotifyChannel = "family_invitation_created"

// SchemaSQL returns the DDL for the tables acceptance touches plus the insert
// trigger that publishes new invitation ids on channel. The payload is the id
// alone so that no column size can push it past the NOTIFY limit and fail the
// INSERT. Production schema is managed by migrations; tests and local tooling
// apply this directly.
func SchemaSQL(schema, channel string) string {
	s := pgx.Identifier{schema}.Sanitize()
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s.families (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  statistics JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.family_members (
  family_id TEXT PRIMARY KEY,
  members JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS %[1]s.users (
  id TEXT PRIMARY KEY,
  family_ids TEXT[] NOT NULL DEFAULT '{}',
  current_family_id TEXT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.family_invitations (
  id TEXT PRIMARY KEY,
  invitee_email TEXT NOT NULL,
  inviter_name TEXT NOT NULL,
  family_id TEXT NOT NULL,
  family_name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL DEFAULT now() + interval '7 days',
  responded_at TIMESTAMPTZ NULL,
  email_queued_at TIMESTAMPTZ NULL,
  CONSTRAINT chk_family_invitations_status CHECK (status IN ('pending', 'accepted'))
);

ALTER TABLE %[1]s.family_invitations ADD COLUMN IF NOT EXISTS email_queued_at TIMESTAMPTZ NULL;

CREATE INDEX IF NOT EXISTS family_invitations_email_unqueued_idx
  ON %[1]s.family_invitations (id) WHERE email_queued_at IS NULL;

CREATE OR REPLACE FUNCTION %[1]s.notify_family_invitation_created() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify(%[2]s, NEW.id);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS family_invitation_created ON %[1]s.family_invitations;
CREATE TRIGGER family_invitation_created
  AFTER INSERT ON %[1]s.family_invitations
  FOR EACH ROW EXECUTE FUNCTION %[1]s.notify_family_invitation_created();
`, s, quoteLiteral(channel))
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
