package postgres

import (
	"fmt"
	"strings"
)

// Positional arguments: 1 table, 2 index, 3 function, 4 channel, 5 trigger.
const schemaTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	aggregate_type text NOT NULL,
	aggregate_id text NOT NULL,
	event_type text NOT NULL,
	payload jsonb NOT NULL,
	occurred_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	processed_at timestamptz NULL,
	retry_count int NOT NULL DEFAULT 0,
	last_error text NULL,
	failed_at timestamptz NULL
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (created_at)
	WHERE processed_at IS NULL AND failed_at IS NULL;

CREATE OR REPLACE FUNCTION %[3]s() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('%[4]s', NEW.id::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS %[5]s ON %[1]s;

CREATE TRIGGER %[5]s AFTER INSERT ON %[1]s
	FOR EACH ROW EXECUTE FUNCTION %[3]s();`

const (
	pendingIndexSuffix   = "_pending_idx"
	notifyFunctionSuffix = "_notify"
	notifyTriggerSuffix  = "_notify_trigger"
)

// Schema returns the DDL for an outbox table wired to a notify channel: the
// table, the partial index covering pending fetches, and the insert trigger
// that calls pg_notify with the new row id.
//
// The statements are separated by semicolons for psql-style application.
// Tools that execute one statement per round trip (pgx's extended protocol
// included) should use the embedded migrations via NewMigrator instead.
// Index, function and trigger names derive from the table's final segment;
// a schema-qualified table keeps its derived function in the same schema.
func Schema(table, channel string) (string, error) {
	if err := validateIdentifierPath(table); err != nil {
		return "", fmt.Errorf("table name: %w", err)
	}

	if err := validateIdentifier(channel); err != nil {
		return "", fmt.Errorf("notify channel: %w", err)
	}

	parts := strings.Split(table, ".")
	base := strings.TrimSpace(parts[len(parts)-1])
	prefix := ""

	if len(parts) > 1 {
		prefix = strings.TrimSpace(strings.Join(parts[:len(parts)-1], ".")) + "."
	}

	// Derived names must fit the identifier length limit too.
	for _, derived := range []string{
		base + pendingIndexSuffix,
		base + notifyFunctionSuffix,
		base + notifyTriggerSuffix,
	} {
		if err := validateIdentifier(derived); err != nil {
			return "", fmt.Errorf("derived identifier %s: %w", derived, err)
		}
	}

	return fmt.Sprintf(schemaTemplate,
		quoteIdentifierPath(table),
		quoteIdentifier(base+pendingIndexSuffix),
		quoteIdentifierPath(prefix+base+notifyFunctionSuffix),
		channel,
		quoteIdentifier(base+notifyTriggerSuffix),
	), nil
}
