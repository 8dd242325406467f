// internal/submit/store.go
//
// SQL archive sink.
//
// Context
// -------
// Writes each envelope as an opaque JSON blob into a generic submissions
// table.  There is no lead schema here; downstream jobs can
// unpack the JSON.
//
//	CREATE TABLE form_submission (
//	    id           BIGINT AUTO_INCREMENT PRIMARY KEY,
//	    form_id      VARCHAR(64)  NOT NULL,
//	    submitted_at DATETIME(3)  NOT NULL,
//	    data         JSON         NOT NULL
//	);
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
)

// DefaultTable receives envelopes when Store.Table is empty.
const DefaultTable = "form_submission"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store inserts envelopes via sqlx.
type Store struct {
	DB     *sqlx.DB
	Table  string
	FormID string
	Now    func() time.Time
}

// Submit implements Sink.
func (s *Store) Submit(ctx context.Context, env Envelope) error {
	if s.DB == nil {
		return fmt.Errorf("submit: store sink has no database")
	}
	table := s.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return fmt.Errorf("submit: invalid table name %q", table)
	}

	j, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("submit: encode envelope: %w", err)
	}

	formID := s.FormID
	if formID == "" {
		formID = env.Metadata.FormName
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	_, err = s.DB.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (form_id, submitted_at, data) VALUES (?, ?, ?)`, table),
		formID, now().UTC(), j,
	)
	if err != nil {
		return fmt.Errorf("submit: store %s: %w", formID, err)
	}
	return nil
}
