// Package export defines the outbound statement port used to publish
// household balance statements to external spreadsheets.
package export

import (
	"context"

	"wisp/internal/core"
)

// StatementRow is one member's line in a household statement.
type StatementRow struct {
	Period     string
	MemberName string
	TotalPaid  core.Money
	TotalOwed  core.Money
	Balance    core.Money
}

// StatementWriter appends statement rows to an external sheet and
// returns a reference to the written range.
type StatementWriter interface {
	AppendStatement(ctx context.Context, rows []StatementRow) (string, error)
}
