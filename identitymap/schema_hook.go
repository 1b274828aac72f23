package identitymap

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

var _ bun.QueryHook = (*SchemaHook)(nil)

// SchemaHook is a bun query hook publishing SchemaChanged after every
// successful DDL statement run through the database handle.
//
//	db.AddQueryHook(identitymap.NewSchemaHook(bus))
type SchemaHook struct {
	notifier Notifier
}

func NewSchemaHook(notifier Notifier) *SchemaHook {
	return &SchemaHook{notifier: notifier}
}

func (h *SchemaHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SchemaHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if h.notifier == nil || event == nil || event.Err != nil {
		return
	}
	// bun reports raw queries as SELECT and column changes as ADD COLUMN,
	// so the statement text is checked too.
	if isSchemaOperation(event.Operation()) || isSchemaOperation(event.Query) {
		h.notifier.SchemaChanged(ctx)
	}
}

// isSchemaOperation matches the leading verb of an operation name (CREATE
// TABLE) or of a statement.
func isSchemaOperation(op string) bool {
	words := strings.Fields(op)
	if len(words) == 0 {
		return false
	}
	switch strings.ToUpper(words[0]) {
	case "CREATE", "ALTER", "DROP", "TRUNCATE":
		return true
	default:
		return false
	}
}
