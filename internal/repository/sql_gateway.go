package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/wheattoast11/deepresearch-mcp/internal/apierr"
)

// readOnlyTables is the allowlist backing ExecuteReadOnlySql (§4.1, §6
// execute_sql): a query must be a single SELECT that names at least one of
// these tables. Other table names appearing in the same query are not
// rejected.
var readOnlyTables = map[string]bool{
	"jobs":              true,
	"job_events":         true,
	"webhook_deliveries": true,
	"reports":            true,
	"index_documents":    true,
	"index_postings":     true,
	"sessions":           true,
	"usage_counters":     true,
}

// SQLiteSQLGateway implements SQLGateway, the guarded read-only SQL
// allowlist exposed to MCP clients.
type SQLiteSQLGateway struct {
	db *sql.DB
}

func NewSQLiteSQLGateway(db *sql.DB) *SQLiteSQLGateway {
	return &SQLiteSQLGateway{db: db}
}

// ExecuteReadOnlySql validates that query is a single SELECT statement
// naming at least one allowlisted table before executing it with bound
// params.
func (g *SQLiteSQLGateway) ExecuteReadOnlySql(ctx context.Context, query string, params []any) ([]map[string]any, error) {
	if err := validateReadOnlyQuery(query); err != nil {
		return nil, err
	}

	rows, err := g.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "execute_sql query failed")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "execute_sql columns failed")
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apierr.Wrap(apierr.CodeStorageUnavailable, err, "execute_sql scan failed")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func validateReadOnlyQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return apierr.New(apierr.CodeInvalidParams, "only SELECT statements are permitted")
	}
	if strings.Contains(trimmed, ";") {
		return apierr.New(apierr.CodeInvalidParams, "multiple statements are not permitted")
	}
	for _, forbidden := range []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "ATTACH", "PRAGMA", "REPLACE"} {
		if strings.Contains(upper, forbidden) {
			return apierr.New(apierr.CodeInvalidParams, "statement contains a disallowed keyword").WithDetail("keyword", forbidden)
		}
	}

	matched := false
	for table := range readOnlyTables {
		if strings.Contains(upper, strings.ToUpper(table)) {
			matched = true
			break
		}
	}
	if !matched {
		return apierr.New(apierr.CodeInvalidParams, "query does not reference a known table")
	}
	return nil
}
