package store

import "strings"

// predicates accumulates WHERE conditions with bindvar placeholders (?).
// Queries built from it go through Rebind before execution.
type predicates struct {
	clauses []string
	args    []interface{}
}

func (p *predicates) add(clause string, args ...interface{}) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

func (p *predicates) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// assignments accumulates SET column = ? pairs for partial updates
type assignments struct {
	columns []string
	args    []interface{}
}

func (a *assignments) set(column string, value interface{}) {
	a.columns = append(a.columns, column+" = ?")
	a.args = append(a.args, value)
}

func (a *assignments) empty() bool {
	return len(a.columns) == 0
}

func (a *assignments) clause() string {
	return strings.Join(a.columns, ", ")
}

// page appends LIMIT/OFFSET bindvars
func page(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return query + " LIMIT ? OFFSET ?", append(args, limit, offset)
}

// DefaultPageSize is used when a filter does not set a limit
const DefaultPageSize = 20
