package query

import "strings"

// Query is a single SQL statement to be executed against a data source.
type Query struct {
	Query string
}

func (q Query) String() string {
	return strings.TrimSpace(q.Query)
}

func (q Query) IsEmpty() bool {
	return q.String() == ""
}
