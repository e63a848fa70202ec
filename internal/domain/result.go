package domain

// Value is one typed cell of a parsed table: string, int64, float64,
// bool, or nil for a NULL cell.
type Value any

// Table holds the typed rows parsed from one window's transcript.
// Columns are assigned positionally from the caller's contract.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// WindowResult is the outcome of parsing one transcript. Exactly one
// of Table and Raw is set for a non-empty result; Raw carries the
// verbatim transcript when the layout was too ambiguous to parse
// structurally.
type WindowResult struct {
	Table *Table
	Raw   string
}

// Empty reports the normal outcome for a window with no matching rows.
func (r WindowResult) Empty() bool {
	return r.Table == nil && r.Raw == ""
}

// ResultSet is the concatenation of all window results of one query.
// A single consistent column contract across windows is the caller's
// responsibility.
type ResultSet struct {
	Columns []string
	Rows    [][]Value
	// Raw collects verbatim transcripts of windows that defeated
	// structured parsing.
	Raw []string
}

// Append concatenates one window's table into the set.
func (rs *ResultSet) Append(t *Table) {
	if len(rs.Columns) == 0 {
		rs.Columns = t.Columns
	}
	rs.Rows = append(rs.Rows, t.Rows...)
}

// Empty reports whether no window contributed any data.
func (rs *ResultSet) Empty() bool {
	return len(rs.Rows) == 0 && len(rs.Raw) == 0
}
