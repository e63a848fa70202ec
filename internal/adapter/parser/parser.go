// Package parser converts raw shell transcripts into typed tables.
//
// The remote shell prints results in one of two ad hoc layouts: plain
// tab-delimited rows, or a box-drawn table with | delimiters. Neither
// is self-describing, so classification is line by line and tolerant:
// anything that fits neither layout is handled as an error banner, an
// empty result, or a raw-text fallback.
package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"skyquery/internal/domain"
)

var (
	tabDelim = regexp.MustCompile(` *\t *`)
	boxLine  = regexp.MustCompile(`^\|.*\|`)
	boxDelim = regexp.MustCompile(` *\| *`)
)

const errorBanner = "ERROR:"

// Parser turns one stored transcript into a typed table. It needs the
// backing cache so it can quarantine corrupted entries and delete
// entries holding confirmed remote errors.
type Parser struct {
	cache  domain.CacheRepository
	logger *slog.Logger

	// textColumns are never run through the numeric sniffer: all-digit
	// aircraft and flight identifiers would otherwise come back as
	// numbers or scientific notation.
	textColumns map[string]struct{}
}

// New creates a Parser bound to the given cache.
func New(cache domain.CacheRepository, logger *slog.Logger) *Parser {
	return &Parser{
		cache:  cache,
		logger: logger.With("component", "parser"),
		textColumns: map[string]struct{}{
			"icao24":   {},
			"callsign": {},
		},
	}
}

// matchedLine is one transcript line recognized as a data row.
type matchedLine struct {
	srcLine int    // 1-based line number in the stored transcript
	text    string // original line, verbatim
	csv     string // normalized to comma-separated
}

// Parse classifies and types the transcript stored under key. The
// columns are assigned positionally; the caller guarantees the query
// returns them in that order.
//
// A comma inside a box-drawn line aborts structured parsing and
// returns the transcript verbatim: schema-description output uses the
// same box layout and embeds commas. The check misclassifies
// legitimate data containing commas too; that ambiguity is inherent to
// the layout and deliberately left as is.
func (p *Parser) Parse(ctx context.Context, key, transcript string, columns []string) (domain.WindowResult, error) {
	lines := strings.Split(transcript, "\n")

	var matched []matchedLine
	for i, line := range lines {
		switch {
		case strings.Contains(line, "\t"):
			matched = append(matched, matchedLine{
				srcLine: i + 1,
				text:    line,
				csv:     tabDelim.ReplaceAllString(line, ","),
			})
		case boxLine.MatchString(line):
			if strings.Contains(line, ",") {
				p.logger.Debug("box-drawn line contains a comma, falling back to raw text", "key", key)
				return domain.WindowResult{Raw: transcript}, nil
			}
			normalized := boxDelim.ReplaceAllString(line, ",")
			// Strip the delimiters that used to be the box edges.
			if len(normalized) >= 2 {
				normalized = normalized[1 : len(normalized)-1]
			}
			matched = append(matched, matchedLine{srcLine: i + 1, text: line, csv: normalized})
		}
	}

	if len(matched) == 0 {
		return p.emptyOrRemoteError(ctx, key, lines)
	}

	table, err := p.buildTable(ctx, key, matched, columns)
	if err != nil {
		return domain.WindowResult{}, err
	}
	if len(table.Rows) == 0 {
		// Only the header matched; no data came back.
		return p.emptyOrRemoteError(ctx, key, lines)
	}
	return domain.WindowResult{Table: table}, nil
}

// buildTable types the matched lines into rows, dropping exact
// duplicates (the remote side occasionally re-emits rows).
func (p *Parser) buildTable(ctx context.Context, key string, matched []matchedLine, columns []string) (*domain.Table, error) {
	header := columns
	start := 0

	first, err := splitRecord(matched[0].csv)
	if err != nil {
		return nil, p.corrupted(ctx, key, matched[0], err)
	}
	if len(columns) == 0 {
		header = first
		start = 1
	} else if equalFields(first, columns) {
		start = 1
	}

	seen := make(map[string]struct{})
	rows := make([][]domain.Value, 0, len(matched)-start)
	for _, m := range matched[start:] {
		if _, dup := seen[m.csv]; dup {
			continue
		}
		seen[m.csv] = struct{}{}

		fields, err := splitRecord(m.csv)
		if err != nil {
			return nil, p.corrupted(ctx, key, m, err)
		}
		if len(fields) != len(header) {
			return nil, p.corrupted(ctx, key, m,
				fmt.Errorf("expected %d fields, got %d", len(header), len(fields)))
		}

		row := make([]domain.Value, len(fields))
		for i, cell := range fields {
			row[i] = p.typeCell(header[i], cell)
		}
		rows = append(rows, row)
	}

	return &domain.Table{Columns: header, Rows: rows}, nil
}

// corrupted quarantines the backing cache entry and wraps the
// diagnostic context into a ParseError.
func (p *Parser) corrupted(ctx context.Context, key string, m matchedLine, cause error) error {
	path, qerr := p.cache.Quarantine(ctx, key)
	if qerr != nil {
		p.logger.Error("failed to quarantine corrupted cache entry", "key", key, "error", qerr)
		path = p.cache.Location(key)
	}
	return &domain.ParseError{
		Path: path,
		Line: m.srcLine,
		Text: m.text,
		Err:  cause,
	}
}

// emptyOrRemoteError handles a transcript with no data rows: either a
// server-side error banner, or the normal outcome of a window with no
// matching rows.
func (p *Parser) emptyOrRemoteError(ctx context.Context, key string, lines []string) (domain.WindowResult, error) {
	banner := false
	for _, line := range lines {
		if strings.HasPrefix(line, errorBanner) {
			banner = true
			break
		}
	}
	if !banner {
		return domain.WindowResult{}, nil
	}

	// The final line is the reappearing prompt, not part of the message.
	message := strings.Join(lines[:len(lines)-1], "\n")
	if err := p.cache.Invalidate(ctx, key); err != nil {
		p.logger.Error("failed to delete cache entry after remote error", "key", key, "error", err)
	}
	return domain.WindowResult{}, &domain.RemoteQueryError{Message: message}
}

// typeCell sniffs a cell into int64, float64, bool, or nil for NULL.
// Columns in the forced-text set stay strings unconditionally.
func (p *Parser) typeCell(column, cell string) domain.Value {
	if _, forced := p.textColumns[column]; forced {
		return cell
	}
	if cell == "" || cell == "NULL" {
		return nil
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	if cell == "true" {
		return true
	}
	if cell == "false" {
		return false
	}
	return cell
}

func splitRecord(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	return r.Read()
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
