package parser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"skyquery/internal/adapter/repository/filecache"
	"skyquery/internal/domain"
	"skyquery/internal/domain/mocks"
)

const prompt = "[hadoop-1:21000] > "

func newTestParser(t *testing.T) (*Parser, *mocks.MockCacheRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := mocks.NewMockCacheRepository()
	return New(cache, logger), cache
}

func TestParse_TabLayout(t *testing.T) {
	p, _ := newTestParser(t)
	columns := []string{"time", "icao24", "callsign"}
	transcript := strings.Join([]string{
		"time\ticao24\tcallsign",
		"1549015205\t4ca84d\tRYR87P  ",
		"1549015206\ta1b2c3\tAFR12   ",
		prompt,
	}, "\n")

	res, err := p.Parse(context.Background(), "k", transcript, columns)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if res.Table == nil {
		t.Fatal("expected a typed table")
	}
	if len(res.Table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Table.Rows))
	}
	if got := res.Table.Rows[0][0]; got != int64(1549015205) {
		t.Errorf("time cell: got %v (%T), want int64", got, got)
	}
	if got := res.Table.Rows[1][1]; got != "a1b2c3" {
		t.Errorf("icao24 cell: got %v (%T), want text %q", got, got, "a1b2c3")
	}
}

func TestParse_IdentifiersStayText(t *testing.T) {
	p, _ := newTestParser(t)
	columns := []string{"icao24", "callsign", "velocity"}
	// 1234e5 would be read as 123400000.0 by a generic sniffer.
	transcript := strings.Join([]string{
		"icao24\tcallsign\tvelocity",
		"1234e5\t123456  \t251.3",
		prompt,
	}, "\n")

	res, err := p.Parse(context.Background(), "k", transcript, columns)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	row := res.Table.Rows[0]
	if row[0] != "1234e5" {
		t.Errorf("icao24: got %v (%T), want string", row[0], row[0])
	}
	if row[1] != "123456" {
		t.Errorf("callsign: got %v (%T), want string", row[1], row[1])
	}
	if row[2] != 251.3 {
		t.Errorf("velocity: got %v (%T), want float64", row[2], row[2])
	}
}

func TestParse_BoxLayout(t *testing.T) {
	p, _ := newTestParser(t)
	columns := []string{"time", "icao24"}
	transcript := strings.Join([]string{
		"+------------+--------+",
		"| time       | icao24 |",
		"| 1549015205 | 4ca84d |",
		"+------------+--------+",
		prompt,
	}, "\n")

	res, err := p.Parse(context.Background(), "k", transcript, columns)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if res.Table == nil {
		t.Fatal("expected a typed table")
	}
	if len(res.Table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Table.Rows))
	}
	if res.Table.Rows[0][0] != int64(1549015205) || res.Table.Rows[0][1] != "4ca84d" {
		t.Errorf("unexpected row: %v", res.Table.Rows[0])
	}
}

func TestParse_BoxLayoutWithCommaFallsBackToRaw(t *testing.T) {
	p, _ := newTestParser(t)
	transcript := strings.Join([]string{
		"| sensors | array<struct<serial:int,mintime:double>> |",
		"| rawmsg  | string                                   |",
		prompt,
	}, "\n")

	res, err := p.Parse(context.Background(), "k", transcript, nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if res.Table != nil {
		t.Fatal("expected raw text, got a structured table")
	}
	if res.Raw != transcript {
		t.Error("raw fallback must return the transcript verbatim")
	}
}

func TestParse_DuplicateRowsCollapse(t *testing.T) {
	p, _ := newTestParser(t)
	columns := []string{"time", "icao24"}
	transcript := strings.Join([]string{
		"time\ticao24",
		"1549015205\t4ca84d",
		"1549015205\t4ca84d",
		"1549015206\t4ca84d",
		prompt,
	}, "\n")

	res, err := p.Parse(context.Background(), "k", transcript, columns)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(res.Table.Rows) != 2 {
		t.Errorf("expected duplicates to collapse to 2 rows, got %d", len(res.Table.Rows))
	}
}

func TestParse_RemoteErrorBanner(t *testing.T) {
	p, cache := newTestParser(t)
	key := "failing-key"
	transcript := "ERROR: disk full\n" + prompt
	cache.Entries[key] = transcript

	_, err := p.Parse(context.Background(), key, transcript, []string{"time"})

	var remoteErr *domain.RemoteQueryError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteQueryError, got %v", err)
	}
	if remoteErr.Message != "ERROR: disk full" {
		t.Errorf("unexpected message: %q", remoteErr.Message)
	}
	if ok, _ := cache.Exists(context.Background(), key); ok {
		t.Error("cache entry must be deleted after a confirmed remote error")
	}
}

func TestParse_EmptyWindow(t *testing.T) {
	p, _ := newTestParser(t)
	transcript := "Fetched 0 row(s) in 1.24s\n" + prompt

	res, err := p.Parse(context.Background(), "k", transcript, []string{"time"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !res.Empty() {
		t.Error("a transcript with no data rows and no banner must be empty")
	}
}

func TestParse_HeaderOnlyTranscriptIsEmpty(t *testing.T) {
	p, _ := newTestParser(t)
	columns := []string{"time", "icao24"}
	transcript := "time\ticao24\n" + prompt

	res, err := p.Parse(context.Background(), "k", transcript, columns)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !res.Empty() {
		t.Error("a header with no data rows must be empty")
	}
}

func TestParse_MalformedRowQuarantinesEntry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := filecache.NewCacheRepository(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	p := New(cache, logger)

	columns := []string{"time", "icao24", "callsign"}
	badLine := "1549015209\t4ca851\tEZY45\textra"
	lines := []string{
		"time\ticao24\tcallsign",
		"1549015205\t4ca84d\tRYR87P",
		"1549015206\t4ca84e\tAFR12",
		"1549015207\t4ca84f\tBAW38",
		badLine,
		"1549015210\t4ca852\tDLH402",
		"1549015211\t4ca853\tKLM10",
		"1549015212\t4ca854\tSWR55",
		"1549015213\t4ca855\tAUA21",
		prompt,
	}
	transcript := strings.Join(lines, "\n")

	ctx := context.Background()
	key := domain.CommandKey("select time, icao24, callsign from sv")
	if err := cache.Write(ctx, key, nil, transcript, false); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	stored, err := cache.Read(ctx, key)
	if err != nil {
		t.Fatalf("failed to read cache: %v", err)
	}
	_, err = p.Parse(ctx, key, stored, columns)

	var parseErr *domain.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Line != 5 {
		t.Errorf("expected offending line 5, got %d", parseErr.Line)
	}
	if parseErr.Text != badLine {
		t.Errorf("expected literal offending text %q, got %q", badLine, parseErr.Text)
	}

	// The live entry is gone, but the quarantined copy survives.
	if ok, _ := cache.Exists(ctx, key); ok {
		t.Error("corrupted entry must leave the live cache")
	}
	if parseErr.Path == cache.Location(key) {
		t.Error("ParseError must reference the relocated entry")
	}
}

func TestTypeCell(t *testing.T) {
	p, _ := newTestParser(t)

	for _, tc := range []struct {
		cell string
		want domain.Value
	}{
		{"42", int64(42)},
		{"251.3", 251.3},
		{"true", true},
		{"false", false},
		{"NULL", nil},
		{"", nil},
		{"RYR87P", "RYR87P"},
	} {
		if got := p.typeCell("velocity", tc.cell); got != tc.want {
			t.Errorf("typeCell(%q) = %v (%T), want %v", tc.cell, got, got, tc.want)
		}
	}
}
