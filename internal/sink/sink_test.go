package sink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bsefeed/internal/normalizer"
	"bsefeed/logger"
)

func testQuote(token uint32, ltp float64) normalizer.Quote {
	return normalizer.Quote{
		Token:      token,
		Symbol:     "SENSEX",
		SymbolName: "SENSEX27NOV2025_84100CE",
		Expiry:     "27-NOV-2025",
		OptionType: "CE",
		Strike:     84100,
		Timestamp:  "2025-11-27 09:15:30.123",
		Open:       1200,
		High:       1210,
		Low:        1190,
		Close:      ltp,
		LTP:        ltp,
		Volume:     480,
		PrevClose:  1195.50,
		BidLevels: []normalizer.DepthLevel{
			{Price: 1207.50, Quantity: 10, OrderCount: 2},
			{Price: 1207.25, Quantity: 5, OrderCount: 1},
		},
		AskLevels: []normalizer.DepthLevel{
			{Price: 1208.00, Quantity: 8, OrderCount: 3},
		},
	}
}

func TestSinkSaveWritesJSONAndCSV(t *testing.T) {
	jsonDir := t.TempDir()
	csvDir := t.TempDir()
	s := New(jsonDir, csvDir, logger.GetLogger(), nil)

	s.Save(testQuote(873870, 1207.75))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	jsonFiles, err := filepath.Glob(filepath.Join(jsonDir, "*_quotes.json"))
	if err != nil || len(jsonFiles) != 1 {
		t.Fatalf("expected exactly one json file, got %v (err=%v)", jsonFiles, err)
	}
	data, err := os.ReadFile(jsonFiles[0])
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if !strings.Contains(string(data), `"token":873870`) {
		t.Errorf("json output missing token field: %s", data)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Errorf("json line not newline-terminated")
	}

	csvFiles, err := filepath.Glob(filepath.Join(csvDir, "*_quotes.csv"))
	if err != nil || len(csvFiles) != 1 {
		t.Fatalf("expected exactly one csv file, got %v (err=%v)", csvFiles, err)
	}
	csvData, err := os.ReadFile(csvFiles[0])
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(csvData), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), lines)
	}
	if lines[0] != strings.TrimRight(csvHeader, "\n") {
		t.Errorf("unexpected csv header: %q", lines[0])
	}
	if !strings.Contains(lines[1], `="2025-11-27 09:15:30.123"`) {
		t.Errorf("csv row missing timestamp formula: %q", lines[1])
	}
	if !strings.Contains(lines[1], `"1207.50,1207.25"`) {
		t.Errorf("csv row missing bid_prices column: %q", lines[1])
	}
}

func TestSinkSaveAppendsOnSecondCall(t *testing.T) {
	jsonDir := t.TempDir()
	csvDir := t.TempDir()
	s := New(jsonDir, csvDir, logger.GetLogger(), nil)

	s.Save(testQuote(1, 100))
	s.Save(testQuote(2, 200))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	csvFiles, _ := filepath.Glob(filepath.Join(csvDir, "*_quotes.csv"))
	data, _ := os.ReadFile(csvFiles[0])
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %q", len(lines), lines)
	}
}

func TestSinkReopenDoesNotDuplicateHeader(t *testing.T) {
	jsonDir := t.TempDir()
	csvDir := t.TempDir()

	s1 := New(jsonDir, csvDir, logger.GetLogger(), nil)
	s1.Save(testQuote(1, 100))
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := New(jsonDir, csvDir, logger.GetLogger(), nil)
	s2.Save(testQuote(2, 200))
	if err := s2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	csvFiles, _ := filepath.Glob(filepath.Join(csvDir, "*_quotes.csv"))
	data, _ := os.ReadFile(csvFiles[0])
	headerCount := strings.Count(string(data), strings.TrimRight(csvHeader, "\n"))
	if headerCount != 1 {
		t.Errorf("expected header written exactly once across restarts, found %d times", headerCount)
	}
}

func TestDailyFileRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	df := newDailyFile(dir, "_quotes.csv", func(f *os.File) error {
		_, err := f.WriteString("header\n")
		return err
	})

	rotated, err := df.ensure("20251127")
	if err != nil {
		t.Fatalf("ensure day1: %v", err)
	}
	if rotated != "" {
		t.Errorf("expected no rotation on first open, got %q", rotated)
	}

	rotated, err = df.ensure("20251128")
	if err != nil {
		t.Fatalf("ensure day2: %v", err)
	}
	if rotated != filepath.Join(dir, "20251127_quotes.csv") {
		t.Errorf("unexpected rotated path: %q", rotated)
	}
	if err := df.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDepthColumnEmptyWhenNoLevels(t *testing.T) {
	if got := depthColumn(nil, depthPrice); got != "" {
		t.Errorf("expected empty depth column, got %q", got)
	}
}

func TestDepthColumnQuotesSingleLevel(t *testing.T) {
	levels := []normalizer.DepthLevel{{Price: 100.5, Quantity: 1, OrderCount: 1}}
	if got := depthColumn(levels, depthPrice); got != `"100.50"` {
		t.Errorf("expected quoted single-level column, got %q", got)
	}
}
