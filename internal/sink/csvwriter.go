package sink

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"bsefeed/internal/metrics"
	"bsefeed/internal/normalizer"
)

// csvHeader matches the required output column order exactly.
const csvHeader = "token,symbol,symbol_name,expiry,option_type,strike,timestamp,open,high,low,close,ltp,volume,prev_close,bid_prices,bid_qtys,bid_orders,ask_prices,ask_qtys,ask_orders\n"

// csvWriter appends one row per quote to YYYYMMDD_quotes.csv, writing the
// header exactly once at file creation. Row formatting is hand-built
// rather than routed through encoding/csv.Writer: the `="..."` timestamp
// formula and the always-quoted depth columns need exact control that
// encoding/csv's auto-quoting heuristic does not give.
type csvWriter struct {
	df *dailyFile

	batchesWritten int64
	bytesWritten   int64
}

func newCSVWriter(dir string) *csvWriter {
	w := &csvWriter{}
	w.df = newDailyFile(dir, "_quotes.csv", func(f *os.File) error {
		_, err := f.WriteString(csvHeader)
		return err
	})
	return w
}

func (w *csvWriter) close() error { return w.df.close() }

func (w *csvWriter) write(date string, q normalizer.Quote) (rotated string, err error) {
	rotated, err = w.df.ensure(date)
	if err != nil {
		return "", err
	}

	row := formatRow(q)
	if _, err := w.df.file.WriteString(row); err != nil {
		return rotated, fmt.Errorf("write quote: %w", err)
	}
	w.batchesWritten++
	w.bytesWritten += int64(len(row))
	return rotated, nil
}

func (w *csvWriter) writerStats(errors int64) metrics.WriterStats {
	return metrics.WriterStats{
		BatchesWritten: w.batchesWritten,
		FilesWritten:   w.df.filesOpened,
		BytesWritten:   w.bytesWritten,
		ErrorsCount:    errors,
	}
}

func formatRow(q normalizer.Quote) string {
	fields := []string{
		strconv.FormatUint(uint64(q.Token), 10),
		csvField(q.Symbol),
		csvField(q.SymbolName),
		csvField(q.Expiry),
		csvField(q.OptionType),
		formatPrice(q.Strike),
		`="` + q.Timestamp + `"`,
		formatPrice(q.Open),
		formatPrice(q.High),
		formatPrice(q.Low),
		formatPrice(q.Close),
		formatPrice(q.LTP),
		strconv.FormatUint(uint64(q.Volume), 10),
		formatPrice(q.PrevClose),
		depthColumn(q.BidLevels, depthPrice),
		depthColumn(q.BidLevels, depthQuantity),
		depthColumn(q.BidLevels, depthOrders),
		depthColumn(q.AskLevels, depthPrice),
		depthColumn(q.AskLevels, depthQuantity),
		depthColumn(q.AskLevels, depthOrders),
	}
	return strings.Join(fields, ",") + "\n"
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type depthField func(normalizer.DepthLevel) string

func depthPrice(l normalizer.DepthLevel) string    { return formatPrice(l.Price) }
func depthQuantity(l normalizer.DepthLevel) string { return strconv.FormatInt(l.Quantity, 10) }
func depthOrders(l normalizer.DepthLevel) string   { return strconv.FormatInt(l.OrderCount, 10) }

// depthColumn renders one of the six flattened depth columns: a
// comma-separated list wrapped in double quotes, empty if levels is
// empty.
func depthColumn(levels []normalizer.DepthLevel, field depthField) string {
	if len(levels) == 0 {
		return ""
	}
	parts := make([]string, len(levels))
	for i, lvl := range levels {
		parts[i] = field(lvl)
	}
	return `"` + strings.Join(parts, ",") + `"`
}

// csvField quotes a text field per RFC4180 only when it contains a
// character that requires it; none of the enum-like text fields written
// here (symbol, symbol_name, expiry, option_type) are expected to, but
// it keeps the writer correct for contract master values we do not
// control.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
