// Package normalizer joins decompressed records with the contract master,
// forms display symbols, scales paise to rupees, validates value ranges,
// and emits persistence-ready Quote values.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"bsefeed/internal/contractmaster"
	"bsefeed/internal/decompress"
)

// DepthLevel is a rupee-scaled depth level ready for persistence.
type DepthLevel struct {
	Price      float64
	Quantity   int64
	OrderCount int64
}

// Quote is the normalized, rupee-scaled, persistence-ready record.
type Quote struct {
	Token      uint32
	Symbol     string
	SymbolName string
	Expiry     string
	OptionType string
	Strike     float64
	Timestamp  string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	LTP        float64
	Volume     uint32
	PrevClose  float64
	BidLevels  []DepthLevel
	AskLevels  []DepthLevel
}

// DropReason identifies why a candidate record was not emitted as a Quote.
type DropReason string

// DropReasonInvalidLTP marks ltp <= 0, a hard validation failure. volume
// < 0 is the other half of that requirement, but RawRecord.Volume is
// unsigned end to end so it can never violate it.
const DropReasonInvalidLTP DropReason = "invalid_ltp"

// Normalize converts a DepthRecord into a Quote. ok is false when the
// record fails hard validation (ltp<=0 or volume<0) and must be dropped
// and counted by the caller. unknown reports whether the token was absent
// from the contract master; the caller uses it to decide whether to emit
// the once-per-token warning.
func Normalize(rec decompress.DepthRecord, cm *contractmaster.ContractMaster, header Timestamp) (quote Quote, ok bool, unknown bool) {
	ltp := float64(rec.Close) / 100.0
	volume := rec.Volume

	if ltp <= 0 {
		return Quote{}, false, false
	}

	entry, found := cm.Lookup(rec.Token)

	quote = Quote{
		Token:     rec.Token,
		Timestamp: header.Format(),
		Open:      float64(rec.Open) / 100.0,
		High:      float64(rec.High) / 100.0,
		Low:       float64(rec.Low) / 100.0,
		Close:     ltp,
		LTP:       ltp,
		Volume:    volume,
		PrevClose: float64(rec.PrevClose) / 100.0,
		BidLevels: scaleLevels(rec.BidLevels),
		AskLevels: scaleLevels(rec.AskLevels),
	}

	if !found {
		quote.Symbol = "UNKNOWN"
		return quote, true, true
	}

	quote.Symbol = entry.Symbol
	quote.Expiry = entry.Expiry
	quote.OptionType = entry.OptionType
	quote.Strike = entry.Strike
	quote.SymbolName = formatSymbolName(entry)

	return quote, true, false
}

// scaleLevels converts paise-scaled depth levels to rupees, silently
// dropping any level whose price is non-positive.
func scaleLevels(levels []decompress.DepthLevel) []DepthLevel {
	out := make([]DepthLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.PricePaise <= 0 {
			continue
		}
		out = append(out, DepthLevel{
			Price:      float64(lvl.PricePaise) / 100.0,
			Quantity:   lvl.Quantity,
			OrderCount: lvl.OrderCount,
		})
	}
	return out
}

// formatSymbolName builds the display symbol: options as
// {SYMBOL}{DD}{MMM}{YYYY}_{STRIKE}{CE|PE}, futures (no option type) as
// {SYMBOL}{DD}{MMM}{YYYY}_FUT.
func formatSymbolName(entry contractmaster.Entry) string {
	dd, mmm, yyyy, ok := splitExpiry(entry.Expiry)
	if !ok {
		return ""
	}

	if entry.OptionType == "" {
		return fmt.Sprintf("%s%s%s%s_FUT", entry.Symbol, dd, mmm, yyyy)
	}

	strike := formatStrike(entry.Strike)
	return fmt.Sprintf("%s%s%s%s_%s%s", entry.Symbol, dd, mmm, yyyy, strike, entry.OptionType)
}

// splitExpiry parses "DD-MMM-YYYY" into its three parts, uppercasing the
// month.
func splitExpiry(expiry string) (dd, mmm, yyyy string, ok bool) {
	parts := strings.Split(expiry, "-")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], strings.ToUpper(parts[1]), parts[2], true
}

func formatStrike(strike float64) string {
	if strike == float64(int64(strike)) {
		return fmt.Sprintf("%d", int64(strike))
	}
	return fmt.Sprintf("%g", strike)
}

// Timestamp carries the pieces needed to format the
// "YYYY-MM-DD HH:MM:SS.mmm" output timestamp: the header's
// hour/minute/second, and the system date/sub-second clock at
// normalization time.
type Timestamp struct {
	Hour, Minute, Second int
	Now                  time.Time
}

// Format renders the timestamp as "YYYY-MM-DD HH:MM:SS.mmm", with
// milliseconds truncated (not rounded) from the system sub-second clock.
func (t Timestamp) Format() string {
	ms := t.Now.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		t.Now.Year(), t.Now.Month(), t.Now.Day(),
		t.Hour, t.Minute, t.Second, ms)
}
