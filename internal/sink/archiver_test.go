package sink

import (
	"testing"

	appconfig "bsefeed/config"
	"bsefeed/internal/normalizer"
	"bsefeed/logger"
)

func TestNewArchiverNilWhenDisabled(t *testing.T) {
	a, err := NewArchiver(appconfig.ArchiveConfig{}, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil archiver when both s3 and parquet are disabled")
	}
}

func TestArchiverMethodsNilSafe(t *testing.T) {
	var a *Archiver
	a.AddQuote(normalizer.Quote{Token: 1})
	if err := a.Flush("20251127"); err != nil {
		t.Errorf("Flush on nil archiver: %v", err)
	}
	if err := a.Archive("/tmp/does-not-matter.json"); err != nil {
		t.Errorf("Archive on nil archiver: %v", err)
	}
}

func TestArchiverBuffersQuotesWhenParquetEnabledWithoutS3(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchiver(appconfig.ArchiveConfig{
		Parquet: appconfig.ParquetArchiveConfig{Enabled: true, Dir: dir},
	}, logger.GetLogger())
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	if a == nil {
		t.Fatalf("expected non-nil archiver")
	}

	a.AddQuote(normalizer.Quote{Token: 873870, Symbol: "SENSEX", LTP: 1207.75})
	if len(a.buffer) != 1 {
		t.Fatalf("expected 1 buffered row, got %d", len(a.buffer))
	}

	if err := a.Flush("20251127"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(a.buffer) != 0 {
		t.Errorf("expected buffer reset after flush, got %d rows", len(a.buffer))
	}
}
