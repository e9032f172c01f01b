package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "bsefeed/config"
	"bsefeed/internal/metadata"
	"bsefeed/internal/normalizer"
	"bsefeed/logger"
)

// QuoteParquetRecord is the Parquet row shape for the optional archive.
// Depth levels are not mirrored here: the per-quote JSON already
// archived to S3 carries the full structured depth, so the Parquet
// mirror stays to a stable scalar schema.
type QuoteParquetRecord struct {
	Token      int32   `parquet:"name=token, type=INT32"`
	Symbol     string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	SymbolName string  `parquet:"name=symbol_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  string  `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	Open       float64 `parquet:"name=open, type=DOUBLE"`
	High       float64 `parquet:"name=high, type=DOUBLE"`
	Low        float64 `parquet:"name=low, type=DOUBLE"`
	Close      float64 `parquet:"name=close, type=DOUBLE"`
	LTP        float64 `parquet:"name=ltp, type=DOUBLE"`
	Volume     int64   `parquet:"name=volume, type=INT64"`
	PrevClose  float64 `parquet:"name=prev_close, type=DOUBLE"`
}

// Archiver optionally mirrors rotated daily files to S3 and buffers
// quotes into a Parquet file flushed at the same rotation point. It is
// synchronous and called only from the single pipeline goroutine, so no
// locking is needed around its buffer.
type Archiver struct {
	cfg appconfig.ArchiveConfig
	log *logger.Log

	s3Client *s3.Client
	metaGen  *metadata.Generator

	buffer []QuoteParquetRecord
}

// NewArchiver builds an Archiver from the sink.archive config block. It
// returns (nil, nil) when neither S3 nor Parquet archiving is enabled.
func NewArchiver(cfg appconfig.ArchiveConfig, log *logger.Log) (*Archiver, error) {
	if !cfg.S3.Enabled && !cfg.Parquet.Enabled {
		return nil, nil
	}

	a := &Archiver{cfg: cfg, log: log}

	if cfg.S3.Enabled {
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3.Region)}
		if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("archiver: load aws config: %w", err)
		}
		a.s3Client = s3.NewFromConfig(awsCfg)

		metaDir := cfg.Parquet.Dir
		if metaDir == "" {
			metaDir = os.TempDir()
		}
		a.metaGen = metadata.NewGenerator(filepath.Join(metaDir, "metadata"), "bsefeed_quotes")
	}

	return a, nil
}

// Archive uploads a rotated-away daily JSON/CSV file to S3, if
// enabled, and records it in the manifest with a record count of 1.
func (a *Archiver) Archive(path string) error {
	if a == nil || !a.cfg.S3.Enabled {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("archiver: read %s: %w", path, err)
	}

	key := filepath.ToSlash(filepath.Join(a.cfg.S3.Prefix, filepath.Base(path)))
	if err := a.uploadToS3(key, data); err != nil {
		return err
	}

	return a.recordManifest(key, int64(len(data)), 1)
}

// AddQuote buffers q for the Parquet mirror. Call Flush to persist and
// reset the buffer, typically at the same rotation point as Archive.
func (a *Archiver) AddQuote(q normalizer.Quote) {
	if a == nil || !a.cfg.Parquet.Enabled {
		return
	}
	a.buffer = append(a.buffer, QuoteParquetRecord{
		Token:      int32(q.Token),
		Symbol:     q.Symbol,
		SymbolName: q.SymbolName,
		Timestamp:  q.Timestamp,
		Open:       q.Open,
		High:       q.High,
		Low:        q.Low,
		Close:      q.Close,
		LTP:        q.LTP,
		Volume:     int64(q.Volume),
		PrevClose:  q.PrevClose,
	})
}

// Flush writes the buffered quotes to a local Parquet file named after
// label (the rotated-away date), uploading it to S3 as well when
// enabled. The buffer is always reset, even on error, so a persistent
// write failure cannot leak memory across the life of the process.
func (a *Archiver) Flush(label string) error {
	if a == nil || !a.cfg.Parquet.Enabled || len(a.buffer) == 0 {
		return nil
	}
	rows := a.buffer
	a.buffer = nil

	data, err := marshalParquet(rows)
	if err != nil {
		return fmt.Errorf("archiver: marshal parquet: %w", err)
	}

	filename := fmt.Sprintf("%s_quotes.parquet", label)
	path := filepath.Join(a.cfg.Parquet.Dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("archiver: write %s: %w", path, err)
	}

	if a.cfg.S3.Enabled {
		key := filepath.ToSlash(filepath.Join(a.cfg.S3.Prefix, filename))
		if err := a.uploadToS3(key, data); err != nil {
			return err
		}
		return a.recordManifest(key, int64(len(data)), int64(len(rows)))
	}
	return nil
}

// memoryParquetFile implements source.ParquetFile entirely in memory, so
// the archiver never needs a scratch file on disk to build a Parquet
// blob.
type memoryParquetFile struct {
	buf *bytes.Buffer
}

func newMemoryParquetFile() *memoryParquetFile { return &memoryParquetFile{buf: &bytes.Buffer{}} }

func (m *memoryParquetFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryParquetFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memoryParquetFile) Seek(offset int64, whence int) (int64, error) {
	return int64(m.buf.Len()), nil
}
func (m *memoryParquetFile) Read(b []byte) (int, error)  { return m.buf.Read(b) }
func (m *memoryParquetFile) Write(b []byte) (int, error) { return m.buf.Write(b) }
func (m *memoryParquetFile) Close() error                { return nil }
func (m *memoryParquetFile) Bytes() []byte               { return m.buf.Bytes() }

func marshalParquet(rows []QuoteParquetRecord) ([]byte, error) {
	fw := newMemoryParquetFile()
	pw, err := pqwriter.NewParquetWriter(fw, new(QuoteParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return fw.Bytes(), nil
}

func (a *Archiver) uploadToS3(key string, data []byte) error {
	_, err := a.s3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &a.cfg.S3.Bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("archiver: upload %s to s3://%s: %w", key, a.cfg.S3.Bucket, err)
	}
	return nil
}

func (a *Archiver) recordManifest(key string, size, recordCount int64) error {
	if a.metaGen == nil {
		return nil
	}
	df := metadata.DataFile{
		Path:        fmt.Sprintf("s3://%s/%s", a.cfg.S3.Bucket, key),
		FileSize:    size,
		RecordCount: recordCount,
		Partition:   map[string]any{"bucket": a.cfg.S3.Bucket},
		Timestamp:   time.Now(),
	}
	if err := a.metaGen.AddFile(df); err != nil {
		return fmt.Errorf("archiver: record manifest: %w", err)
	}
	return nil
}
