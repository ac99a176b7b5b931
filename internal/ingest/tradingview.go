package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pair-trader/internal/catalog"
)

// dateLayout matches TradingView daily and weekly exports, e.g. "01/02/08".
const dateLayout = "01/02/06"

// fileWorkers bounds concurrent file parsing. The catalog serializes writes
// on a single connection, so a small pool is enough.
const fileWorkers = 4

// Ingestor loads TradingView CSV exports into the bar catalog.
// What: Directory-level loader for TR_<SYMBOL>_<INTERVAL>.csv files.
// How: Fans file parsing out over a bounded worker pool, rounds prices to
// four decimal places, and upserts each series under its (symbol, interval)
// key so re-running ingest refreshes rather than duplicates.
type Ingestor struct {
	store *catalog.Store

	rows  int64
	files int64
}

func NewIngestor(store *catalog.Store) *Ingestor {
	return &Ingestor{store: store}
}

// IngestDir parses every TR_*.csv export under dir concurrently and writes
// the bars to the catalog. The first failure is returned after all workers
// finish, so one bad file does not stop the rest from loading.
func (in *Ingestor) IngestDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "TR_*.csv"))
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no TradingView exports found in %s", dir)
	}

	start := time.Now()
	sem := make(chan struct{}, fileWorkers)
	errCh := make(chan error, len(files))
	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			n, err := in.IngestFile(path)
			if err != nil {
				log.Error().Err(err).Str("file", path).Msg("ingest failed")
				errCh <- err
				return
			}
			atomic.AddInt64(&in.files, 1)
			atomic.AddInt64(&in.rows, int64(n))
		}(file)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}

	log.Info().
		Int64("files", atomic.LoadInt64(&in.files)).
		Int64("bars", atomic.LoadInt64(&in.rows)).
		Dur("took", time.Since(start)).
		Msg("ingest complete")
	return nil
}

// IngestFile parses one export and writes its bars to the catalog. The
// symbol and interval come from the file name.
func (in *Ingestor) IngestFile(path string) (int, error) {
	symbol, interval, err := ParseExportName(path)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	bars, err := ParseExport(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := in.store.WriteBars(symbol, interval, bars); err != nil {
		return 0, fmt.Errorf("write %s %s: %w", symbol, interval, err)
	}

	log.Info().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("bars", len(bars)).
		Msg("ingested trading view export")
	return len(bars), nil
}

// ParseExportName extracts (symbol, interval) from TR_<SYMBOL>_<INTERVAL>.csv.
func ParseExportName(path string) (symbol, interval string, err error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 || parts[0] != "TR" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("export name %q does not match TR_<SYMBOL>_<INTERVAL>.csv", filepath.Base(path))
	}
	return parts[1], parts[2], nil
}

// ParseExport reads a TradingView OHLC export. The header row decides the
// shape: five columns (Time,Open,High,Low,Close) carry no volume, six add it.
// Dates use the US short form and are taken as midnight UTC. Prices round to
// four decimal places; an unparsable volume falls back to zero the way the
// exports leave it blank for indices.
func ParseExport(r io.Reader) ([]catalog.BarRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("export is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 5 && len(header) != 6 {
		return nil, fmt.Errorf("expected 5 or 6 columns, got %d", len(header))
	}
	hasVolume := len(header) == 6

	var bars []catalog.BarRecord
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := time.ParseInLocation(dateLayout, strings.TrimSpace(record[0]), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date %q", line, record[0])
		}

		bar := catalog.BarRecord{Ts: ts.UnixNano()}
		if bar.Open, err = parsePrice(record[1]); err != nil {
			return nil, fmt.Errorf("line %d: bad open %q", line, record[1])
		}
		if bar.High, err = parsePrice(record[2]); err != nil {
			return nil, fmt.Errorf("line %d: bad high %q", line, record[2])
		}
		if bar.Low, err = parsePrice(record[3]); err != nil {
			return nil, fmt.Errorf("line %d: bad low %q", line, record[3])
		}
		if bar.Close, err = parsePrice(record[4]); err != nil {
			return nil, fmt.Errorf("line %d: bad close %q", line, record[4])
		}
		if hasVolume {
			if vol, err := strconv.ParseFloat(strings.TrimSpace(record[5]), 64); err == nil {
				bar.Volume = vol
			}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parsePrice(raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return d.Round(4).InexactFloat64(), nil
}
