package datasource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/cryptolens/internal/domain/market"
	"github.com/sawpanic/cryptolens/internal/domain/sentiment"
)

// SentimentFile is the file LoadDir reads Fear & Greed history from.
const SentimentFile = "fear_greed.csv"

// ReadPrices parses a header-led CSV with at least date and close columns.
// open, high, low, volume and market_cap are optional; empty cells are missing.
func ReadPrices(r io.Reader) (market.PriceSeries, error) {
	rows, cols, err := readTable(r, "date", "close")
	if err != nil {
		return nil, err
	}

	series := make(market.PriceSeries, 0, len(rows))
	for i, rec := range rows {
		line := i + 2
		date, err := market.ParseDate(field(rec, cols, "date"))
		if err != nil || date.IsZero() {
			return nil, fmt.Errorf("line %d: bad date %q", line, field(rec, cols, "date"))
		}
		closeVal, err := strconv.ParseFloat(field(rec, cols, "close"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad close: %w", line, err)
		}
		p := market.PricePoint{Date: date.Time, Close: closeVal}
		for name, dst := range map[string]**float64{
			"open":       &p.Open,
			"high":       &p.High,
			"low":        &p.Low,
			"volume":     &p.Volume,
			"market_cap": &p.MarketCap,
		} {
			v, err := optional(field(rec, cols, name))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad %s: %w", line, name, err)
			}
			*dst = v
		}
		series = append(series, p)
	}

	sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

// ReadSentiment parses date,value[,label] rows. Missing labels are classified.
func ReadSentiment(r io.Reader) (market.SentimentSeries, error) {
	rows, cols, err := readTable(r, "date", "value")
	if err != nil {
		return nil, err
	}

	out := make(market.SentimentSeries, 0, len(rows))
	for i, rec := range rows {
		date, err := market.ParseDate(field(rec, cols, "date"))
		if err != nil || date.IsZero() {
			return nil, fmt.Errorf("line %d: bad date %q", i+2, field(rec, cols, "date"))
		}
		value, err := strconv.ParseFloat(field(rec, cols, "value"), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad value: %w", i+2, err)
		}
		label := field(rec, cols, "label")
		if label == "" {
			label = sentiment.Classify(value)
		}
		out = append(out, market.SentimentReading{Date: date.Time, Value: value, Label: label})
	}
	return out.Sorted(), nil
}

// LoadDir builds a Memory source from <coin id>.csv files in dir, plus an
// optional fear_greed.csv.
func LoadDir(dir string) (*Memory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	mem := NewMemory()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		path := filepath.Join(dir, name)
		if name == SentimentFile {
			series, err := readFile(path, ReadSentiment)
			if err != nil {
				return nil, err
			}
			mem.SetSentiment(series)
			continue
		}

		id := strings.TrimSuffix(name, ".csv")
		series, err := readFile(path, ReadPrices)
		if err != nil {
			return nil, err
		}
		if err := mem.Add(market.Asset{ID: id, Name: id}, series); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		log.Debug().Str("coin", id).Int("rows", len(series)).Msg("Loaded price history")
	}
	return mem, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	out, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func readTable(r io.Reader, required ...string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return rows, cols, nil
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func optional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
