package playback

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/futuresim/internal/domain"
)

// barRecord is one row of a minute-bar history file.
type barRecord struct {
	Time   string `csv:"time"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Volume int64  `csv:"volume"`
}

var barTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04"}

func parseBarTime(s string) (time.Time, error) {
	for _, layout := range barTimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised bar time %q", s)
}

func (r barRecord) toBar(symbol string) (domain.Bar, error) {
	ts, err := parseBarTime(r.Time)
	if err != nil {
		return domain.Bar{}, err
	}
	var prices [4]decimal.Decimal
	for i, raw := range []string{r.Open, r.High, r.Low, r.Close} {
		if prices[i], err = decimal.NewFromString(raw); err != nil {
			return domain.Bar{}, fmt.Errorf("bar at %s: %w", r.Time, err)
		}
	}
	return domain.Bar{
		Symbol:    symbol,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    r.Volume,
		Timestamp: ts,
	}, nil
}

// ReadBarFile loads the bars of path whose start lies in [from, to),
// sorted by time.
func ReadBarFile(path, symbol string, from, to time.Time) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bar history: %w", err)
	}
	defer f.Close()

	var records []barRecord
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		b, err := r.toBar(symbol)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if inRange(b.Timestamp, from, to) {
			bars = append(bars, b)
		}
	}
	sortBars(bars)
	return bars, nil
}

// WriteBarFile stores bars in the format ReadBarFile understands.
func WriteBarFile(path string, bars []domain.Bar) error {
	records := make([]barRecord, 0, len(bars))
	for _, b := range bars {
		records = append(records, barRecord{
			Time:   b.Timestamp.UTC().Format(time.RFC3339),
			Open:   b.Open.String(),
			High:   b.High.String(),
			Low:    b.Low.String(),
			Close:  b.Close.String(),
			Volume: b.Volume,
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(&records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sortBars(bars []domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
}
