package playback

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/mmap"

	"github.com/efreitasn/futuresim/internal/domain"
)

// PriceExp is the decimal exponent of prices stored in tick files: a
// stored value of 38125 means 3.8125.
const PriceExp = -4

// TickRecordSize is the width of one tick record: seven little-endian
// int64 fields.
const TickRecordSize = 7 * 8

// TickRecord is the fixed-width on-disk form of a tick.
type TickRecord struct {
	TimeStamp int64 // unix nanoseconds
	Last      int64
	Bid       int64
	Ask       int64
	BidVolume int64
	AskVolume int64
	Volume    int64
}

func (r *TickRecord) decode(buf []byte) {
	r.TimeStamp = int64(binary.LittleEndian.Uint64(buf[0:]))
	r.Last = int64(binary.LittleEndian.Uint64(buf[8:]))
	r.Bid = int64(binary.LittleEndian.Uint64(buf[16:]))
	r.Ask = int64(binary.LittleEndian.Uint64(buf[24:]))
	r.BidVolume = int64(binary.LittleEndian.Uint64(buf[32:]))
	r.AskVolume = int64(binary.LittleEndian.Uint64(buf[40:]))
	r.Volume = int64(binary.LittleEndian.Uint64(buf[48:]))
}

func (r TickRecord) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], uint64(r.TimeStamp))
	binary.LittleEndian.PutUint64(buf[8:], uint64(r.Last))
	binary.LittleEndian.PutUint64(buf[16:], uint64(r.Bid))
	binary.LittleEndian.PutUint64(buf[24:], uint64(r.Ask))
	binary.LittleEndian.PutUint64(buf[32:], uint64(r.BidVolume))
	binary.LittleEndian.PutUint64(buf[40:], uint64(r.AskVolume))
	binary.LittleEndian.PutUint64(buf[48:], uint64(r.Volume))
}

// Tick converts the record into a domain tick.
func (r TickRecord) Tick(symbol string) domain.Tick {
	return domain.Tick{
		Symbol:    symbol,
		LastPrice: decimal.New(r.Last, PriceExp),
		Bid:       decimal.New(r.Bid, PriceExp),
		Ask:       decimal.New(r.Ask, PriceExp),
		BidVolume: r.BidVolume,
		AskVolume: r.AskVolume,
		Volume:    r.Volume,
		Timestamp: time.Unix(0, r.TimeStamp).UTC(),
	}
}

// RecordFromTick converts a tick into its stored form, truncating prices
// to PriceExp.
func RecordFromTick(t domain.Tick) TickRecord {
	scale := decimal.New(1, -PriceExp)
	return TickRecord{
		TimeStamp: t.Timestamp.UnixNano(),
		Last:      t.LastPrice.Mul(scale).IntPart(),
		Bid:       t.Bid.Mul(scale).IntPart(),
		Ask:       t.Ask.Mul(scale).IntPart(),
		BidVolume: t.BidVolume,
		AskVolume: t.AskVolume,
		Volume:    t.Volume,
	}
}

// TickFile is a memory-mapped, time-ordered file of tick records.
type TickFile struct {
	path   string
	reader *mmap.ReaderAt
	count  int64
}

// OpenTickFile maps path into memory.
func OpenTickFile(path string) (*TickFile, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open tick history %q: %w", path, err)
	}
	size := int64(reader.Len())
	if size%TickRecordSize != 0 {
		reader.Close()
		return nil, fmt.Errorf("tick history %q: size %d is not a multiple of %d", path, size, TickRecordSize)
	}
	return &TickFile{path: path, reader: reader, count: size / TickRecordSize}, nil
}

func (f *TickFile) Close() error {
	return f.reader.Close()
}

// Len returns the number of records in the file.
func (f *TickFile) Len() int64 {
	return f.count
}

// Read decodes the record at index.
func (f *TickFile) Read(index int64, rec *TickRecord) error {
	var buf [TickRecordSize]byte
	n, err := f.reader.ReadAt(buf[:], index*TickRecordSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read record %d: %w", index, err)
	}
	if n < TickRecordSize {
		return io.EOF
	}
	rec.decode(buf[:])
	return nil
}

// Search returns the index of the first record at or after ts, or Len()
// if there is none.
func (f *TickFile) Search(ts int64) (int64, error) {
	var rec TickRecord
	low, high := int64(0), f.count-1
	for low <= high {
		mid := (low + high) / 2
		if err := f.Read(mid, &rec); err != nil {
			return 0, err
		}
		if rec.TimeStamp < ts {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return low, nil
}

// ReadTickFile loads the ticks of path in [from, to).
func ReadTickFile(ctx context.Context, path, symbol string, from, to time.Time) ([]domain.Tick, error) {
	f, err := OpenTickFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := f.Search(from.UnixNano())
	if err != nil {
		return nil, err
	}

	end := to.UnixNano()
	var ticks []domain.Tick
	var rec TickRecord
	for ; idx < f.Len(); idx++ {
		if idx%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := f.Read(idx, &rec); err != nil {
			return nil, err
		}
		if rec.TimeStamp >= end {
			break
		}
		ticks = append(ticks, rec.Tick(symbol))
	}
	return ticks, nil
}

// WriteTickFile stores ticks, which must be time-ordered, as fixed-width
// records.
func WriteTickFile(path string, ticks []domain.Tick) error {
	buf := make([]byte, len(ticks)*TickRecordSize)
	for i, t := range ticks {
		if i > 0 && t.Timestamp.Before(ticks[i-1].Timestamp) {
			return fmt.Errorf("tick %d is out of order", i)
		}
		RecordFromTick(t).encode(buf[i*TickRecordSize:])
	}
	return os.WriteFile(path, buf, 0o644)
}
