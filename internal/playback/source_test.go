package playback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/futuresim/internal/domain"
)

func TestBarFile_RoundTripAndRange(t *testing.T) {
	dir := t.TempDir()
	in := bars("rb0000@SHFE@FUTURES", 3800, 3801, 3803, 3802)
	require.NoError(t, WriteBarFile(filepath.Join(dir, "rb0000@SHFE@FUTURES.csv"), in))

	src := NewDirSource(dir)
	events, err := src.Load(context.Background(), "rb0000@SHFE@FUTURES", t0.Add(time.Minute), t0.Add(3*time.Minute), domain.PrecisionMinuteBar)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Bar.Close.Equal(decimal.NewFromInt(3801)))
	assert.True(t, events[1].Bar.Close.Equal(decimal.NewFromInt(3803)))
	assert.Equal(t, "rb0000@SHFE@FUTURES", events[0].Symbol())
}

func TestBarFile_Missing(t *testing.T) {
	_, err := NewDirSource(t.TempDir()).Load(context.Background(), "nope", t0, t0.Add(time.Hour), domain.PrecisionMinuteBar)
	assert.Error(t, err)
}

func makeTicks(symbol string, n int) []domain.Tick {
	out := make([]domain.Tick, n)
	for i := range out {
		p := decimal.NewFromInt(5000 + int64(i)).Add(decimal.RequireFromString("0.25"))
		out[i] = domain.Tick{
			Symbol:    symbol,
			LastPrice: p,
			Bid:       p,
			Ask:       p.Add(decimal.NewFromInt(1)),
			BidVolume: 3,
			AskVolume: 4,
			Volume:    int64(i + 1),
			Timestamp: t0.Add(time.Duration(i) * 500 * time.Millisecond),
		}
	}
	return out
}

func TestTickFile_RoundTripAndSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.ticks.bin")
	in := makeTicks("sim", 100)
	require.NoError(t, WriteTickFile(path, in))

	f, err := OpenTickFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.EqualValues(t, 100, f.Len())

	idx, err := f.Search(in[37].Timestamp.UnixNano())
	require.NoError(t, err)
	assert.EqualValues(t, 37, idx)
	idx, err = f.Search(in[99].Timestamp.Add(time.Hour).UnixNano())
	require.NoError(t, err)
	assert.EqualValues(t, 100, idx)

	ticks, err := ReadTickFile(context.Background(), path, "sim", in[10].Timestamp, in[20].Timestamp)
	require.NoError(t, err)
	require.Len(t, ticks, 10)
	assert.True(t, ticks[0].LastPrice.Equal(in[10].LastPrice))
	assert.True(t, ticks[0].Ask.Equal(in[10].Ask))
	assert.Equal(t, in[10].Timestamp, ticks[0].Timestamp)
	assert.Equal(t, int64(4), ticks[0].AskVolume)
}

func TestWriteTickFile_RejectsUnorderedInput(t *testing.T) {
	ticks := makeTicks("sim", 3)
	ticks[0], ticks[2] = ticks[2], ticks[0]
	assert.Error(t, WriteTickFile(filepath.Join(t.TempDir(), "x.ticks.bin"), ticks))
}

func TestLoadSequence_MergesSymbolsByTime(t *testing.T) {
	src := NewMemorySource()
	a := bars("a", 1, 2, 3)
	b := bars("b", 10, 20)
	for i := range b {
		b[i].Timestamp = b[i].Timestamp.Add(30 * time.Second)
	}
	src.AddBars(a...)
	src.AddBars(b...)

	s := settings(60)
	s.Symbols = []string{"a", "b"}
	events, err := LoadSequence(context.Background(), src, s)
	require.NoError(t, err)

	var order []string
	for _, ev := range events {
		order = append(order, ev.Symbol())
	}
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, order)
}

func TestMemorySource_UnknownPrecision(t *testing.T) {
	_, err := NewMemorySource().Load(context.Background(), "a", t0, t0.Add(time.Hour), domain.Precision("hourly"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
