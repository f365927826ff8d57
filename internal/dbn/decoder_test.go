package dbn

import (
	"encoding/binary"
	"testing"
	"time"

	"MicroPulse/internal/domain/models"
)

func testDecoder(version uint8) *Decoder {
	return NewDecoder(&Metadata{Version: version}, nil)
}

func putHeader(rec []byte, rtype uint8, instrumentID uint32, tsEvent uint64) {
	rec[0] = byte(len(rec) / LengthUnit)
	rec[1] = rtype
	binary.LittleEndian.PutUint16(rec[2:4], 1)
	binary.LittleEndian.PutUint32(rec[4:8], instrumentID)
	binary.LittleEndian.PutUint64(rec[8:16], tsEvent)
}

func rawPrice(px float64) uint64 {
	return uint64(int64(px / PxScale))
}

func tradeRecord(instrumentID uint32, px float64, size uint32, side byte) []byte {
	rec := make([]byte, tradeBodySize)
	putHeader(rec, RTypeTrade, instrumentID, 1000)
	binary.LittleEndian.PutUint64(rec[16:24], rawPrice(px))
	binary.LittleEndian.PutUint32(rec[24:28], size)
	rec[29] = side
	binary.LittleEndian.PutUint64(rec[32:40], 2000)
	binary.LittleEndian.PutUint32(rec[44:48], 7)
	return rec
}

func quoteRecord(instrumentID uint32, levels int) []byte {
	rec := make([]byte, tradeBodySize+levels*levelSize)
	rtype := RTypeMbp1
	if levels > 1 {
		rtype = RTypeMbp10
	}
	putHeader(rec, rtype, instrumentID, 1000)
	for i := 0; i < levels; i++ {
		lv := rec[tradeBodySize+i*levelSize:]
		binary.LittleEndian.PutUint64(lv[0:8], rawPrice(99.0-float64(i)))
		binary.LittleEndian.PutUint64(lv[8:16], rawPrice(101.0+float64(i)))
		binary.LittleEndian.PutUint32(lv[16:20], uint32(100*(i+1)))
		binary.LittleEndian.PutUint32(lv[20:24], uint32(50*(i+1)))
		binary.LittleEndian.PutUint32(lv[24:28], uint32(i+1))
		binary.LittleEndian.PutUint32(lv[28:32], uint32(i+2))
	}
	return rec
}

func systemRecord(msg string) []byte {
	size := HeaderSize + len(msg) + 1
	if rem := size % LengthUnit; rem != 0 {
		size += LengthUnit - rem
	}
	rec := make([]byte, size)
	putHeader(rec, RTypeSystem, 0, 1000)
	copy(rec[HeaderSize:], msg)
	return rec
}

func TestDecodeTrade(t *testing.T) {
	d := testDecoder(2)
	now := time.Now()
	events, consumed := d.Decode(tradeRecord(42, 101.25, 5, 'B'), now)
	if consumed != tradeBodySize {
		t.Fatalf("consumed %d, want %d", consumed, tradeBodySize)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != models.EventTrade || ev.Trade == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Trade.InstrumentID != 42 {
		t.Fatalf("instrument %d", ev.Trade.InstrumentID)
	}
	if ev.Trade.Price == nil || *ev.Trade.Price != 101.25 {
		t.Fatalf("price %v", ev.Trade.Price)
	}
	if ev.Trade.Size != 5 || ev.Trade.Side != 'B' {
		t.Fatalf("size=%d side=%c", ev.Trade.Size, ev.Trade.Side)
	}
}

func TestDecodeUndefPriceIsNil(t *testing.T) {
	rec := tradeRecord(1, 0, 5, 'A')
	binary.LittleEndian.PutUint64(rec[16:24], uint64(UndefPrice))

	events, _ := testDecoder(2).Decode(rec, time.Now())
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Trade.Price != nil {
		t.Fatalf("undefined price decoded to %v, want nil", *events[0].Trade.Price)
	}
}

func TestDecodePartialRecordWaits(t *testing.T) {
	d := testDecoder(2)
	rec := tradeRecord(1, 100, 1, 'A')

	events, consumed := d.Decode(rec[:30], time.Now())
	if consumed != 0 || len(events) != 0 {
		t.Fatalf("partial record: consumed=%d events=%d", consumed, len(events))
	}

	events, consumed = d.Decode(rec, time.Now())
	if consumed != len(rec) || len(events) != 1 {
		t.Fatalf("full record: consumed=%d events=%d", consumed, len(events))
	}
}

func TestDecodeSplitAcrossChunks(t *testing.T) {
	d := testDecoder(2)
	var stream []byte
	stream = append(stream, tradeRecord(1, 100, 1, 'A')...)
	stream = append(stream, tradeRecord(2, 200, 2, 'B')...)

	// First chunk ends mid-record.
	cut := tradeBodySize + 10
	events, consumed := d.Decode(stream[:cut], time.Now())
	if len(events) != 1 || consumed != tradeBodySize {
		t.Fatalf("first chunk: events=%d consumed=%d", len(events), consumed)
	}

	rest := stream[consumed:]
	events, consumed = d.Decode(rest, time.Now())
	if len(events) != 1 || consumed != len(rest) {
		t.Fatalf("second chunk: events=%d consumed=%d", len(events), consumed)
	}
	if events[0].Trade.InstrumentID != 2 {
		t.Fatalf("instrument %d, want 2", events[0].Trade.InstrumentID)
	}
}

func TestDecodeResyncsOnBadLength(t *testing.T) {
	d := testDecoder(2)
	junk := []byte{0x00, 0x01, 0x02} // all declare < HeaderSize
	stream := append(junk, tradeRecord(9, 50, 1, 'N')...)

	events, consumed := d.Decode(stream, time.Now())
	if consumed != len(stream) {
		t.Fatalf("consumed %d, want %d", consumed, len(stream))
	}
	if len(events) != 1 || events[0].Trade.InstrumentID != 9 {
		t.Fatalf("events %+v", events)
	}
}

func TestDecodeSkipsUnknownRType(t *testing.T) {
	rec := tradeRecord(1, 100, 1, 'A')
	rec[1] = 0x7F

	events, consumed := testDecoder(2).Decode(rec, time.Now())
	if consumed != len(rec) {
		t.Fatalf("consumed %d, want %d", consumed, len(rec))
	}
	if len(events) != 0 {
		t.Fatalf("unknown rtype produced %d events", len(events))
	}
}

func TestDecodeQuoteLevels(t *testing.T) {
	events, _ := testDecoder(2).Decode(quoteRecord(7, 3), time.Now())
	if len(events) != 1 || events[0].Type != models.EventQuote {
		t.Fatalf("events %+v", events)
	}
	q := events[0].Quote
	if len(q.Levels) != 3 {
		t.Fatalf("levels %d, want 3", len(q.Levels))
	}
	top := q.Levels[0]
	if top.BidPx == nil || *top.BidPx != 99.0 || top.AskPx == nil || *top.AskPx != 101.0 {
		t.Fatalf("top of book %+v", top)
	}
	if top.BidSz != 100 || top.AskSz != 50 || top.BidCt != 1 || top.AskCt != 2 {
		t.Fatalf("top sizes %+v", top)
	}
}

func TestDecodeHeartbeat(t *testing.T) {
	events, _ := testDecoder(2).Decode(systemRecord("Heartbeat"), time.Now())
	if len(events) != 1 || events[0].Type != models.EventSystem {
		t.Fatalf("events %+v", events)
	}
	if !events[0].System.IsHeartbeat {
		t.Fatalf("expected heartbeat flag")
	}
}

func TestDecodeStatistic(t *testing.T) {
	rec := make([]byte, statSize)
	putHeader(rec, RTypeStatistics, 3, 1000)
	binary.LittleEndian.PutUint32(rec[40:44], 12345)
	binary.LittleEndian.PutUint16(rec[52:54], 9) // open interest

	events, _ := testDecoder(2).Decode(rec, time.Now())
	if len(events) != 1 || events[0].Type != models.EventStatistic {
		t.Fatalf("events %+v", events)
	}
	s := events[0].Statistic
	if s.Quantity != 12345 || s.StatType != 9 {
		t.Fatalf("statistic %+v", s)
	}
}

func definitionRecord(symbolLen int, rawSymbol, underlying string, optType byte) []byte {
	size := defStringsOffset + symbolLen + 21 + 1
	if rem := size % LengthUnit; rem != 0 {
		size += LengthUnit - rem
	}
	rec := make([]byte, size)
	putHeader(rec, RTypeDefinition, 11, 1000)
	binary.LittleEndian.PutUint64(rec[24:32], uint64(int64(0.25/PxScale)))
	binary.LittleEndian.PutUint64(rec[40:48], uint64(time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC).UnixNano()))
	binary.LittleEndian.PutUint64(rec[48:56], rawPrice(190))
	binary.LittleEndian.PutUint32(rec[56:60], 100)
	copy(rec[defStringsOffset:], rawSymbol)
	copy(rec[defStringsOffset+symbolLen:], underlying)
	rec[defStringsOffset+symbolLen+21] = optType
	return rec
}

func TestDecodeDefinitionBothVersions(t *testing.T) {
	for _, tc := range []struct {
		version   uint8
		symbolLen int
	}{
		{1, SymbolCstrLenV1},
		{2, SymbolCstrLenV2},
	} {
		d := testDecoder(tc.version)
		rec := definitionRecord(tc.symbolLen, "AAPL  260918C00190000", "AAPL", 'C')

		events, consumed := d.Decode(rec, time.Now())
		if consumed != len(rec) || len(events) != 1 {
			t.Fatalf("v%d: consumed=%d events=%d", tc.version, consumed, len(events))
		}
		def := events[0].Definition
		if def == nil {
			t.Fatalf("v%d: no definition", tc.version)
		}
		if def.Underlying != "AAPL" || def.OptionType != "C" {
			t.Fatalf("v%d: underlying=%q type=%q", tc.version, def.Underlying, def.OptionType)
		}
		if def.Strike == nil || *def.Strike != 190 {
			t.Fatalf("v%d: strike %v", tc.version, def.Strike)
		}
		if def.Expiration == nil || def.Expiration.Year() != 2026 {
			t.Fatalf("v%d: expiration %v", tc.version, def.Expiration)
		}
		if def.Multiplier != 100 {
			t.Fatalf("v%d: multiplier %v", tc.version, def.Multiplier)
		}
	}
}

func TestDecodeShortDefinitionRejected(t *testing.T) {
	// A v1-sized definition fed to a v2 decoder is too short for the v2
	// string layout and must be rejected, not misparsed.
	rec := definitionRecord(SymbolCstrLenV1, "ESZ6", "ES", 0)
	events, consumed := testDecoder(2).Decode(rec, time.Now())
	if consumed != len(rec) {
		t.Fatalf("consumed %d, want %d", consumed, len(rec))
	}
	if len(events) != 0 {
		t.Fatalf("short definition decoded: %+v", events)
	}
}
