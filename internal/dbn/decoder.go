package dbn

import (
	"fmt"
	"time"

	"MicroPulse/internal/domain/models"
	"MicroPulse/pkg/logger"
)

// Decoder turns a byte stream into typed events. The layout of instrument
// definitions depends on the protocol version, so a decoder is built once
// from the session metadata and reused for the life of the session.
type Decoder struct {
	version   uint8
	symbolLen int
	log       *logger.Logger
}

// NewDecoder builds a decoder for the layout described by the session
// metadata.
func NewDecoder(meta *Metadata, log *logger.Logger) *Decoder {
	symbolLen := meta.SymbolCstrLen
	if symbolLen <= 0 {
		if meta.Version >= 2 {
			symbolLen = SymbolCstrLenV2
		} else {
			symbolLen = SymbolCstrLenV1
		}
	}
	return &Decoder{version: meta.Version, symbolLen: symbolLen, log: log}
}

// Version reports the protocol version the decoder was built for.
func (d *Decoder) Version() uint8 { return d.version }

// Decode parses as many complete records as buf holds and reports how many
// bytes were consumed. A record split across reads is left untouched until
// the remainder arrives. Records with a declared length below the header
// size resynchronize one byte at a time. A panic while parsing a single
// record is contained: the record is skipped and the stream continues.
func (d *Decoder) Decode(buf []byte, now time.Time) (events []models.Event, consumed int) {
	for consumed < len(buf) {
		size := int(buf[consumed]) * LengthUnit
		if size < HeaderSize {
			// Malformed framing: skip a single byte and retry.
			consumed++
			continue
		}
		if consumed+size > len(buf) {
			break
		}
		rec := buf[consumed : consumed+size]
		if ev, ok := d.decodeRecord(rec, now); ok {
			events = append(events, ev)
		}
		consumed += size
	}
	return events, consumed
}

func (d *Decoder) decodeRecord(rec []byte, now time.Time) (ev models.Event, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if d.log != nil {
				d.log.Error("record decode panic",
					logger.String("rtype", RTypeName(rec[1])),
					logger.Int("size", len(rec)),
					logger.Any("panic", r))
			}
			ok = false
		}
	}()

	hdr := models.RecordHeader{
		RecordSize:   len(rec),
		RType:        rec[1],
		PublisherID:  u16(rec[2:4]),
		InstrumentID: u32(rec[4:8]),
		TsEvent:      u64(rec[8:16]),
	}

	switch hdr.RType {
	case RTypeTrade:
		t, err := d.parseTrade(hdr, rec)
		if err != nil {
			return d.reject(hdr, err)
		}
		return models.Event{Type: models.EventTrade, Trade: t, Received: now}, true
	case RTypeMbp1, RTypeMbp10:
		q, err := d.parseQuote(hdr, rec)
		if err != nil {
			return d.reject(hdr, err)
		}
		return models.Event{Type: models.EventQuote, Quote: q, Received: now}, true
	case RTypeStatistics:
		s, err := d.parseStatistic(hdr, rec)
		if err != nil {
			return d.reject(hdr, err)
		}
		return models.Event{Type: models.EventStatistic, Statistic: s, Received: now}, true
	case RTypeOhlcv1s, RTypeOhlcv1m, RTypeOhlcv1h, RTypeOhlcv1d:
		b, err := d.parseOhlcv(hdr, rec)
		if err != nil {
			return d.reject(hdr, err)
		}
		return models.Event{Type: models.EventOHLCV, OHLCV: b, Received: now}, true
	case RTypeDefinition:
		def, err := d.parseDefinition(hdr, rec)
		if err != nil {
			return d.reject(hdr, err)
		}
		return models.Event{Type: models.EventDefinition, Definition: def, Received: now}, true
	case RTypeError:
		msg := &models.GatewayMsg{RecordHeader: hdr, Msg: cstr(rec[HeaderSize:])}
		return models.Event{Type: models.EventError, Error: msg, Received: now}, true
	case RTypeSystem:
		msg := &models.GatewayMsg{RecordHeader: hdr, Msg: cstr(rec[HeaderSize:])}
		msg.IsHeartbeat = msg.Msg == "Heartbeat"
		return models.Event{Type: models.EventSystem, System: msg, Received: now}, true
	default:
		// Unknown rtype: the length prefix already told us how far to skip.
		return models.Event{}, false
	}
}

func (d *Decoder) reject(hdr models.RecordHeader, err error) (models.Event, bool) {
	if d.log != nil {
		d.log.Warn("record rejected",
			logger.String("rtype", RTypeName(hdr.RType)),
			logger.Error(err))
	}
	return models.Event{}, false
}

func (d *Decoder) parseTrade(hdr models.RecordHeader, rec []byte) (*models.Trade, error) {
	if len(rec) < tradeBodySize {
		return nil, fmt.Errorf("trade record %d < %d bytes", len(rec), tradeBodySize)
	}
	return &models.Trade{
		RecordHeader: hdr,
		Price:        decodePrice(i64(rec[16:24])),
		Size:         u32(rec[24:28]),
		Side:         rec[29],
		Depth:        rec[31],
		TsRecv:       u64(rec[32:40]),
		TsInDelta:    i32(rec[40:44]),
		Sequence:     u32(rec[44:48]),
	}, nil
}

func (d *Decoder) parseQuote(hdr models.RecordHeader, rec []byte) (*models.Quote, error) {
	if len(rec) < tradeBodySize+levelSize {
		return nil, fmt.Errorf("quote record %d bytes holds no level", len(rec))
	}
	q := &models.Quote{
		RecordHeader: hdr,
		Price:        decodePrice(i64(rec[16:24])),
		Size:         u32(rec[24:28]),
		Side:         rec[29],
		TsRecv:       u64(rec[32:40]),
		Sequence:     u32(rec[44:48]),
	}
	nLevels := (len(rec) - tradeBodySize) / levelSize
	if nLevels > 10 {
		nLevels = 10
	}
	q.Levels = make([]models.DepthLevel, 0, nLevels)
	for i := 0; i < nLevels; i++ {
		lv := rec[tradeBodySize+i*levelSize:]
		q.Levels = append(q.Levels, models.DepthLevel{
			BidPx: decodePrice(i64(lv[0:8])),
			AskPx: decodePrice(i64(lv[8:16])),
			BidSz: u32(lv[16:20]),
			AskSz: u32(lv[20:24]),
			BidCt: u32(lv[24:28]),
			AskCt: u32(lv[28:32]),
		})
	}
	return q, nil
}

func (d *Decoder) parseStatistic(hdr models.RecordHeader, rec []byte) (*models.Statistic, error) {
	if len(rec) < statSize {
		return nil, fmt.Errorf("statistic record %d < %d bytes", len(rec), statSize)
	}
	return &models.Statistic{
		RecordHeader: hdr,
		TsRecv:       u64(rec[16:24]),
		TsRef:        u64(rec[24:32]),
		Price:        decodePrice(i64(rec[32:40])),
		Quantity:     int64(i32(rec[40:44])),
		Sequence:     u32(rec[44:48]),
		StatType:     u16(rec[52:54]),
	}, nil
}

func (d *Decoder) parseOhlcv(hdr models.RecordHeader, rec []byte) (*models.OHLCV, error) {
	if len(rec) < ohlcvSize {
		return nil, fmt.Errorf("ohlcv record %d < %d bytes", len(rec), ohlcvSize)
	}
	return &models.OHLCV{
		RecordHeader: hdr,
		Open:         decodePrice(i64(rec[16:24])),
		High:         decodePrice(i64(rec[24:32])),
		Low:          decodePrice(i64(rec[32:40])),
		Close:        decodePrice(i64(rec[40:48])),
		Volume:       u64(rec[48:56]),
	}, nil
}

// Definition layout. The numeric front part is version-invariant; the string
// fields that follow are sized by the symbol width learned from metadata, so
// v1 (22-byte symbols) and v2 (71-byte symbols) records have different
// offsets for underlying and instrument class.
const defStringsOffset = 64

func (d *Decoder) parseDefinition(hdr models.RecordHeader, rec []byte) (*models.Definition, error) {
	need := defStringsOffset + d.symbolLen + 21 + 1
	if len(rec) < need {
		return nil, fmt.Errorf("definition record %d < %d bytes (v%d)", len(rec), need, d.version)
	}

	def := &models.Definition{
		RecordHeader: hdr,
		TickSize:     float64(i64(rec[24:32])) * PxScale,
		Multiplier:   float64(i32(rec[56:60])),
	}
	if def.Multiplier <= 0 {
		def.Multiplier = 1
	}

	rawExp := u64(rec[40:48])
	def.Expiration = decodeTimestamp(rawExp)
	def.Strike = decodePrice(i64(rec[48:56]))

	def.RawSymbol = cstr(rec[defStringsOffset : defStringsOffset+d.symbolLen])
	underOff := defStringsOffset + d.symbolLen
	def.Underlying = cstr(rec[underOff : underOff+21])
	switch rec[underOff+21] {
	case 'C':
		def.OptionType = "C"
	case 'P':
		def.OptionType = "P"
	}

	// The symbol grammar is authoritative for strike/type/expiry when it
	// parses; the struct fields can be absent or stale for options.
	if occ, ok := ParseOCCSymbol(def.RawSymbol); ok {
		def.Strike = &occ.Strike
		def.OptionType = occ.OptionType
		exp := occ.Expiration
		def.Expiration = &exp
		if def.Underlying == "" {
			def.Underlying = occ.Root
		}
	}
	if def.Underlying == "" {
		def.Underlying = def.RawSymbol
	}
	return def, nil
}
