package dbn

import (
	"strconv"
	"strings"
	"time"
)

// OCCSymbol is the result of parsing a fixed-grammar option identifier:
// root ticker, 6-digit date, call/put flag, zero-padded strike.
type OCCSymbol struct {
	Root       string
	Expiration time.Time
	OptionType string // "C" or "P"
	Strike     float64
}

// ParseOCCSymbol parses identifiers like "AAPL  240621C00190000" or the
// unpadded "SPXW240621P05300000". Returns false when the string does not
// follow the grammar.
func ParseOCCSymbol(raw string) (OCCSymbol, bool) {
	s := strings.TrimSpace(raw)
	// The tail is fixed width: YYMMDD + C/P + 8-digit strike.
	const tailLen = 6 + 1 + 8
	if len(s) <= tailLen {
		return OCCSymbol{}, false
	}
	root := strings.TrimRight(s[:len(s)-tailLen], " ")
	tail := s[len(s)-tailLen:]
	if root == "" {
		return OCCSymbol{}, false
	}
	for _, c := range root {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return OCCSymbol{}, false
		}
	}

	date := tail[:6]
	flag := tail[6]
	strikeStr := tail[7:]
	if flag != 'C' && flag != 'P' {
		return OCCSymbol{}, false
	}
	exp, err := time.Parse("060102", date)
	if err != nil {
		return OCCSymbol{}, false
	}
	strikeMillis, err := strconv.ParseUint(strikeStr, 10, 64)
	if err != nil {
		return OCCSymbol{}, false
	}

	return OCCSymbol{
		Root:       root,
		Expiration: exp.UTC(),
		OptionType: string(flag),
		Strike:     float64(strikeMillis) / 1000.0,
	}, true
}
