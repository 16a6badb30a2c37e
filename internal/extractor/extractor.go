// Package extractor turns free-text transfer announcements into per-asset totals.
package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// ErrMalformedAmount signals a matched numeric token that would not parse.
// The match pattern only admits parseable tokens, so seeing it is a defect.
var ErrMalformedAmount = errors.New("extractor: malformed amount")

// Symbol is a tracked asset ticker.
type Symbol string

// Tracked assets.
const (
	BTC  Symbol = "BTC"
	USDT Symbol = "USDT"
	USDC Symbol = "USDC"
)

// Symbols lists every tracked asset in display order.
var Symbols = []Symbol{BTC, USDT, USDC}

// amount, optional gap (unicode spaces included), hashtag: "1,250.5 #BTC"
var amountPattern = regexp.MustCompile(`(?i)(\d[\d,]*\.?\d*)[\s\p{Z}]*#(BTC|USDT|USDC)`)

// Amounts holds the summed total per asset found in one text.
type Amounts struct {
	BTC  decimal.Decimal
	USDT decimal.Decimal
	USDC decimal.Decimal
}

// Get returns the total for sym, zero for unknown symbols.
func (a Amounts) Get(sym Symbol) decimal.Decimal {
	switch sym {
	case BTC:
		return a.BTC
	case USDT:
		return a.USDT
	case USDC:
		return a.USDC
	default:
		return decimal.Zero
	}
}

// IsZero reports whether no asset carries a positive total.
func (a Amounts) IsZero() bool {
	return a.BTC.IsZero() && a.USDT.IsZero() && a.USDC.IsZero()
}

func (a *Amounts) add(sym Symbol, v decimal.Decimal) {
	switch sym {
	case BTC:
		a.BTC = a.BTC.Add(v)
	case USDT:
		a.USDT = a.USDT.Add(v)
	case USDC:
		a.USDC = a.USDC.Add(v)
	}
}

// HasAssetTag is the relevance filter. It looks for the literal, case-sensitive
// hashtags in raw, markup-intact text.
func HasAssetTag(raw string) bool {
	for _, sym := range Symbols {
		if strings.Contains(raw, "#"+string(sym)) {
			return true
		}
	}
	return false
}

// Extract strips markup from text and sums every "<number> #<SYMBOL>" occurrence
// per asset. Symbols without a match total exactly zero.
func Extract(text string) (Amounts, error) {
	amounts := Amounts{BTC: decimal.Zero, USDT: decimal.Zero, USDC: decimal.Zero}

	clean := CleanHTML(text)
	for _, m := range amountPattern.FindAllStringSubmatch(clean, -1) {
		value, err := parseAmount(m[1])
		if err != nil {
			return Amounts{}, err
		}
		amounts.add(Symbol(strings.ToUpper(m[2])), value)
	}
	return amounts, nil
}

func parseAmount(token string) (decimal.Decimal, error) {
	digits := strings.ReplaceAll(token, ",", "")
	digits = strings.TrimSuffix(digits, ".")
	value, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", ErrMalformedAmount, token, err)
	}
	if value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is negative", ErrMalformedAmount, token)
	}
	return value, nil
}

// CleanHTML drops every tag and comment and decodes entities in the remaining text.
func CleanHTML(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader can produce
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
