package extractor

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		text string
		btc  string
		usdt string
		usdc string
	}{
		{name: "sums repeated symbol", text: "1,250.5 #BTC and 300 #BTC", btc: "1550.5", usdt: "0", usdc: "0"},
		{name: "markup stripped", text: "<b>500</b> #USDT", btc: "0", usdt: "500", usdc: "0"},
		{name: "entities decoded", text: "&#49;&#48;0 #USDC", btc: "0", usdt: "0", usdc: "100"},
		{name: "case insensitive tag", text: "42 #btc", btc: "42", usdt: "0", usdc: "0"},
		{name: "non-breaking space gap", text: "1,000&nbsp;#BTC", btc: "1000", usdt: "0", usdc: "0"},
		{name: "no gap before tag", text: "7#USDT", btc: "0", usdt: "7", usdc: "0"},
		{name: "trailing decimal point", text: "5. #BTC", btc: "5", usdt: "0", usdc: "0"},
		{name: "mixed assets", text: "🚨 2,000 #BTC (120,000,000 USD)<br/>50,000,000 #USDT<br>10,000,000 #USDC", btc: "2000", usdt: "50000000", usdc: "10000000"},
		{name: "untagged numbers ignored", text: "transferred 1,000 BTC from unknown wallet", btc: "0", usdt: "0", usdc: "0"},
		{name: "empty", text: "", btc: "0", usdt: "0", usdc: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(tc.text)
			if err != nil {
				t.Fatalf("Extract(%q) 不应报错: %v", tc.text, err)
			}
			assertDecimal(t, "BTC", got.BTC, tc.btc)
			assertDecimal(t, "USDT", got.USDT, tc.usdt)
			assertDecimal(t, "USDC", got.USDC, tc.usdc)
		})
	}
}

func TestExtractNeverNegative(t *testing.T) {
	texts := []string{"-5 #BTC", "a - 3 #USDT", "<p>-1,000.25 #USDC</p>", "#BTC #USDT #USDC"}
	for _, text := range texts {
		got, err := Extract(text)
		if err != nil {
			t.Fatalf("Extract(%q): %v", text, err)
		}
		for _, sym := range Symbols {
			if got.Get(sym).IsNegative() {
				t.Fatalf("%s total must be non-negative for %q, got %s", sym, text, got.Get(sym))
			}
		}
	}
}

func TestExtractZeroIsNotAbsent(t *testing.T) {
	got, err := Extract("nothing here")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Fatalf("期望全部为 0, 实际 %+v", got)
	}
	if got.BTC.String() != "0" {
		t.Fatalf("BTC 应为 0, 实际 %q", got.BTC.String())
	}
}

func TestHasAssetTag(t *testing.T) {
	cases := map[string]bool{
		"1,000 #BTC":            true,
		"<b>5</b> #USDT":        true,
		"x #USDC":               true,
		"1,000 #btc":            false,
		"1,000 BTC":             false,
		"#ETH 500":              false,
		"&#35;BTC entity-coded": false,
	}
	for text, want := range cases {
		if got := HasAssetTag(text); got != want {
			t.Errorf("HasAssetTag(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestCleanHTML(t *testing.T) {
	got := CleanHTML(`<p>Whale &amp; co<!-- note --> moved <a href="x">1,000</a>&nbsp;#BTC</p>`)
	want := "Whale & co moved 1,000 #BTC"
	if got != want {
		t.Fatalf("CleanHTML = %q, want %q", got, want)
	}
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: 期望 %s, 实际 %s", label, want, got.String())
	}
}
