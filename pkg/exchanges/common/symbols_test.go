package common

import "testing"

func TestSplitCanonical(t *testing.T) {
	tests := []struct {
		in          string
		base, quote string
		ok          bool
	}{
		{"btc-usdt", "btc", "usdt", true},
		{"1000sats-usdt", "1000sats", "usdt", true},
		{"btcusdt", "", "", false},
		{"-usdt", "", "", false},
		{"btc-", "", "", false},
	}
	for _, tt := range tests {
		base, quote, ok := SplitCanonical(tt.in)
		if base != tt.base || quote != tt.quote || ok != tt.ok {
			t.Fatalf("SplitCanonical(%q)=(%q,%q,%v), expected (%q,%q,%v)", tt.in, base, quote, ok, tt.base, tt.quote, tt.ok)
		}
	}
}

func TestSplitByQuote(t *testing.T) {
	base, quote, ok := SplitByQuote("ethusdc", []string{"USDT", "USDC"})
	if !ok || base != "ETH" || quote != "USDC" {
		t.Fatalf("SplitByQuote=(%q,%q,%v), expected (ETH,USDC,true)", base, quote, ok)
	}
	if _, _, ok := SplitByQuote("USDT", []string{"USDT"}); ok {
		t.Fatalf("bare quote should not split")
	}
}

func TestSortedUnique(t *testing.T) {
	got := SortedUnique([]string{"eth-usdt", "btc-usdt", "eth-usdt", ""})
	if len(got) != 2 || got[0] != "btc-usdt" || got[1] != "eth-usdt" {
		t.Fatalf("SortedUnique=%v", got)
	}
}

func TestIsStablePair(t *testing.T) {
	if !IsStablePair("usdc", "usdt") {
		t.Fatalf("usdc-usdt should be a stable pair")
	}
	if IsStablePair("btc", "usdt") {
		t.Fatalf("btc-usdt is not a stable pair")
	}
}

func TestParseLevels(t *testing.T) {
	got := ParseLevels([][]any{{"100.5", "2"}, {99.0, 1.5}, {"bad"}, {"0", "1"}})
	if len(got) != 2 {
		t.Fatalf("len=%d, expected 2", len(got))
	}
	if got[0] != (OrderBookLevel{100.5, 2}) || got[1] != (OrderBookLevel{99, 1.5}) {
		t.Fatalf("ParseLevels=%v", got)
	}
}
