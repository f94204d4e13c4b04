package utils

import "testing"

func TestTruncateAddress(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"7epTbTVZ9VSLDLGptzzkFLSvEZEsmUsCxr9vMPLsnoT5", "7epT...noT5"},
		{"short", "short"},
		{"abcdefghij", "abcdefghij"}, // exactly 10 chars stays whole
		{"", ""},
	}
	for _, tt := range tests {
		if got := TruncateAddress(tt.addr); got != tt.want {
			t.Errorf("TruncateAddress(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestLamportConversions(t *testing.T) {
	if got := LamportsToSOL(2_500_000_000); got != 2.5 {
		t.Errorf("LamportsToSOL(2.5e9) = %v, want 2.5", got)
	}
	if got := SOLToLamports(5.0); got != 5_000_000_000 {
		t.Errorf("SOLToLamports(5.0) = %v, want 5e9", got)
	}
	if got := SOLToLamports(LamportsToSOL(123456789)); got != 123456789 {
		t.Errorf("round trip = %v, want 123456789", got)
	}
}

func TestFormatSOL(t *testing.T) {
	tests := []struct {
		sol  float64
		want string
	}{
		{12.5, "12.500"},
		{0.0014, "0.001"},
		{0, "0.000"},
		{1234.56789, "1234.568"},
	}
	for _, tt := range tests {
		if got := FormatSOL(tt.sol); got != tt.want {
			t.Errorf("FormatSOL(%v) = %q, want %q", tt.sol, got, tt.want)
		}
	}
}

func TestFormatVolumeSOL(t *testing.T) {
	tests := []struct {
		lamports float64
		want     string
	}{
		{1_234_500_000_000, "1,234.5"},
		{500_000_000, "0.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := FormatVolumeSOL(tt.lamports); got != tt.want {
			t.Errorf("FormatVolumeSOL(%v) = %q, want %q", tt.lamports, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Errorf("FormatCount(1234567) = %q", got)
	}
	if got := FormatCount(42); got != "42" {
		t.Errorf("FormatCount(42) = %q", got)
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		usd  float64
		want string
	}{
		{1234.56, "$1,234.56"},
		{150, "$150"},
		{0.5, "$0.5"},
	}
	for _, tt := range tests {
		if got := FormatUSD(tt.usd); got != tt.want {
			t.Errorf("FormatUSD(%v) = %q, want %q", tt.usd, got, tt.want)
		}
	}
}

func TestExplorerURLs(t *testing.T) {
	mint := "J1S9H3QjnRtBbbuD4HjPV6RpRhwuk4zKbxsnCHuTgh9w"
	if got := MagicEdenItemURL(mint); got != "https://magiceden.io/item-details/"+mint {
		t.Errorf("MagicEdenItemURL = %q", got)
	}
	if got := MagicEdenCollectionURL("degods"); got != "https://magiceden.io/marketplace/degods" {
		t.Errorf("MagicEdenCollectionURL = %q", got)
	}
	if got := SolscanAccountURL("abc"); got != "https://solscan.io/account/abc" {
		t.Errorf("SolscanAccountURL = %q", got)
	}
	if got := SolscanTokenURL(mint); got != "https://solscan.io/token/"+mint {
		t.Errorf("SolscanTokenURL = %q", got)
	}
}
