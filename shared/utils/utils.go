package utils

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

const lamportsPerSOL = 1_000_000_000

// TruncateAddress shortens a base58 address to its first and last four
// characters for display.
func TruncateAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

// LamportsToSOL converts the chain's smallest unit into major units.
func LamportsToSOL(lamports float64) float64 {
	return lamports / lamportsPerSOL
}

// SOLToLamports converts major units into the chain's smallest unit.
func SOLToLamports(sol float64) float64 {
	return sol * lamportsPerSOL
}

// FormatSOL renders a major-unit amount to three decimals.
func FormatSOL(sol float64) string {
	return strconv.FormatFloat(sol, 'f', 3, 64)
}

// FormatVolumeSOL renders a lamport volume as a comma-grouped SOL amount.
func FormatVolumeSOL(lamports float64) string {
	return humanize.CommafWithDigits(LamportsToSOL(lamports), 1)
}

// FormatCount renders an integer with comma grouping.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatUSD renders a dollar amount with comma grouping and two decimals.
func FormatUSD(usd float64) string {
	return "$" + humanize.CommafWithDigits(usd, 2)
}

func SolscanAccountURL(addr string) string {
	return fmt.Sprintf("https://solscan.io/account/%s", addr)
}

func SolscanTokenURL(mint string) string {
	return fmt.Sprintf("https://solscan.io/token/%s", mint)
}

func MagicEdenItemURL(mint string) string {
	return fmt.Sprintf("https://magiceden.io/item-details/%s", mint)
}

func MagicEdenCollectionURL(symbol string) string {
	return fmt.Sprintf("https://magiceden.io/marketplace/%s", symbol)
}
