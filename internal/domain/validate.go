package domain

import "regexp"

var (
	coinIDPattern     = regexp.MustCompile(`^[a-z0-9-]+$`)
	ethAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	btcAddressPattern = regexp.MustCompile(`^([13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[a-z0-9]{39,59})$`)
	txHashPattern     = regexp.MustCompile(`^(0x)?[a-fA-F0-9]{64}$`)
	blockNumPattern   = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
)

// ValidCoinID reports whether id is a well-formed CoinGecko coin identifier.
func ValidCoinID(id string) bool {
	return id != "" && coinIDPattern.MatchString(id)
}

// ValidEthAddress reports whether addr is a well-formed Ethereum address.
func ValidEthAddress(addr string) bool {
	return ethAddressPattern.MatchString(addr)
}

// ValidBtcAddress reports whether addr is a well-formed Bitcoin address
// (legacy, P2SH, or bech32).
func ValidBtcAddress(addr string) bool {
	return btcAddressPattern.MatchString(addr)
}

// ValidTxHash reports whether hash is a well-formed transaction hash on
// either chain.
func ValidTxHash(hash string) bool {
	return txHashPattern.MatchString(hash)
}

// ValidBlockNumber reports whether s is a non-negative decimal integer with
// no leading zeros (except "0" itself).
func ValidBlockNumber(s string) bool {
	return blockNumPattern.MatchString(s)
}

// DetectChain routes an address or hash: 0x-prefixed strings are Ethereum,
// everything else Bitcoin.
func DetectChain(s string) Chain {
	if len(s) >= 2 && s[0] == '0' && s[1] == 'x' {
		return ChainEthereum
	}
	return ChainBitcoin
}

// CoinRanges enumerates valid crypto chart ranges.
var CoinRanges = map[string]int{
	"1D":  1,
	"7D":  7,
	"30D": 30,
	"90D": 90,
	"1Y":  365,
}

// StockTimeframes enumerates valid stock chart timeframes.
var StockTimeframes = map[string]bool{
	"1D":  true,
	"7D":  true,
	"30D": true,
	"1Y":  true,
}
