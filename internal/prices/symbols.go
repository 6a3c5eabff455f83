package prices

import "strings"

// feedSymbols maps venue asset names to the price feed's ticker symbols.
// Assets missing here fall back to the default <ASSET>USDT transformation.
var feedSymbols = map[string]string{
	"BTC":   "BTCUSDT",
	"ETH":   "ETHUSDT",
	"SOL":   "SOLUSDT",
	"ARB":   "ARBUSDT",
	"OP":    "OPUSDT",
	"AVAX":  "AVAXUSDT",
	"MATIC": "MATICUSDT",
	"LINK":  "LINKUSDT",
	"UNI":   "UNIUSDT",
	"AAVE":  "AAVEUSDT",
	"CRV":   "CRVUSDT",
	"MKR":   "MKRUSDT",
	"SNX":   "SNXUSDT",
	"COMP":  "COMPUSDT",
	"YFI":   "YFIUSDT",
	"SUSHI": "SUSHIUSDT",
	"DOGE":  "DOGEUSDT",
	"SHIB":  "SHIBUSDT",
	"PEPE":  "PEPEUSDT",
	"WIF":   "WIFUSDT",
	"BONK":  "BONKUSDT",
	"FLOKI": "FLOKIUSDT",
	"APE":   "APEUSDT",
	"LDO":   "LDOUSDT",
	"RPL":   "RPLUSDT",
	"FXS":   "FXSUSDT",
	"BLUR":  "BLURUSDT",
	"APT":   "APTUSDT",
	"SUI":   "SUIUSDT",
	"SEI":   "SEIUSDT",
	"TIA":   "TIAUSDT",
	"INJ":   "INJUSDT",
	"NEAR":  "NEARUSDT",
	"ATOM":  "ATOMUSDT",
	"DOT":   "DOTUSDT",
	"FTM":   "FTMUSDT",
	"ALGO":  "ALGOUSDT",
	"XRP":   "XRPUSDT",
	"ADA":   "ADAUSDT",
	"XLM":   "XLMUSDT",
	"TRX":   "TRXUSDT",
	"EOS":   "EOSUSDT",
	"XTZ":   "XTZUSDT",
	"KAVA":  "KAVAUSDT",
	"RUNE":  "RUNEUSDT",
	"GMX":   "GMXUSDT",
	"DYDX":  "DYDXUSDT",
	"JUP":   "JUPUSDT",
	"WLD":   "WLDUSDT",
	"STRK":  "STRKUSDT",
	"PYTH":  "PYTHUSDT",
	"JTO":   "JTOUSDT",
	"MEME":  "MEMEUSDT",
	"ORDI":  "ORDIUSDT",
	"SATS":  "1000SATSUSDT",
	"RATS":  "RATSUSDT",
}

// ToFeedSymbol normalizes a venue asset name to the external feed's symbol.
// Perp suffixes are stripped before the table lookup.
func ToFeedSymbol(symbol string) string {
	base := strings.ToUpper(strings.TrimSuffix(strings.ToUpper(symbol), "-PERP"))
	if mapped, ok := feedSymbols[base]; ok {
		return mapped
	}
	return base + "USDT"
}
