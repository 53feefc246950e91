package chain

// Supported chain ids. Anything else suppresses contract calls entirely.
const (
	MainnetChainID int64 = 50
	TestnetChainID int64 = 51
)

var chainNames = map[int64]string{
	MainnetChainID: "mainnet",
	TestnetChainID: "testnet",
}

func IsSupportedChain(chainID int64) bool {
	_, ok := chainNames[chainID]
	return ok
}

func ChainName(chainID int64) string {
	if name, ok := chainNames[chainID]; ok {
		return name
	}
	return "unsupported"
}
