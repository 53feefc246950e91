package http

type ApproveRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type BetRequest struct {
	Side   string `json:"side" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type AccountRequest struct {
	Account      string `json:"account" binding:"required"`
	ChainID      int64  `json:"chain_id"`
	ProviderType string `json:"provider_type"`
}
