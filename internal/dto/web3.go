package dto

type Web3NonceResponse struct {
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
}

type Web3LoginRequest struct {
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	Nonce         string `json:"nonce"`
	ChainID       *int   `json:"chainId,omitempty"`
}

type Web3AuthResponse struct {
	AccessToken   string `json:"accessToken"`
	RefreshToken  string `json:"refreshToken"`
	TokenType     string `json:"tokenType"`
	ExpiresIn     int64  `json:"expiresIn"`
	WalletAddress string `json:"walletAddress"`
	UserID        string `json:"userId"`
	IsNewUser     bool   `json:"isNewUser"`
}

type WalletStatusResponse struct {
	WalletAddress string `json:"walletAddress"`
	IsBound       bool   `json:"isBound"`
}
