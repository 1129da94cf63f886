package domain

import (
	"strings"
	"time"
)

type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderWeb3   AuthProvider = "WEB3"
	ProviderGoogle AuthProvider = "GOOGLE"
	ProviderGitHub AuthProvider = "GITHUB"
	ProviderX      AuthProvider = "X"
)

func (p AuthProvider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderWeb3, ProviderGoogle, ProviderGitHub, ProviderX:
		return true
	}
	return false
}

// Credential is the provider-specific payload of a LoginMethod. The set of
// implementations is closed: LocalCredential, WalletCredential, OAuthCredential.
type Credential interface {
	Provider() AuthProvider
	// ProviderUserID is the identifier that must be unique per provider.
	ProviderUserID() string
	sealed()
}

type LocalCredential struct {
	Username     string
	PasswordHash string
}

func (LocalCredential) Provider() AuthProvider   { return ProviderLocal }
func (c LocalCredential) ProviderUserID() string { return strings.ToLower(c.Username) }
func (LocalCredential) sealed()                  {}

type WalletCredential struct {
	// Address is stored lowercase with the 0x prefix.
	Address string
}

func (WalletCredential) Provider() AuthProvider   { return ProviderWeb3 }
func (c WalletCredential) ProviderUserID() string { return strings.ToLower(c.Address) }
func (WalletCredential) sealed()                  {}

type OAuthCredential struct {
	Kind    AuthProvider
	Subject string
}

func (c OAuthCredential) Provider() AuthProvider { return c.Kind }
func (c OAuthCredential) ProviderUserID() string { return c.Subject }
func (OAuthCredential) sealed()                  {}

// LoginMethod links a User to one way of authenticating. It refers to its
// owner by key only.
type LoginMethod struct {
	ID         LoginMethodID
	UserID     UserID
	Credential Credential
	IsPrimary  bool
	IsVerified bool
	LinkedAt   time.Time
	LastUsedAt *time.Time
}

func (m LoginMethod) Provider() AuthProvider {
	if m.Credential == nil {
		return ""
	}
	return m.Credential.Provider()
}
