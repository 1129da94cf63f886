package testutil

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// Wallet signs personal messages the way an Ethereum wallet does. It uses
// btcec as an independent reference implementation.
type Wallet struct {
	key     *btcec.PrivateKey
	Address string
}

func NewWallet(t *testing.T, hexKey string) *Wallet {
	t.Helper()
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	pub := priv.PubKey().SerializeUncompressed()
	addr := keccak256(pub[1:])[12:]
	return &Wallet{key: priv, Address: "0x" + hex.EncodeToString(addr)}
}

func GenerateWallet(t *testing.T) *Wallet {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewWallet(t, hex.EncodeToString(priv.Serialize()))
}

// SignPersonal returns 0x-prefixed r||s||v with v in {27,28}.
func (w *Wallet) SignPersonal(message string) string {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	hash := keccak256([]byte(prefix), []byte(message))

	compact := ecdsa.SignCompact(w.key, hash, false)
	// compact is [v, r(32), s(32)] with v = 27 + recID.
	sig := make([]byte, 65)
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
