package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

const (
	ed25519Flag   byte = 0x00
	privateKeyHRP      = "suiprivkey"
)

// transaction data intent: scope 0, version 0, app id 0.
var transactionIntent = []byte{0, 0, 0}

// Signer holds an ed25519 account key.
type Signer struct {
	key     ed25519.PrivateKey
	address string
}

// ParsePrivateKey accepts a bech32 "suiprivkey1..." key, a base64 key (32 bytes, or 33 with the
// scheme flag) or a hex seed.
func ParsePrivateKey(raw string) (*Signer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("private key is empty")
	}
	var seed []byte
	switch {
	case strings.HasPrefix(strings.ToLower(raw), privateKeyHRP+"1"):
		hrp, values, err := bech32.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		data, err := bech32.ConvertBits(values, 5, 8, false)
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		if hrp != privateKeyHRP {
			return nil, fmt.Errorf("unexpected key prefix %q", hrp)
		}
		if len(data) != ed25519.SeedSize+1 {
			return nil, fmt.Errorf("unexpected key length %d", len(data))
		}
		if data[0] != ed25519Flag {
			return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", data[0])
		}
		seed = data[1:]
	case isHex(raw):
		decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		seed = decoded
	default:
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode base64 key: %w", err)
		}
		if len(decoded) == ed25519.SeedSize+1 {
			if decoded[0] != ed25519Flag {
				return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", decoded[0])
			}
			decoded = decoded[1:]
		}
		seed = decoded
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed)), nil
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	pub := key.Public().(ed25519.PublicKey)
	digest := blake2b.Sum256(append([]byte{ed25519Flag}, pub...))
	return &Signer{
		key:     key,
		address: "0x" + hex.EncodeToString(digest[:]),
	}
}

func (s *Signer) Address() string {
	return s.address
}

func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign returns the serialized signature (flag || sig || pubkey, base64) over the intent
// message digest of txBytes.
func (s *Signer) Sign(txBytes []byte) string {
	digest := TransactionDigest(txBytes)
	sig := ed25519.Sign(s.key, digest[:])
	out := make([]byte, 0, 1+len(sig)+ed25519.PublicKeySize)
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, s.PublicKey()...)
	return encodeBase64(out)
}

// TransactionDigest is the blake2b-256 hash of the transaction intent message.
func TransactionDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}

func isHex(raw string) bool {
	raw = strings.TrimPrefix(raw, "0x")
	if len(raw) != ed25519.SeedSize*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return b, nil
}
