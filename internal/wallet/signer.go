// Package wallet holds the custodial signing key and serializes nonce use.
// The private key never leaves this package.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned for keys that are not 32-byte hex secp256k1 scalars.
// The offending value is never included in the message.
var ErrInvalidKey = errors.New("invalid private key")

// Signer signs legacy EIP-155 transactions for a single account.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

// NewSigner parses a hex private key (0x prefix optional) for chainID.
func NewSigner(hexKey string, chainID *big.Int) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, ErrInvalidKey
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.NewEIP155Signer(chainID),
	}, nil
}

// Address returns the account derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer is bound to.
func (s *Signer) ChainID() *big.Int {
	return s.signer.ChainID()
}

// SignTx signs tx with replay protection for the configured chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// String keeps the key out of %v and %+v output.
func (s *Signer) String() string {
	return fmt.Sprintf("Signer(%s)", s.address.Hex())
}

// GoString keeps the key out of %#v output.
func (s *Signer) GoString() string {
	return s.String()
}
