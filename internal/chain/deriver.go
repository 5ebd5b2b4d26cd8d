package chain

import (
	"crypto/ecdsa"
	"errors"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// KeyDeriver derives the relay wallet key from an extended private key.
type KeyDeriver struct {
	XPrv string
}

// Derive expects XPrv at path m/44'/60'/0'/0 and derives child index i.
func (d KeyDeriver) Derive(index uint32) (*ecdsa.PrivateKey, common.Address, error) {
	if d.XPrv == "" {
		return nil, common.Address{}, errors.New("xprv is not configured")
	}

	key, err := hdkeychain.NewKeyFromString(d.XPrv)
	if err != nil {
		return nil, common.Address{}, err
	}
	if !key.IsPrivate() {
		return nil, common.Address{}, errors.New("extended key is not private")
	}
	child, err := key.Derive(index)
	if err != nil {
		return nil, common.Address{}, err
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, common.Address{}, err
	}
	ecdsaKey, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return nil, common.Address{}, err
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, common.Address{}, err
	}
	return ecdsaKey, AddressFromPubKey(pub.SerializeUncompressed()), nil
}

// AddressFromPubKey is keccak256(X||Y)[12:] of a 65-byte uncompressed public key.
func AddressFromPubKey(uncompressed []byte) common.Address {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(uncompressed[1:])
	sum := h.Sum(nil)
	return common.BytesToAddress(sum[12:])
}
