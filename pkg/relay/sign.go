package relay

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// signPayload produces the X-Flashbots-Signature header value: the signer
// address and an EIP-191 signature over the keccak hash of the body.
func signPayload(key *ecdsa.PrivateKey, body []byte) (string, error) {
	hashed := crypto.Keccak256Hash(body)

	signature, err := crypto.Sign(accounts.TextHash([]byte(hashed.Hex())), key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)

	return fmt.Sprintf("%s:%s", address.Hex(), hexutil.Encode(signature)), nil
}
