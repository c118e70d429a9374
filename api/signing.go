package api

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/equipment-registry/interfaces"
)

// Header constants for caller attestation.
const (
	// CallerHeader carries the hex address the request is made on behalf of.
	CallerHeader = "X-Registry-Caller"

	// NonceHeader carries the caller's decimal request nonce. Each caller's
	// nonces start at 0 and every signed request uses the next one.
	NonceHeader = "X-Registry-Nonce"

	// SignatureHeader carries a hex 65-byte [R || S || V] secp256k1 signature
	// over SigningHash of the request.
	SignatureHeader = "X-Registry-Signature"
)

var (
	ErrMissingSignature = errors.New("missing caller signature")
	ErrInvalidSignature = errors.New("invalid caller signature")
	ErrCallerMismatch   = errors.New("signature does not match caller")
)

// SigningHash is the digest a caller signs: the personal-message hash of
// keccak256(method || " " || path || "\n" || nonce || "\n" || body), with the
// nonce in decimal.
func SigningHash(method, path string, nonce uint64, body []byte) []byte {
	nonceStr := strconv.FormatUint(nonce, 10)
	msg := make([]byte, 0, len(method)+len(path)+len(nonceStr)+len(body)+3)
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	msg = append(msg, nonceStr...)
	msg = append(msg, '\n')
	msg = append(msg, body...)
	return accounts.TextHash(crypto.Keccak256(msg))
}

// SignRequest sets the caller, nonce and signature headers on req. body must
// be the exact bytes sent as the request body.
func SignRequest(req *http.Request, body []byte, nonce uint64, key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(SigningHash(req.Method, req.URL.Path, nonce, body), key)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Set(CallerHeader, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(NonceHeader, strconv.FormatUint(nonce, 10))
	req.Header.Set(SignatureHeader, hexutil.Encode(sig))
	return nil
}

// ParseNonce reads the value of NonceHeader.
func ParseNonce(nonceStr string) (uint64, error) {
	if nonceStr == "" {
		return 0, ErrMissingSignature
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed nonce", ErrInvalidSignature)
	}
	return nonce, nil
}

// RecoverCaller verifies the attestation headers of a request and returns
// the authenticated caller. Whether nonce is the caller's next one is checked
// by the host when the request runs.
func RecoverCaller(method, path string, nonce uint64, body []byte, callerHex, sigHex string) (interfaces.Identity, error) {
	if callerHex == "" || sigHex == "" {
		return interfaces.Identity{}, ErrMissingSignature
	}
	claimed, err := interfaces.NewIdentityFromHex(callerHex)
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return interfaces.Identity{}, fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	// Accept wallet-style V of 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(SigningHash(method, path, nonce, body), sig)
	if err != nil {
		return interfaces.Identity{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != claimed {
		return interfaces.Identity{}, fmt.Errorf("%w: recovered %s", ErrCallerMismatch, signer.Hex())
	}
	return claimed, nil
}
