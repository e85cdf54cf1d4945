package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/manoloenriquez/vault7641/internal/traits"
)

// Purpose binds a mint pass to one endpoint. The verifier does not check
// it; the delivery layer compares it against the endpoint's expected value.
type Purpose string

const (
	PurposeImage  Purpose = "image"
	PurposeTraits Purpose = "traits"
)

var (
	ErrMalformedToken    = errors.New("malformed token")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrExpired           = errors.New("token expired")
)

// Payload is the authorization claim for one generation request. It is
// produced by the minting flow, carried verbatim as the signing input,
// and never persisted by the verifier.
type Payload struct {
	Purpose    Purpose        `json:"purpose"`
	InstanceID uint64         `json:"instance_id"`
	Guild      traits.Guild   `json:"guild"`
	Gender     traits.Gender  `json:"gender"`
	Seed       uint64         `json:"seed"`
	Subject    common.Address `json:"subject"`
	IssuedAt   int64          `json:"issued_at"`
	ExpiresAt  int64          `json:"expires_at"`
}

// Sign encodes the payload and produces its transport form: the token is
// base64url over the exact payload bytes, the signature is hex over
// HMAC-SHA256 of those same bytes. Any bit change in the payload
// invalidates the signature.
func Sign(p Payload, secret []byte) (token, signature string, err error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("marshal payload: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(raw)
	return base64.RawURLEncoding.EncodeToString(raw), hex.EncodeToString(mac.Sum(nil)), nil
}

// Verifier validates mint passes. Stateless: a pure function of
// (token, signature, secret, clock). Field-level checks against the
// request context (purpose, instance binding) belong to the caller.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// NewVerifierAt builds a verifier with a fixed clock source.
func NewVerifierAt(secret []byte, now func() time.Time) *Verifier {
	return &Verifier{secret: secret, now: now}
}

// Verify decodes and authenticates a mint pass.
//
// Order matters: the signature is checked over the raw payload bytes
// before those bytes are trusted enough to parse, and the comparison is
// constant-time (hmac.Equal).
func (v *Verifier) Verify(token, signature string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: token encoding", ErrMalformedToken)
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: signature encoding", ErrMalformedToken)
	}
	if len(sig) != sha256.Size {
		return Payload{}, fmt.Errorf("%w: signature length %d", ErrMalformedToken, len(sig))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(raw)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Payload{}, ErrSignatureMismatch
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: payload JSON", ErrMalformedToken)
	}

	if p.ExpiresAt <= v.now().Unix() {
		return Payload{}, ErrExpired
	}
	return p, nil
}
