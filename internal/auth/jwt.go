package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var ErrUnsupportedJWT = errors.New("unsupported jwt")

const (
	maxJWTHeaderB64Len  = 4 * 1024
	maxJWTPayloadB64Len = 16 * 1024
	// base64url-no-pad length of a 32-byte HMAC-SHA256.
	hmacSHA256SigB64Len = 43
	maxJWTLen           = maxJWTHeaderB64Len + 1 + maxJWTPayloadB64Len + 1 + hmacSHA256SigB64Len
)

// JWTVerifier verifies HS256 tokens minted by the credential service and
// extracts the principal claims (`sub`, `email`).
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		now:    time.Now,
	}
}

type jwtClaims struct {
	Sub   string      `json:"sub"`
	Email string      `json:"email"`
	Exp   json.Number `json:"exp"`
	Iat   json.Number `json:"iat"`
	Nbf   json.Number `json:"nbf"`
}

func (v *JWTVerifier) Verify(token string) (Principal, error) {
	headerB64, payloadB64, sigB64, ok := splitJWTParts(token)
	if !ok {
		return Principal{}, ErrInvalidCredentials
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerB64)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if header.Alg != "HS256" {
		return Principal{}, fmt.Errorf("%w: alg %q", ErrUnsupportedJWT, header.Alg)
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(headerB64))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write([]byte(payloadB64))
	if !hmac.Equal(gotSig, mac.Sum(nil)) {
		return Principal{}, ErrInvalidCredentials
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}

	// The payload must be exactly one JSON object; json.Decoder would
	// otherwise accept trailing bytes after the first value.
	dec := json.NewDecoder(bytes.NewReader(payloadJSON))
	var claims jwtClaims
	if err := dec.Decode(&claims); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Principal{}, ErrInvalidCredentials
	}

	now := v.now().Unix()

	exp, err := claims.Exp.Int64()
	if err != nil || claims.Exp == "" {
		return Principal{}, ErrInvalidCredentials
	}
	if now >= exp {
		return Principal{}, ErrInvalidCredentials
	}
	if claims.Nbf != "" {
		nbf, err := claims.Nbf.Int64()
		if err != nil {
			return Principal{}, ErrInvalidCredentials
		}
		if now < nbf {
			return Principal{}, ErrInvalidCredentials
		}
	}

	if claims.Sub == "" {
		return Principal{}, ErrInvalidCredentials
	}

	return Principal{ID: claims.Sub, Email: claims.Email}, nil
}

func splitJWTParts(token string) (headerB64, payloadB64, sigB64 string, ok bool) {
	if token == "" || len(token) > maxJWTLen {
		return "", "", "", false
	}
	headerB64, rest, found := strings.Cut(token, ".")
	if !found {
		return "", "", "", false
	}
	payloadB64, sigB64, found = strings.Cut(rest, ".")
	if !found || strings.Contains(sigB64, ".") {
		return "", "", "", false
	}
	if headerB64 == "" || payloadB64 == "" || sigB64 == "" {
		return "", "", "", false
	}
	if len(headerB64) > maxJWTHeaderB64Len || len(payloadB64) > maxJWTPayloadB64Len {
		return "", "", "", false
	}
	if len(sigB64) != hmacSHA256SigB64Len {
		return "", "", "", false
	}
	return headerB64, payloadB64, sigB64, true
}
