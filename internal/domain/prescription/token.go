package prescription

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer issues and verifies the digital signature token attached to every
// prescription. The token binds the prescription id, the signing provider,
// and the issuance time under an HMAC secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

type signatureClaims struct {
	ProviderID string `json:"provider_id"`
	jwt.RegisteredClaims
}

func (s *Signer) Sign(prescriptionID, providerID uuid.UUID, issuedAt time.Time) (string, error) {
	claims := signatureClaims{
		ProviderID: providerID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  prescriptionID.String(),
			Issuer:   "fulfillment",
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the token signature and returns the bound prescription and
// provider ids.
func (s *Signer) Verify(token string) (prescriptionID, providerID uuid.UUID, err error) {
	var claims signatureClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if !parsed.Valid {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid signature token")
	}
	prescriptionID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	providerID, err = uuid.Parse(claims.ProviderID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid provider claim: %w", err)
	}
	return prescriptionID, providerID, nil
}
