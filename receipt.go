package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ReceiptClaims is the decoded payload of a signed admission receipt: proof
// for the downstream factor verifier that the attempt passed admission, which
// classification it received, and how long the proof is valid.
type ReceiptClaims struct {
	jwt.RegisteredClaims
	RiskScore int    `json:"risk_score"`
	RiskLevel string `json:"risk_level"`
}

// receiptIssuer signs and verifies short-lived HS256 receipts.
type receiptIssuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	clock  Clock
}

func newReceiptIssuer(cfg ReceiptConfig, clock Clock) *receiptIssuer {
	if len(cfg.SigningKey) == 0 {
		return nil
	}
	return &receiptIssuer{
		key:    cfg.SigningKey,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		clock:  clock,
	}
}

func (r *receiptIssuer) issue(userID string, result RiskResult) (string, error) {
	now := time.UnixMilli(r.clock.NowMs())

	claims := ReceiptClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
		RiskScore: result.Score,
		RiskLevel: string(result.Level),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.key)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

func (r *receiptIssuer) verify(token string) (*ReceiptClaims, error) {
	claims := &ReceiptClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(r.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReceiptInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrReceiptInvalid
	}
	return claims, nil
}

// AdmissionReceipt signs a short-lived receipt binding the user, score, and
// classification of an already-scored attempt. High-risk results are refused.
// Requires a signing key in [ReceiptConfig].
func (g *Gate) AdmissionReceipt(userID string, result RiskResult) (string, error) {
	if g == nil || g.receipts == nil {
		return "", ErrReceiptsDisabled
	}
	if userID == "" {
		return "", errors.New("empty user id")
	}
	if !result.Legitimate {
		return "", ErrReceiptRefused
	}

	signed, err := g.receipts.issue(userID, result)
	if err != nil {
		return "", err
	}
	g.metricInc(MetricReceiptIssued)
	return signed, nil
}

// VerifyReceipt validates a receipt's signature, issuer, and expiry and
// returns its claims.
func (g *Gate) VerifyReceipt(token string) (*ReceiptClaims, error) {
	if g == nil || g.receipts == nil {
		return nil, ErrReceiptsDisabled
	}
	return g.receipts.verify(token)
}
