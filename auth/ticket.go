package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"transfer-lab/errors"
)

// TicketTTL bounds the window between exporting an authorization and
// importing it on the target data-center. A setup that takes longer than
// this has already failed.
const TicketTTL = 2 * time.Minute

// TicketClaims is the payload of an exported authorization.
type TicketClaims struct {
	Session  string `json:"session"`
	TargetDC int    `json:"target_dc"`
	jwt.RegisteredClaims
}

// IssueTicket signs an authorization allowing sessionID to authenticate one
// fresh connection against targetDC.
func IssueTicket(secret []byte, sessionID string, targetDC int) (string, error) {
	now := time.Now()

	claims := &TicketClaims{
		Session:  sessionID,
		TargetDC: targetDC,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TicketTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "transfer-lab",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyTicket checks signature and expiry and refuses tickets minted for a
// different data-center, so an exported authorization cannot be replayed
// elsewhere.
func VerifyTicket(secret []byte, tokenString string, dc int) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrBadTicket, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, errors.ErrBadTicket
	}
	if claims.TargetDC != dc {
		return nil, fmt.Errorf("%w: minted for dc %d", errors.ErrBadTicket, claims.TargetDC)
	}
	return claims, nil
}
