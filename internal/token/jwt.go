// Package token issues and validates the two JWT kinds the service uses:
// bearer access tokens for authenticated requests and short-lived receipt
// tokens handed out when an account deletion starts.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"medihub/internal/platform/middleware"
	"medihub/pkg/domain"
	dErrors "medihub/pkg/domain-errors"
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ReceiptClaims authorize retrieval of one deletion receipt. The subject is
// the purged patient; the token outlives the deleted account's sessions.
type ReceiptClaims struct {
	PatientID string `json:"patient_id"`
	JobID     string `json:"job_id"`
	jwt.RegisteredClaims
}

const (
	audienceAPI     = "medihub-api"
	audienceReceipt = "medihub-deletion-receipt"
)

// Service signs and validates tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// GenerateAccessToken issues a bearer token for an authenticated user.
func (s *Service) GenerateAccessToken(userID domain.UserID, role domain.Role, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID.String(),
		Role:   role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{audienceAPI},
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// ValidateAccessToken implements the auth middleware's validator.
func (s *Service) ValidateAccessToken(tokenString string) (*middleware.AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(tokenString, &claims, audienceAPI); err != nil {
		return nil, err
	}
	return &middleware.AccessClaims{
		UserID: claims.UserID,
		Role:   claims.Role,
		JTI:    claims.ID,
	}, nil
}

// GenerateReceiptToken issues the token returned by deletion start. It is
// the only credential that can later fetch the receipt: the account it
// belonged to no longer exists.
func (s *Service) GenerateReceiptToken(patientID domain.PatientID, jobID domain.JobID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ReceiptClaims{
		PatientID: patientID.String(),
		JobID:     jobID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{audienceReceipt},
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// ValidateReceiptToken checks a receipt token and returns the patient and
// job it authorizes.
func (s *Service) ValidateReceiptToken(tokenString string) (domain.PatientID, domain.JobID, error) {
	var claims ReceiptClaims
	if err := s.parse(tokenString, &claims, audienceReceipt); err != nil {
		return domain.PatientID{}, domain.JobID{}, err
	}
	patientID, err := domain.ParsePatientID(claims.PatientID)
	if err != nil {
		return domain.PatientID{}, domain.JobID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid receipt token subject")
	}
	jobID, err := domain.ParseJobID(claims.JobID)
	if err != nil {
		return domain.PatientID{}, domain.JobID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid receipt token job")
	}
	return patientID, jobID, nil
}

func (s *Service) parse(tokenString string, claims jwt.Claims, audience string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return nil
}
