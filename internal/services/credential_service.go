package services

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"eventpass/internal/status"
	"eventpass/models"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialService signs attendance credentials for checked-in tickets with
// the issuer's Ed25519 key. When no key is configured every signing call
// returns status.ErrNotConfigured so the HTTP layer can answer 503.
type CredentialService struct {
	store    Store
	issuerID string
	key      ed25519.PrivateKey
	pubPEM   string
}

func NewCredentialService(store Store, issuerID, privateKeyPEM string) (*CredentialService, error) {
	svc := &CredentialService{store: store, issuerID: issuerID}
	if privateKeyPEM == "" {
		return svc, nil
	}

	parsed, err := jwt.ParseEdPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("NewCredentialService: parse issuer key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("NewCredentialService: issuer key is not Ed25519")
	}
	svc.key = key

	der, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, fmt.Errorf("NewCredentialService: encode public key: %w", err)
	}
	svc.pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	return svc, nil
}

func (s *CredentialService) Configured() bool {
	return s.key != nil
}

func (s *CredentialService) IssuerID() string {
	return s.issuerID
}

// PublicKeyPEM returns the SPKI PEM encoding of the issuer's verification key
// for the well-known issuer document.
func (s *CredentialService) PublicKeyPEM() (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("PublicKeyPEM: no issuer key: %w", status.ErrNotConfigured)
	}
	return s.pubPEM, nil
}

// IssueAttendance signs a credential proving the requester attended the
// event. The requester must hold a checked-in ticket for it.
func (s *CredentialService) IssueAttendance(ctx context.Context, eventID, requesterID string) (string, error) {
	if !s.Configured() {
		return "", fmt.Errorf("IssueAttendance: no issuer key: %w", status.ErrNotConfigured)
	}

	ticket, err := s.store.FindTicketForBuyer(ctx, eventID, requesterID)
	if err != nil {
		return "", fmt.Errorf("IssueAttendance: %w", err)
	}
	if ticket == nil {
		return "", fmt.Errorf("IssueAttendance: no ticket for event: %w", status.ErrNotFound)
	}
	if !ticket.CheckedIn() {
		return "", fmt.Errorf("IssueAttendance: ticket was never checked in: %w", status.ErrUnauthorized)
	}

	event, err := s.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return "", fmt.Errorf("IssueAttendance: %w", err)
	}
	user, err := s.store.GetUser(ctx, ticket.BuyerID)
	if err != nil {
		return "", fmt.Errorf("IssueAttendance: %w", err)
	}

	payload := models.AttendancePayload{
		Subject:     user.CredentialSubject(),
		EventID:     event.ID,
		EventTitle:  event.Title,
		CheckedInAt: ticket.CheckedInAt.UTC().Format(time.RFC3339),
		Issuer:      s.issuerID,
		IssuedAt:    time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub":         payload.Subject,
		"eventId":     payload.EventID,
		"eventTitle":  payload.EventTitle,
		"checkedInAt": payload.CheckedInAt,
		"iss":         payload.Issuer,
		"iat":         payload.IssuedAt,
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("IssueAttendance: sign: %w", err)
	}
	return signed, nil
}
