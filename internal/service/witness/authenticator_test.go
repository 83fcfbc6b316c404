package witness

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/pkg/clients/directory"
)

type stubDirectory struct {
	creds map[string]directory.Credential
	err   error
}

func (s *stubDirectory) GetSecret(_ context.Context, userID string) (directory.Credential, error) {
	if s.err != nil {
		return directory.Credential{}, s.err
	}
	cred, ok := s.creds[userID]
	if !ok {
		return directory.Credential{}, directory.ErrUserNotFound
	}
	return cred, nil
}

func (s *stubDirectory) ListActive(_ context.Context) ([]models.Actor, error) {
	return nil, nil
}

func hashPin(t *testing.T, pin string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	return string(hash)
}

func TestVerify_HashedPin(t *testing.T) {
	dir := &stubDirectory{creds: map[string]directory.Credential{
		"w1": {UserID: "w1", DisplayName: "Jordan Reeves", PINHash: hashPin(t, "4321")},
	}}
	auth := NewAuthenticator(dir, time.Second, nil)

	assertion, err := auth.Verify(context.Background(), "w1", "4321")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if assertion.WitnessID != "w1" || assertion.Name != "Jordan Reeves" {
		t.Fatalf("unexpected assertion identity: %+v", assertion)
	}
	if assertion.VerifiedAt.IsZero() {
		t.Fatalf("expected verification timestamp")
	}
}

func TestVerify_HashedPinWrong(t *testing.T) {
	dir := &stubDirectory{creds: map[string]directory.Credential{
		"w1": {UserID: "w1", DisplayName: "Jordan Reeves", PINHash: hashPin(t, "4321")},
	}}
	auth := NewAuthenticator(dir, time.Second, nil)

	if _, err := auth.Verify(context.Background(), "w1", "0000"); !errors.Is(err, ErrIncorrectPin) {
		t.Fatalf("expected ErrIncorrectPin, got %v", err)
	}
}

func TestVerify_LegacyPlaintextFallback(t *testing.T) {
	dir := &stubDirectory{creds: map[string]directory.Credential{
		"w2": {UserID: "w2", DisplayName: "Sam Okafor", LegacyPIN: "1111"},
	}}
	auth := NewAuthenticator(dir, time.Second, nil)

	assertion, err := auth.Verify(context.Background(), "w2", "1111")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if assertion.Name != "Sam Okafor" {
		t.Fatalf("unexpected name %q", assertion.Name)
	}

	if _, err := auth.Verify(context.Background(), "w2", "2222"); !errors.Is(err, ErrIncorrectPin) {
		t.Fatalf("expected ErrIncorrectPin, got %v", err)
	}
}

func TestVerify_HashPreferredOverLegacy(t *testing.T) {
	// A migrated record may still carry the stale plaintext field. Only the
	// hash may decide.
	dir := &stubDirectory{creds: map[string]directory.Credential{
		"w3": {UserID: "w3", DisplayName: "Alex Price", PINHash: hashPin(t, "9999"), LegacyPIN: "1234"},
	}}
	auth := NewAuthenticator(dir, time.Second, nil)

	if _, err := auth.Verify(context.Background(), "w3", "1234"); !errors.Is(err, ErrIncorrectPin) {
		t.Fatalf("expected legacy pin to be ignored when hash present, got %v", err)
	}
	if _, err := auth.Verify(context.Background(), "w3", "9999"); err != nil {
		t.Fatalf("Verify with hash pin: %v", err)
	}
}

func TestVerify_WitnessNotFound(t *testing.T) {
	auth := NewAuthenticator(&stubDirectory{creds: map[string]directory.Credential{}}, time.Second, nil)

	if _, err := auth.Verify(context.Background(), "ghost", "1234"); !errors.Is(err, ErrWitnessNotFound) {
		t.Fatalf("expected ErrWitnessNotFound, got %v", err)
	}
}

func TestVerify_NoCredential(t *testing.T) {
	dir := &stubDirectory{creds: map[string]directory.Credential{
		"w4": {UserID: "w4", DisplayName: "Robin Shaw"},
	}}
	auth := NewAuthenticator(dir, time.Second, nil)

	if _, err := auth.Verify(context.Background(), "w4", "1234"); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestVerify_DirectoryError(t *testing.T) {
	auth := NewAuthenticator(&stubDirectory{err: errors.New("directory down")}, time.Second, nil)

	_, err := auth.Verify(context.Background(), "w1", "1234")
	if err == nil || errors.Is(err, ErrIncorrectPin) || errors.Is(err, ErrWitnessNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
