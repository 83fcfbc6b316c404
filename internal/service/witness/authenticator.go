// Package witness verifies a claimed second person against their PIN held
// by the staff directory and issues a single-use assertion on success.
package witness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/pkg/clients/directory"
)

// ErrWitnessNotFound indicates no directory record exists for the claimed witness.
var ErrWitnessNotFound = errors.New("witness not found")

// ErrIncorrectPin indicates the entered PIN did not match. Recoverable: the
// operator may retry entry without losing the rest of the proposal.
var ErrIncorrectPin = errors.New("incorrect witness pin")

// ErrNoCredential indicates the witness record carries neither a PIN hash
// nor a legacy plaintext PIN, so verification is impossible.
var ErrNoCredential = errors.New("witness has no enrolled pin")

// Authenticator verifies witness identities.
type Authenticator struct {
	dir     directory.Client
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewAuthenticator constructs a witness authenticator. The timeout bounds
// the directory round-trip so a verification never hangs a transaction.
func NewAuthenticator(dir directory.Client, timeout time.Duration, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Authenticator{
		dir:     dir,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Verify checks the entered PIN against the witness's current secret. The
// bcrypt hash is tried first; plaintext comparison exists only for records
// not yet migrated and is logged as deprecated. A successful verification
// yields a single-use assertion bound to the witness's identity. The
// directory is only read, never written.
func (a *Authenticator) Verify(ctx context.Context, witnessID, enteredPin string) (*models.WitnessAssertion, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cred, err := a.dir.GetSecret(ctx, witnessID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return nil, ErrWitnessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("witness credential lookup: %w", err)
	}

	switch {
	case cred.PINHash != "":
		if err := bcrypt.CompareHashAndPassword([]byte(cred.PINHash), []byte(enteredPin)); err != nil {
			return nil, ErrIncorrectPin
		}
	case cred.LegacyPIN != "":
		a.logger.Warn("witness record still uses a plaintext pin, re-enrollment required",
			zap.String("witness_id", witnessID))
		if cred.LegacyPIN != enteredPin {
			return nil, ErrIncorrectPin
		}
	default:
		return nil, ErrNoCredential
	}

	verifiedAt := a.now().UTC()
	a.logger.Info("witness verified",
		zap.String("witness_id", witnessID),
		zap.String("witness_name", cred.DisplayName))

	return models.NewWitnessAssertion(witnessID, cred.DisplayName, verifiedAt), nil
}
