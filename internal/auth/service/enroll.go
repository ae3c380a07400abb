package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pastvault/pastvault/internal/auth/domain"
	"github.com/pastvault/pastvault/internal/auth/store"
	"github.com/pastvault/pastvault/pkg/authapi"
	"github.com/pastvault/pastvault/pkg/cryptox"
	"github.com/pastvault/pastvault/pkg/idx"
	"github.com/pastvault/pastvault/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const backupCodeCount = 10

// Registration ceremonies share the mfa_challenges table with login
// ceremonies but under a distinct method tag, so a pending login challenge
// can never complete a registration or vice versa.
const registrationChallengeMethod = "webauthn-register"

// MFAService handles factor enrollment, activation and administrative reset.
type MFAService struct {
	Store    store.Store
	Issuer   string // TOTP issuer name shown in authenticator apps
	Verifier assertionVerifier
}

// EnrollTOTP generates a TOTP secret for the user and returns the
// provisioning URL. MFA is not active until ActivateTOTP confirms a live code.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID string) (authapi.TOTPEnrollResponse, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return authapi.TOTPEnrollResponse{}, err
	}
	if user.MFAEnabled {
		return authapi.TOTPEnrollResponse{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return authapi.TOTPEnrollResponse{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Users().SetTOTPSecret(ctx, userID, key.Secret()); err != nil {
		return authapi.TOTPEnrollResponse{}, fmt.Errorf("store totp secret: %w", err)
	}

	return authapi.TOTPEnrollResponse{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
	}, nil
}

// ActivateTOTP confirms enrollment with a live code, switches the account's
// active factor to TOTP and mints a fresh set of backup codes. The plaintext
// codes are returned exactly once.
func (s *MFAService) ActivateTOTP(ctx context.Context, userID string, code string) ([]string, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return nil, ErrMFANotEnrolled
	}

	valid, err := totp.ValidateCustom(code, *user.TOTPSecret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("validate totp: %w", err)
	}
	if !valid {
		return nil, ErrInvalidMFACode
	}

	plaintext := make([]string, 0, backupCodeCount)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().EnableMFA(ctx, userID, authapi.MFAMethodTOTP); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return err
		}
		for i := 0; i < backupCodeCount; i++ {
			c, err := cryptox.GenerateBackupCode()
			if err != nil {
				return err
			}
			hash, err := cryptox.HashPassword(c)
			if err != nil {
				return err
			}
			err = tx.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
				ID:       idx.New().String(),
				UserID:   userID,
				CodeHash: hash,
			})
			if err != nil {
				return err
			}
			plaintext = append(plaintext, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("activate totp: %w", err)
	}

	slogx.FromContext(ctx).Info("totp activated", "user_id", userID)
	return plaintext, nil
}

// BeginRegisterWebAuthn starts a credential creation ceremony. Already
// registered authenticators are excluded so the browser refuses them up
// front instead of failing at attestation time.
func (s *MFAService) BeginRegisterWebAuthn(ctx context.Context, userID string) (json.RawMessage, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	wu, err := loadWebauthnUser(ctx, s.Store, user)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(wu.creds))
	for _, c := range wu.creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
		})
	}

	creation, session, err := s.Verifier.BeginRegistration(wu,
		webauthn.WithExclusions(exclusions),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	err = s.Store.MFAChallenges().UpsertMFAChallenge(ctx, domain.MFAChallenge{
		UserID:    userID,
		Method:    registrationChallengeMethod,
		Payload:   payload,
		ExpiresAt: time.Now().Add(domain.ChallengeTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	options, err := json.Marshal(creation)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	return options, nil
}

// FinishRegisterWebAuthn validates the attestation, persists the credential
// and switches the account's active factor to webauthn.
func (s *MFAService) FinishRegisterWebAuthn(ctx context.Context, userID string, attestation json.RawMessage, label string) (authapi.Credential, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return authapi.Credential{}, err
	}

	challenge, err := s.Store.MFAChallenges().GetMFAChallenge(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authapi.Credential{}, ErrChallengeExpired
		}
		return authapi.Credential{}, fmt.Errorf("load challenge: %w", err)
	}
	if challenge.Method != registrationChallengeMethod {
		return authapi.Credential{}, ErrChallengeExpired
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.Payload, &session); err != nil {
		return authapi.Credential{}, fmt.Errorf("unmarshal session: %w", err)
	}

	parsed, err := parseAttestation(attestation)
	if err != nil {
		return authapi.Credential{}, ErrInvalidRequest
	}

	wu, err := loadWebauthnUser(ctx, s.Store, user)
	if err != nil {
		return authapi.Credential{}, err
	}

	cred, err := s.Verifier.CreateCredential(wu, session, parsed)

	if delErr := s.Store.MFAChallenges().DeleteMFAChallenge(ctx, userID); delErr != nil {
		slogx.FromContext(ctx).Warn("failed to delete registration challenge", "error", delErr)
	}

	if err != nil {
		return authapi.Credential{}, ErrInvalidRequest
	}

	record := fromWebauthnCredential(userID, label, cred)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Credentials().CreateCredential(ctx, record); err != nil {
			return err
		}
		return tx.Users().EnableMFA(ctx, userID, authapi.MFAMethodWebAuthn)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return authapi.Credential{}, ErrDeviceAlreadyRegistered
		}
		return authapi.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	slogx.FromContext(ctx).Info("webauthn credential registered",
		"user_id", userID, "credential_id", record.ID)

	return authapi.Credential{
		ID:        record.ID,
		Label:     record.Label,
		CreatedAt: record.CreatedAt,
	}, nil
}

// ListCredentials returns the user's registered credentials for display.
func (s *MFAService) ListCredentials(ctx context.Context, userID string) ([]authapi.Credential, error) {
	creds, err := s.Store.Credentials().ListUserCredentials(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	out := make([]authapi.Credential, 0, len(creds))
	for _, c := range creds {
		out = append(out, authapi.Credential{ID: c.ID, Label: c.Label, CreatedAt: c.CreatedAt})
	}
	return out, nil
}

// ReinitMFA wipes every second-factor artifact for the user and flags the
// account for fresh MFA setup. Old credentials and backup codes do not
// survive a reset; a locked-out user re-enrolls from nothing.
func (s *MFAService) ReinitMFA(ctx context.Context, userID string) error {
	if _, err := s.getUser(ctx, userID); err != nil {
		return err
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Credentials().DeleteUserCredentials(ctx, userID); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return err
		}
		if err := tx.MFAChallenges().DeleteMFAChallenge(ctx, userID); err != nil {
			return err
		}
		return tx.Users().DisableMFA(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("reinit mfa: %w", err)
	}

	slogx.FromContext(ctx).Info("mfa reinitialised", "user_id", userID)
	return nil
}

func (s *MFAService) getUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}
