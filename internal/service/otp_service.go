package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/durantgrace/phoneotp/internal/apperror"
	"github.com/durantgrace/phoneotp/internal/config"
	"github.com/durantgrace/phoneotp/internal/models"
	"github.com/durantgrace/phoneotp/internal/phone"
	"github.com/durantgrace/phoneotp/internal/repository"
	"github.com/durantgrace/phoneotp/internal/sms"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeKeyPrefix     = "otp:code:"
	rateKeyPrefix     = "otp:rate:"
	attemptsKeyPrefix = "otp:attempts:"
	verifiedKeyPrefix = "otp:verified:"

	codeMin   = 100000
	codeRange = 900000
)

func codeKey(p string) string     { return codeKeyPrefix + p }
func rateKey(p string) string     { return rateKeyPrefix + p }
func attemptsKey(p string) string { return attemptsKeyPrefix + p }
func verifiedKey(p string) string { return verifiedKeyPrefix + p }

// OTPService runs the issue/verify lifecycle. It holds no counter state of its
// own; rate and attempt counters live in the store.
type OTPService struct {
	store       repository.Store
	sender      sms.Sender
	tokens      *JWTService
	cfg         *config.OTPConfig
	template    string
	senderName  string
	sendTimeout time.Duration
	logger      *logrus.Logger
	generate    func() (string, error)
}

// NewOTPService wires the lifecycle. tokens may be nil, in which case
// successful verifications carry no verification token.
func NewOTPService(
	store repository.Store,
	sender sms.Sender,
	tokens *JWTService,
	cfg *config.OTPConfig,
	smsCfg *config.SMSConfig,
	logger *logrus.Logger,
) (*OTPService, error) {
	if cfg.CodeSource == config.CodeSourceVendor && !sms.CanIssueCodes(sender) {
		return nil, fmt.Errorf("code source %q needs an SMS provider that generates codes", cfg.CodeSource)
	}

	if cfg.CodeSource == config.CodeSourceVendor && cfg.CodeMatch == config.CodeMatchStripLeadingZeros {
		logger.WithFields(logrus.Fields{
			"code_source": cfg.CodeSource,
			"code_match":  cfg.CodeMatch,
		}).Warn("Vendor codes starting with 0 cannot be verified under strip-leading-zeros, set OTP_CODE_MATCH=exact")
	}

	return &OTPService{
		store:       store,
		sender:      sender,
		tokens:      tokens,
		cfg:         cfg,
		template:    smsCfg.Template,
		senderName:  smsCfg.SenderName,
		sendTimeout: smsCfg.SendTimeout,
		logger:      logger,
		generate:    generateCode,
	}, nil
}

// RequestCode normalizes the phone, enforces the issuance limit, delivers a
// code and records it. Nothing is written unless delivery succeeds.
func (s *OTPService) RequestCode(ctx context.Context, rawPhone string) (*models.IssueResult, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, invalidPhone(err, phoneNumber)
	}

	issued, err := s.readCounter(ctx, rateKey(phoneNumber))
	if err != nil {
		return nil, err
	}
	if issued >= int64(s.cfg.MaxIssuances) {
		return nil, s.rateLimited(ctx, phoneNumber)
	}

	var code string
	if s.cfg.CodeSource == config.CodeSourceLocal {
		code, err = s.generate()
		if err != nil {
			s.logger.WithError(err).Error("Failed to generate OTP")
			return nil, apperror.Wrap(err, apperror.KindInternal, "failed to generate code")
		}
	}

	sendCtx, cancel := withTimeout(ctx, s.sendTimeout)
	receipt, err := s.sender.Send(sendCtx, sms.Message{
		To:         phoneNumber,
		Template:   s.template,
		Code:       code,
		SenderName: s.senderName,
	})
	cancel()
	if err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Error("Failed to deliver OTP")
		return nil, apperror.Wrap(err, apperror.KindDeliveryFailure, "failed to send OTP")
	}

	code = strings.TrimSpace(receipt.Code)
	if code == "" {
		return nil, apperror.Wrap(sms.ErrNoCode, apperror.KindDeliveryFailure, "SMS provider returned no code")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.HashCost)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash OTP")
		return nil, apperror.Wrap(err, apperror.KindInternal, "failed to hash code")
	}

	if err := s.record(ctx, phoneNumber, string(hash)); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"phone":       phoneNumber,
			"delivery_id": receipt.ID,
		}).Error("OTP delivered but not recorded")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"phone":       phoneNumber,
		"delivery_id": receipt.ID,
		"code_source": s.cfg.CodeSource,
	}).Info("OTP issued")

	return &models.IssueResult{
		Accepted:       true,
		CorrectedPhone: phoneNumber,
		DisplayPhone:   phone.Display(phoneNumber),
		DeliveryID:     receipt.ID,
		ExpiresIn:      int64(s.cfg.Expiry.Seconds()),
	}, nil
}

// record stores the code hash and charges the issuance budget.
func (s *OTPService) record(ctx context.Context, phoneNumber, hash string) error {
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Set(ctx, codeKey(phoneNumber), hash, s.cfg.Expiry)
	}); err != nil {
		return err
	}

	// a fresh code gets a fresh attempt budget
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, attemptsKey(phoneNumber))
	}); err != nil {
		return err
	}

	_, err := s.incrWithWindow(ctx, rateKey(phoneNumber), s.cfg.IssueWindow)
	return err
}

// VerifyCode checks a submitted code against the active record. A match
// consumes the record; each mismatch spends one attempt.
func (s *OTPService) VerifyCode(ctx context.Context, rawPhone, submittedCode string) (*models.VerifyResult, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, invalidPhone(err, phoneNumber)
	}

	var hash string
	err = s.call(ctx, func(ctx context.Context) error {
		var getErr error
		hash, getErr = s.store.Get(ctx, codeKey(phoneNumber))
		return getErr
	})
	if errors.Is(err, repository.ErrKeyNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "OTP expired or was never requested")
	}
	if err != nil {
		return nil, err
	}

	if s.matches(hash, submittedCode) {
		return s.consume(ctx, phoneNumber)
	}

	failures, err := s.incrWithWindow(ctx, attemptsKey(phoneNumber), s.cfg.AttemptWindow)
	if err != nil {
		return nil, err
	}

	if failures >= int64(s.cfg.MaxAttempts) {
		if err := s.call(ctx, func(ctx context.Context) error {
			return s.store.Delete(ctx, codeKey(phoneNumber), attemptsKey(phoneNumber))
		}); err != nil {
			return nil, err
		}
		s.logger.WithField("phone", phoneNumber).Warn("OTP attempts exhausted")
		return nil, apperror.New(apperror.KindAttemptsExceeded, "too many failed attempts, request a new OTP")
	}

	return nil, apperror.New(apperror.KindInvalidCode, "invalid OTP").
		WithDetail("attempts_left", int64(s.cfg.MaxAttempts)-failures)
}

// CheckVerified reports whether the phone verified a code recently.
func (s *OTPService) CheckVerified(ctx context.Context, rawPhone string) (*models.VerifiedStatus, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, invalidPhone(err, phoneNumber)
	}

	err = s.call(ctx, func(ctx context.Context) error {
		_, getErr := s.store.Get(ctx, verifiedKey(phoneNumber))
		return getErr
	})
	if errors.Is(err, repository.ErrKeyNotFound) {
		return &models.VerifiedStatus{Phone: phoneNumber, Verified: false}, nil
	}
	if err != nil {
		return nil, err
	}

	return &models.VerifiedStatus{Phone: phoneNumber, Verified: true}, nil
}

func (s *OTPService) consume(ctx context.Context, phoneNumber string) (*models.VerifyResult, error) {
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, codeKey(phoneNumber), attemptsKey(phoneNumber))
	}); err != nil {
		return nil, err
	}

	if s.cfg.MarkVerified {
		if err := s.call(ctx, func(ctx context.Context) error {
			return s.store.Set(ctx, verifiedKey(phoneNumber), "1", s.cfg.VerifiedTTL)
		}); err != nil {
			return nil, err
		}
	}

	result := &models.VerifyResult{Verified: true, Phone: phoneNumber}
	if s.tokens != nil {
		token, err := s.tokens.IssueVerificationToken(phoneNumber)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.KindInternal, "failed to issue verification token")
		}
		result.VerificationToken = token.Token
		result.TokenType = token.TokenType
		result.ExpiresIn = token.ExpiresIn
	}

	s.logger.WithField("phone", phoneNumber).Info("OTP verified")
	return result, nil
}

// matches compares the submitted code with the stored hash. The stored code
// was trimmed at issuance; under strip-leading-zeros only the submitted side
// loses its zeros.
func (s *OTPService) matches(hash, submitted string) bool {
	candidate := strings.TrimSpace(submitted)
	if s.cfg.CodeMatch == config.CodeMatchStripLeadingZeros {
		candidate = strings.TrimLeft(candidate, "0")
	}
	if candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

func (s *OTPService) rateLimited(ctx context.Context, phoneNumber string) error {
	appErr := apperror.New(apperror.KindRateLimited, "too many OTP requests, try again later")

	ttl, err := s.ensureWindow(ctx, rateKey(phoneNumber), s.cfg.IssueWindow)
	if err == nil && ttl > 0 {
		appErr.WithDetail("retry_after_seconds", int64(math.Ceil(ttl.Seconds())))
	}

	s.logger.WithField("phone", phoneNumber).Warn("OTP issuance rate limited")
	return appErr
}

// readCounter returns the counter value, treating an absent key as zero.
func (s *OTPService) readCounter(ctx context.Context, key string) (int64, error) {
	var raw string
	err := s.call(ctx, func(ctx context.Context) error {
		var getErr error
		raw, getErr = s.store.Get(ctx, key)
		return getErr
	})
	if errors.Is(err, repository.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.KindInternal, "corrupt counter "+key)
	}
	return n, nil
}

// incrWithWindow increments a counter and starts its window on creation.
// Later increments restore a window that an earlier failed Expire left unset.
func (s *OTPService) incrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	var n int64
	if err := s.call(ctx, func(ctx context.Context) error {
		var incrErr error
		n, incrErr = s.store.Incr(ctx, key)
		return incrErr
	}); err != nil {
		return 0, err
	}

	if n == 1 {
		if err := s.call(ctx, func(ctx context.Context) error {
			return s.store.Expire(ctx, key, window)
		}); err != nil {
			return 0, err
		}
		return n, nil
	}

	if _, err := s.ensureWindow(ctx, key, window); err != nil {
		return 0, err
	}
	return n, nil
}

// ensureWindow returns the counter's remaining lifetime, restarting the
// window when the counter has no expiry.
func (s *OTPService) ensureWindow(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	var ttl time.Duration
	if err := s.call(ctx, func(ctx context.Context) error {
		var ttlErr error
		ttl, ttlErr = s.store.TTL(ctx, key)
		return ttlErr
	}); err != nil {
		return 0, err
	}
	if ttl > 0 {
		return ttl, nil
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Expire(ctx, key, window)
	}); err != nil {
		return 0, err
	}
	s.logger.WithField("key", key).Warn("Counter had no expiry, window restarted")
	return window, nil
}

// call runs one store operation under the store timeout. ErrKeyNotFound is
// passed through; every other failure becomes StoreUnavailable.
func (s *OTPService) call(ctx context.Context, op func(ctx context.Context) error) error {
	opCtx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	err := op(opCtx)
	if err == nil || errors.Is(err, repository.ErrKeyNotFound) {
		return err
	}
	s.logger.WithError(err).Error("OTP store operation failed")
	return apperror.Wrap(err, apperror.KindStoreUnavailable, "OTP store is unavailable")
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func invalidPhone(err error, cleaned string) error {
	return apperror.Wrap(err, apperror.KindInvalidFormat, "phone must be a Philippine mobile number (09XXXXXXXXX or 639XXXXXXXXX)").
		WithDetail("phone", cleaned)
}

// generateCode returns a uniformly random six-digit code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeRange))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}
