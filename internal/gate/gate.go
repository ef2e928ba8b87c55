// Package gate decides whether a token presented from a device unlocks the
// question bank, binding the token to the device on first use.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/synapse/internal/binding"
	"github.com/yourorg/synapse/internal/metrics"
	"github.com/yourorg/synapse/internal/tokenstore"
	"github.com/yourorg/synapse/internal/validation"
)

var (
	ErrEmptyToken       = errors.New("please enter a token")
	ErrMissingDevice    = errors.New("device identifier required")
	ErrInvalidToken     = errors.New("invalid token")
	ErrDeviceMismatch   = errors.New("token bound to another device")
	ErrStoreUnavailable = errors.New("connection error, access denied")
)

// Result describes a granted unlock.
type Result struct {
	Outcome binding.Outcome
	Record  tokenstore.Record
}

// Event is published for every gate decision. The raw token never leaves the
// service; Token carries a masked form.
type Event struct {
	Action   string    `json:"action"`
	Outcome  string    `json:"outcome"`
	Token    string    `json:"token"`
	DeviceID string    `json:"device_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier receives gate events; it must not block.
type Notifier func(Event)

type Service struct {
	store   tokenstore.Store
	metrics *metrics.Metrics
	notify  Notifier
	now     func() time.Time
}

// New returns a gate over store. m and notify may be nil.
func New(store tokenstore.Store, m *metrics.Metrics, notify Notifier) *Service {
	return &Service{
		store:   store,
		metrics: m,
		notify:  notify,
		now:     time.Now,
	}
}

// Unlock checks token against the device it is bound to. An unbound token is
// bound to deviceID with a compare-and-set; if another device wins that race
// the decision is taken against the winner's binding.
func (s *Service) Unlock(ctx context.Context, token, deviceID string) (Result, error) {
	s.metrics.Inc(metrics.UnlockAttempts)
	token = strings.TrimSpace(token)
	deviceID = strings.TrimSpace(deviceID)

	if token == "" {
		s.metrics.Inc(metrics.EmptyToken)
		s.publish("unlock", token, deviceID, binding.Invalid, ErrEmptyToken)
		return Result{Outcome: binding.Invalid}, ErrEmptyToken
	}
	if deviceID == "" {
		s.publish("unlock", token, deviceID, binding.Invalid, ErrMissingDevice)
		return Result{Outcome: binding.Invalid}, ErrMissingDevice
	}

	rec, err := s.lookup(ctx, token)
	if err != nil {
		s.publish("unlock", token, deviceID, binding.Invalid, err)
		return Result{Outcome: binding.Invalid}, err
	}

	outcome := binding.Validate(token, rec.DeviceID, deviceID)
	if outcome == binding.NewDevice {
		rec, outcome, err = s.bind(ctx, token, deviceID)
		if err != nil {
			s.publish("unlock", token, deviceID, binding.Invalid, err)
			return Result{Outcome: binding.Invalid}, err
		}
	}

	res := Result{Outcome: outcome, Record: rec}
	switch outcome {
	case binding.NewDevice:
		s.metrics.Inc(metrics.NewDevice)
		log.Printf("[GATE] token %s bound to device %s", Mask(token), deviceID)
	case binding.Verified:
		s.metrics.Inc(metrics.Verified)
	default:
		s.metrics.Inc(metrics.DeviceMismatch)
		s.publish("unlock", token, deviceID, outcome, ErrDeviceMismatch)
		return res, ErrDeviceMismatch
	}
	s.publish("unlock", token, deviceID, outcome, nil)
	return res, nil
}

// bind persists a first-use binding. A lost compare-and-set is decided
// against the stored record; a record that still reads as unbound (reset
// between the failed write and the re-read) gets one more attempt.
func (s *Service) bind(ctx context.Context, token, deviceID string) (tokenstore.Record, binding.Outcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := s.store.Bind(ctx, token, deviceID, s.now())
		switch {
		case err == nil:
			return rec, binding.NewDevice, nil
		case errors.Is(err, tokenstore.ErrAlreadyBound):
			s.metrics.Inc(metrics.BindRaceLost)
			if outcome := binding.Validate(token, rec.DeviceID, deviceID); outcome != binding.NewDevice {
				return rec, outcome, nil
			}
		case errors.Is(err, tokenstore.ErrTokenNotFound):
			s.metrics.Inc(metrics.InvalidToken)
			return tokenstore.Record{}, binding.Invalid, ErrInvalidToken
		default:
			s.metrics.Inc(metrics.StoreErrors)
			log.Printf("[GATE] bind %s failed: %v", Mask(token), err)
			return tokenstore.Record{}, binding.Invalid, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	s.metrics.Inc(metrics.StoreErrors)
	log.Printf("[GATE] bind %s: token still unbound after a lost race", Mask(token))
	return tokenstore.Record{}, binding.Invalid, fmt.Errorf("%w: binding not persisted", ErrStoreUnavailable)
}

// CheckSession re-verifies a session issued for the token with the given
// digest. The session only carries the digest, so the check scans the token
// table. It fails once the token is revoked, reset, or bound elsewhere.
func (s *Service) CheckSession(ctx context.Context, digest, deviceID string) error {
	records, err := s.store.ReadAll(ctx)
	if err != nil {
		s.metrics.Inc(metrics.StoreErrors)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, rec := range records {
		if Digest(rec.Token) != digest {
			continue
		}
		if binding.Validate(rec.Token, rec.DeviceID, deviceID) != binding.Verified {
			return ErrDeviceMismatch
		}
		return nil
	}
	return ErrInvalidToken
}

func (s *Service) lookup(ctx context.Context, token string) (tokenstore.Record, error) {
	rec, err := s.store.Get(ctx, token)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, tokenstore.ErrTokenNotFound) {
		s.metrics.Inc(metrics.InvalidToken)
		return tokenstore.Record{}, ErrInvalidToken
	}
	s.metrics.Inc(metrics.StoreErrors)
	log.Printf("[GATE] lookup %s failed: %v", Mask(token), err)
	return tokenstore.Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Tokens lists every token record.
func (s *Service) Tokens(ctx context.Context) ([]tokenstore.Record, error) {
	return s.store.ReadAll(ctx)
}

// Issue creates an unbound token.
func (s *Service) Issue(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.store.Issue(ctx, token); err != nil {
		return err
	}
	s.publish("issue", token, "", binding.Invalid, nil)
	return nil
}

// IssueGenerated mints n random tokens, skipping collisions. It returns the
// tokens issued so far alongside any error. n must be within
// [1, validation.MaxIssueCount].
func (s *Service) IssueGenerated(ctx context.Context, n int) ([]string, error) {
	if err := validation.ValidateIssueCount(n); err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for attempts := 0; len(out) < n; attempts++ {
		if attempts >= 4*n {
			return out, fmt.Errorf("issue tokens: too many collisions after %d attempts", attempts)
		}
		token := GenerateToken()
		err := s.Issue(ctx, token)
		if errors.Is(err, tokenstore.ErrTokenExists) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, token)
	}
	return out, nil
}

// GenerateToken returns a random 10 character upper-case hex token.
func GenerateToken() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Reset unbinds a token so that its next use binds a new device.
func (s *Service) Reset(ctx context.Context, token string) error {
	if err := s.store.Reset(ctx, token); err != nil {
		return err
	}
	s.metrics.Inc(metrics.BindingResets)
	log.Printf("[GATE] binding of %s reset", Mask(token))
	s.publish("reset", token, "", binding.Invalid, nil)
	return nil
}

// Revoke deletes a token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.store.Delete(ctx, token); err != nil {
		return err
	}
	s.publish("revoke", token, "", binding.Invalid, nil)
	return nil
}

// Ping reports whether the token store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) publish(action, token, deviceID string, outcome binding.Outcome, err error) {
	if s.notify == nil {
		return
	}
	ev := Event{
		Action:   action,
		Token:    Mask(token),
		DeviceID: deviceID,
		At:       s.now().UTC(),
	}
	if action == "unlock" {
		ev.Outcome = outcome.String()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.notify(ev)
}

// Mask keeps the first two characters of a token for logs.
func Mask(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 2 {
		return "**"
	}
	return token[:2] + strings.Repeat("*", len(token)-2)
}

// Digest is the stable, non-reversible identifier of a token used in
// session credentials.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
