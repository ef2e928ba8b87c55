package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourorg/synapse/internal/binding"
	"github.com/yourorg/synapse/internal/metrics"
	"github.com/yourorg/synapse/internal/tokenstore"
	"github.com/yourorg/synapse/internal/validation"
)

type downStore struct {
	tokenstore.Store
}

func (downStore) Get(context.Context, string) (tokenstore.Record, error) {
	return tokenstore.Record{}, tokenstore.ErrUnavailable
}

func (downStore) ReadAll(context.Context) ([]tokenstore.Record, error) {
	return nil, tokenstore.ErrUnavailable
}

// staleStore reports every token as unbound, as a read that raced with
// another device's first bind would.
type staleStore struct {
	tokenstore.Store
}

func (s staleStore) Get(ctx context.Context, token string) (tokenstore.Record, error) {
	rec, err := s.Store.Get(ctx, token)
	rec.DeviceID = ""
	return rec, err
}

// resetRaceStore loses the compare-and-set but reads the token back as
// unbound, as when an administrative reset lands between the failed write
// and the re-read. The first misses Bind calls behave that way.
type resetRaceStore struct {
	tokenstore.Store
	misses int
	calls  int
}

func (s *resetRaceStore) Bind(ctx context.Context, token, deviceID string, at time.Time) (tokenstore.Record, error) {
	s.calls++
	if s.calls <= s.misses {
		rec, err := s.Store.Get(ctx, token)
		if err != nil {
			return rec, err
		}
		return rec, tokenstore.ErrAlreadyBound
	}
	return s.Store.Bind(ctx, token, deviceID, at)
}

func newTestGate(t *testing.T, tokens ...string) (*Service, tokenstore.Store, *metrics.Metrics, *[]Event) {
	t.Helper()
	store := tokenstore.NewMemoryStore()
	for _, tok := range tokens {
		if err := store.Issue(context.Background(), tok); err != nil {
			t.Fatalf("issue %s: %v", tok, err)
		}
	}
	m := metrics.New()
	var (
		mu     sync.Mutex
		events []Event
	)
	svc := New(store, m, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return svc, store, m, &events
}

func TestUnlockFirstUseBindsDevice(t *testing.T) {
	svc, store, m, events := newTestGate(t, "ABC123")
	ctx := context.Background()

	res, err := svc.Unlock(ctx, "ABC123", "dev-1")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if res.Outcome != binding.NewDevice {
		t.Fatalf("expected NewDevice, got %s", res.Outcome)
	}
	rec, _ := store.Get(ctx, "ABC123")
	if rec.DeviceID != "dev-1" || rec.RegisteredAt.IsZero() {
		t.Fatalf("binding not persisted: %+v", rec)
	}
	if m.Value(metrics.NewDevice) != 1 {
		t.Fatalf("expected NewDevice metric, got %d", m.Value(metrics.NewDevice))
	}
	if len(*events) != 1 || (*events)[0].Outcome != "new_device" || (*events)[0].Token != "AB****" {
		t.Fatalf("unexpected events: %+v", *events)
	}
}

func TestUnlockSameDeviceVerified(t *testing.T) {
	svc, _, m, _ := newTestGate(t, "ABC123")
	ctx := context.Background()
	if _, err := svc.Unlock(ctx, "ABC123", "dev-1"); err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	res, err := svc.Unlock(ctx, " ABC123 ", "dev-1")
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if res.Outcome != binding.Verified {
		t.Fatalf("expected Verified, got %s", res.Outcome)
	}
	if m.Value(metrics.Verified) != 1 {
		t.Fatalf("expected Verified metric, got %d", m.Value(metrics.Verified))
	}
}

func TestUnlockOtherDeviceRejectedWithoutMutation(t *testing.T) {
	svc, store, m, _ := newTestGate(t, "ABC123")
	ctx := context.Background()
	if _, err := svc.Unlock(ctx, "ABC123", "dev-1"); err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	before, _ := store.Get(ctx, "ABC123")

	res, err := svc.Unlock(ctx, "ABC123", "dev-2")
	if !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("expected ErrDeviceMismatch, got %v", err)
	}
	if res.Outcome != binding.DeviceMismatch {
		t.Fatalf("expected DeviceMismatch outcome, got %s", res.Outcome)
	}
	after, _ := store.Get(ctx, "ABC123")
	if after != before {
		t.Fatalf("mismatch must not mutate the record: before=%+v after=%+v", before, after)
	}
	if m.Value(metrics.DeviceMismatch) != 1 {
		t.Fatal("expected DeviceMismatch metric")
	}
}

func TestUnlockRejections(t *testing.T) {
	svc, _, m, _ := newTestGate(t, "ABC123")
	ctx := context.Background()

	if _, err := svc.Unlock(ctx, "   ", "dev-1"); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if _, err := svc.Unlock(ctx, "ABC123", ""); !errors.Is(err, ErrMissingDevice) {
		t.Fatalf("expected ErrMissingDevice, got %v", err)
	}
	if _, err := svc.Unlock(ctx, "NOPE", "dev-1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if m.Value(metrics.EmptyToken) != 1 || m.Value(metrics.InvalidToken) != 1 {
		t.Fatalf("unexpected metrics: %+v", m.Snapshot().Counters)
	}
	if m.Value(metrics.UnlockAttempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", m.Value(metrics.UnlockAttempts))
	}
}

func TestUnlockStoreDownDeniesEveryToken(t *testing.T) {
	m := metrics.New()
	svc := New(downStore{Store: tokenstore.NewMemoryStore()}, m, nil)
	for _, tok := range []string{"ABC123", "ADMIN2024"} {
		if _, err := svc.Unlock(context.Background(), tok, "dev-1"); !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("%s: expected ErrStoreUnavailable, got %v", tok, err)
		}
	}
	if m.Value(metrics.StoreErrors) != 2 {
		t.Fatalf("expected 2 store errors, got %d", m.Value(metrics.StoreErrors))
	}
}

func TestUnlockLostBindRaceIsReclassified(t *testing.T) {
	inner := tokenstore.NewMemoryStore()
	ctx := context.Background()
	for _, tok := range []string{"T1", "T2"} {
		if err := inner.Issue(ctx, tok); err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := inner.Bind(ctx, tok, "dev-winner", time.Now()); err != nil {
			t.Fatalf("bind: %v", err)
		}
	}
	m := metrics.New()
	svc := New(staleStore{Store: inner}, m, nil)

	if _, err := svc.Unlock(ctx, "T1", "dev-loser"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("expected ErrDeviceMismatch for other device, got %v", err)
	}
	res, err := svc.Unlock(ctx, "T2", "dev-winner")
	if err != nil || res.Outcome != binding.Verified {
		t.Fatalf("expected Verified for the winning device, got %s err=%v", res.Outcome, err)
	}
	if m.Value(metrics.BindRaceLost) != 2 {
		t.Fatalf("expected 2 lost races, got %d", m.Value(metrics.BindRaceLost))
	}
}

func TestUnlockConcurrentFirstUseBindsOneDevice(t *testing.T) {
	svc, store, _, _ := newTestGate(t, "RACE")
	ctx := context.Background()

	const workers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		granted  []string
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			device := fmt.Sprintf("dev-%d", n)
			_, err := svc.Unlock(ctx, "RACE", device)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted = append(granted, device)
			case errors.Is(err, ErrDeviceMismatch):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(granted) != 1 || rejected != workers-1 {
		t.Fatalf("expected one grant and %d rejections, got %v / %d", workers-1, granted, rejected)
	}
	rec, _ := store.Get(ctx, "RACE")
	if rec.DeviceID != granted[0] {
		t.Fatalf("stored device %q does not match granted %q", rec.DeviceID, granted[0])
	}
}

func TestCheckSession(t *testing.T) {
	svc, _, _, _ := newTestGate(t, "ABC123")
	ctx := context.Background()
	if _, err := svc.Unlock(ctx, "ABC123", "dev-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	digest := Digest("ABC123")

	if err := svc.CheckSession(ctx, digest, "dev-1"); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}
	if err := svc.CheckSession(ctx, digest, "dev-2"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("expected ErrDeviceMismatch, got %v", err)
	}
	if err := svc.Reset(ctx, "ABC123"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := svc.CheckSession(ctx, digest, "dev-1"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("reset binding should end the session, got %v", err)
	}
	if err := svc.Revoke(ctx, "ABC123"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.CheckSession(ctx, digest, "dev-1"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}

	down := New(downStore{Store: tokenstore.NewMemoryStore()}, nil, nil)
	if err := down.CheckSession(ctx, digest, "dev-1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResetAllowsRebinding(t *testing.T) {
	svc, _, m, events := newTestGate(t, "ABC123")
	ctx := context.Background()
	if _, err := svc.Unlock(ctx, "ABC123", "dev-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := svc.Reset(ctx, "ABC123"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	res, err := svc.Unlock(ctx, "ABC123", "dev-2")
	if err != nil || res.Outcome != binding.NewDevice {
		t.Fatalf("expected rebind to dev-2, got %s err=%v", res.Outcome, err)
	}
	if m.Value(metrics.BindingResets) != 1 {
		t.Fatal("expected reset metric")
	}
	if err := svc.Reset(ctx, "MISSING"); !errors.Is(err, tokenstore.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if (*events)[1].Action != "reset" || (*events)[1].Outcome != "" {
		t.Fatalf("unexpected reset event: %+v", (*events)[1])
	}
}

func TestIssue(t *testing.T) {
	svc, _, _, _ := newTestGate(t)
	ctx := context.Background()
	if err := svc.Issue(ctx, " "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
	if err := svc.Issue(ctx, "NEW1"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Issue(ctx, "NEW1"); !errors.Is(err, tokenstore.ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	all, err := svc.Tokens(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one token, got %v err=%v", all, err)
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{"": "", "A": "**", "AB": "**", "ABC123": "AB****"}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Fatalf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDigestStable(t *testing.T) {
	if Digest("ABC123") != Digest("ABC123") || Digest("ABC123") == Digest("ABC124") {
		t.Fatal("digest must be deterministic and distinct")
	}
	if len(Digest("x")) != 64 {
		t.Fatalf("expected hex sha256, got %q", Digest("x"))
	}
}

func TestIssueGenerated(t *testing.T) {
	svc, store, _, _ := newTestGate(t)
	ctx := context.Background()

	tokens, err := svc.IssueGenerated(ctx, 5)
	if err != nil {
		t.Fatalf("issue generated: %v", err)
	}
	seen := map[string]bool{}
	for _, tok := range tokens {
		if len(tok) != 10 || strings.ToUpper(tok) != tok || seen[tok] {
			t.Fatalf("unexpected token %q in %v", tok, tokens)
		}
		seen[tok] = true
		if _, err := store.Get(ctx, tok); err != nil {
			t.Fatalf("token %s not stored: %v", tok, err)
		}
	}
	if len(tokens) != 5 {
		t.Fatalf("expected 5 tokens, got %d", len(tokens))
	}
}

func TestUnlockRetriesBindWhenLostRaceReadsUnbound(t *testing.T) {
	ctx := context.Background()
	inner := tokenstore.NewMemoryStore()
	if err := inner.Issue(ctx, "AB1234"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	store := &resetRaceStore{Store: inner, misses: 1}
	m := metrics.New()
	svc := New(store, m, nil)

	res, err := svc.Unlock(ctx, "AB1234", "dev-1")
	if err != nil || res.Outcome != binding.NewDevice {
		t.Fatalf("expected NewDevice after retry, got %s err=%v", res.Outcome, err)
	}
	rec, _ := inner.Get(ctx, "AB1234")
	if rec.DeviceID != "dev-1" {
		t.Fatalf("binding not persisted: %+v", rec)
	}
	if store.calls != 2 {
		t.Fatalf("expected 2 bind attempts, got %d", store.calls)
	}
}

func TestUnlockDeniesWhenBindingIsNeverPersisted(t *testing.T) {
	ctx := context.Background()
	inner := tokenstore.NewMemoryStore()
	if err := inner.Issue(ctx, "AB1234"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	m := metrics.New()
	svc := New(&resetRaceStore{Store: inner, misses: 10}, m, nil)

	res, err := svc.Unlock(ctx, "AB1234", "dev-1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if binding.Allowed(res.Outcome) {
		t.Fatalf("access granted without a stored binding: %s", res.Outcome)
	}
	if rec, _ := inner.Get(ctx, "AB1234"); rec.Bound() {
		t.Fatalf("unexpected binding %+v", rec)
	}
	if m.Value(metrics.NewDevice) != 0 {
		t.Fatalf("new device counted without a binding")
	}
}

func TestIssueGeneratedRejectsOutOfRangeCounts(t *testing.T) {
	svc, store, _, _ := newTestGate(t)
	ctx := context.Background()

	for _, n := range []int{-1, 0, validation.MaxIssueCount + 1} {
		tokens, err := svc.IssueGenerated(ctx, n)
		var fe *validation.FieldError
		if !errors.As(err, &fe) || fe.Field != "count" {
			t.Fatalf("IssueGenerated(%d): expected count FieldError, got %v", n, err)
		}
		if len(tokens) != 0 {
			t.Fatalf("IssueGenerated(%d) issued %v", n, tokens)
		}
	}
	if all, _ := store.ReadAll(ctx); len(all) != 0 {
		t.Fatalf("expected no tokens, got %d", len(all))
	}
}
