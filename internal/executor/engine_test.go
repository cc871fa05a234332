package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeSigner struct {
	mu      sync.Mutex
	amounts map[string]decimal.Decimal
	fail    map[string]error
	// barrier makes every signature wait until both legs are being signed.
	barrier *sync.WaitGroup
}

func (s *fakeSigner) MarketBuy(tokenID string, amount, price decimal.Decimal) (crypto.SignedOrder, error) {
	if s.barrier != nil {
		s.barrier.Done()
		s.barrier.Wait()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.amounts == nil {
		s.amounts = make(map[string]decimal.Decimal)
	}
	s.amounts[tokenID] = amount
	if err := s.fail[tokenID]; err != nil {
		return crypto.SignedOrder{}, err
	}
	return crypto.SignedOrder{OrderPayload: crypto.OrderPayload{TokenID: tokenID}, Signature: "0xsig"}, nil
}

type fakePoster struct {
	mu      sync.Mutex
	results map[string]domain.ExecutionResult
	errs    map[string]error
	posted  []string
	// barrier makes every post wait until both legs are in flight.
	barrier *sync.WaitGroup
}

func (p *fakePoster) PostOrder(ctx context.Context, o crypto.SignedOrder, ot domain.OrderType) (domain.ExecutionResult, error) {
	if p.barrier != nil {
		p.barrier.Done()
		p.barrier.Wait()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, o.TokenID)
	if ot != domain.OrderTypeFOK {
		return domain.ExecutionResult{}, errors.New("expected FOK")
	}
	if err := p.errs[o.TokenID]; err != nil {
		return domain.ExecutionResult{}, err
	}
	return p.results[o.TokenID], nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	events []string
	msgs   []string
}

func (a *fakeAlerter) Notify(_ context.Context, event, _, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.msgs = append(a.msgs, message)
	return nil
}

type memStore struct {
	mu    sync.Mutex
	execs []domain.ArbExecution
}

func (s *memStore) Create(_ context.Context, e domain.ArbExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, e)
	return nil
}
func (s *memStore) GetByID(context.Context, string) (domain.ArbExecution, error) {
	return domain.ArbExecution{}, domain.ErrNotFound
}
func (s *memStore) ListRecent(context.Context, int) ([]domain.ArbExecution, error) { return nil, nil }
func (s *memStore) ListPartial(context.Context, time.Time) ([]domain.ArbExecution, error) {
	return nil, nil
}
func (s *memStore) SumProfit(context.Context, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func testOpp() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		MarketID:       "m1",
		Description:    "BTC above 100k?",
		YesTokenID:     "yes",
		NoTokenID:      "no",
		YesAskPrice:    d("0.40"),
		NoAskPrice:     d("0.55"),
		CombinedPrice:  d("0.95"),
		ProfitPerShare: d("0.05"),
		MaxSize:        d("50"),
	}
}

func newTestEngine(s OrderSigner, p OrderPoster, a Alerter, st domain.ArbExecutionStore) *Engine {
	return NewEngine(Config{Signer: s, Poster: p, Alerter: a, Store: st, Logger: discardLogger()})
}

func TestExecute_BothFill(t *testing.T) {
	signer := &fakeSigner{}
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	poster := &fakePoster{
		barrier: barrier,
		results: map[string]domain.ExecutionResult{
			"yes": {Success: true, OrderID: "o1"},
			"no":  {Success: true, OrderID: "o2", TxHashes: []string{"0xtx"}},
		},
	}
	alerter := &fakeAlerter{}
	store := &memStore{}

	yes, no, err := newTestEngine(signer, poster, alerter, store).Execute(context.Background(), testOpp(), d("10"))
	require.NoError(t, err)

	assert.True(t, yes.Success)
	assert.True(t, no.Success)
	assert.Equal(t, domain.ExecFilled, Classify(yes, no))
	assert.ElementsMatch(t, []string{"yes", "no"}, poster.posted)

	// Quote-currency sizing: 10 shares at each ask.
	assert.Equal(t, "4", signer.amounts["yes"].String())
	assert.Equal(t, "5.5", signer.amounts["no"].String())

	assert.Equal(t, []string{EventTradeFilled}, alerter.events)
	require.Len(t, store.execs, 1)
	assert.Equal(t, domain.ExecFilled, store.execs[0].Outcome)
	assert.Equal(t, "0.5", store.execs[0].RealizedProfit.String())
}

func TestExecute_SignsLegsConcurrently(t *testing.T) {
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	signer := &fakeSigner{barrier: barrier}
	poster := &fakePoster{results: map[string]domain.ExecutionResult{
		"yes": {Success: true},
		"no":  {Success: true},
	}}
	e := newTestEngine(signer, poster, nil, nil)

	type outcome struct {
		yes, no domain.ExecutionResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		yes, no, err := e.Execute(context.Background(), testOpp(), d("10"))
		done <- outcome{yes, no, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.True(t, out.yes.Success)
		assert.True(t, out.no.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("legs were signed one after the other")
	}
}

func TestExecute_SizeCappedByLiquidity(t *testing.T) {
	signer := &fakeSigner{}
	poster := &fakePoster{results: map[string]domain.ExecutionResult{
		"yes": {Success: true}, "no": {Success: true},
	}}
	opp := testOpp()
	opp.MaxSize = d("2")

	_, _, err := newTestEngine(signer, poster, nil, nil).Execute(context.Background(), opp, d("10"))
	require.NoError(t, err)
	assert.Equal(t, "0.8", signer.amounts["yes"].String())
	assert.Equal(t, "1.1", signer.amounts["no"].String())
}

func TestExecute_PartialAlertsUnhedgedSide(t *testing.T) {
	cases := []struct {
		name     string
		results  map[string]domain.ExecutionResult
		errs     map[string]error
		outcome  domain.ExecOutcome
		unhedged string
	}{
		{
			name:     "yes filled",
			results:  map[string]domain.ExecutionResult{"yes": {Success: true, OrderID: "o1"}},
			errs:     map[string]error{"no": errors.New("fok not filled")},
			outcome:  domain.ExecPartialYes,
			unhedged: "YES position is unhedged!",
		},
		{
			name: "no filled",
			results: map[string]domain.ExecutionResult{
				"yes": {Success: false, ErrorMessage: "not enough liquidity"},
				"no":  {Success: true, OrderID: "o2"},
			},
			outcome:  domain.ExecPartialNo,
			unhedged: "NO position is unhedged!",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alerter := &fakeAlerter{}
			store := &memStore{}
			poster := &fakePoster{results: tc.results, errs: tc.errs}

			yes, no, err := newTestEngine(&fakeSigner{}, poster, alerter, store).Execute(context.Background(), testOpp(), d("10"))
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, Classify(yes, no))

			require.Equal(t, []string{EventPartialExecution}, alerter.events)
			assert.Contains(t, alerter.msgs[0], "ALERT: Partial arbitrage execution on market m1.")
			assert.Contains(t, alerter.msgs[0], tc.unhedged)

			require.Len(t, store.execs, 1)
			exec := store.execs[0]
			assert.True(t, exec.RealizedProfit.IsZero())
			assert.NotEmpty(t, exec.Yes.ErrorMessage+exec.No.ErrorMessage, "failed leg keeps its error")
		})
	}
}

func TestExecute_BothFail(t *testing.T) {
	alerter := &fakeAlerter{}
	store := &memStore{}
	poster := &fakePoster{errs: map[string]error{
		"yes": errors.New("boom"),
		"no":  errors.New("bang"),
	}}

	yes, no, err := newTestEngine(&fakeSigner{}, poster, alerter, store).Execute(context.Background(), testOpp(), d("10"))
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, Classify(yes, no))
	assert.Contains(t, yes.ErrorMessage, "boom")
	assert.Contains(t, no.ErrorMessage, "bang")
	assert.Empty(t, alerter.events)
	require.Len(t, store.execs, 1)
	assert.Equal(t, domain.ExecFailed, store.execs[0].Outcome)
}

func TestExecute_SigningFailurePostsNothing(t *testing.T) {
	signer := &fakeSigner{fail: map[string]error{"no": domain.ErrSigningFailed}}
	poster := &fakePoster{}

	yes, no, err := newTestEngine(signer, poster, nil, nil).Execute(context.Background(), testOpp(), d("10"))
	require.NoError(t, err)
	assert.Empty(t, poster.posted)
	assert.False(t, yes.Success)
	assert.False(t, no.Success)
	assert.Contains(t, yes.ErrorMessage, "signing failed")
	assert.Equal(t, domain.ExecFailed, Classify(yes, no))
}

func TestExecute_Dedup(t *testing.T) {
	poster := &fakePoster{results: map[string]domain.ExecutionResult{"yes": {Success: true}, "no": {Success: true}}}
	e := NewEngine(Config{Signer: &fakeSigner{}, Poster: poster, DedupWindow: time.Minute, Logger: discardLogger()})

	_, _, err := e.Execute(context.Background(), testOpp(), d("1"))
	require.NoError(t, err)
	_, _, err = e.Execute(context.Background(), testOpp(), d("1"))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, poster.posted, 2)

	other := testOpp()
	other.MarketID = "m2"
	_, _, err = e.Execute(context.Background(), other, d("1"))
	assert.NoError(t, err)
}

type fakeLocks struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	return func() { l.released = append(l.released, key) }, nil
}

func TestExecute_LockHeld(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{"polyarb:exec:m1": true}}
	poster := &fakePoster{}
	e := NewEngine(Config{
		Signer:      &fakeSigner{},
		Poster:      poster,
		Locks:       locks,
		DedupWindow: time.Minute,
		Logger:      discardLogger(),
	})

	_, _, err := e.Execute(context.Background(), testOpp(), d("1"))
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, poster.posted)

	// A held lock submits nothing, so it must not start the dedup window.
	locks.held = nil
	_, _, err = e.Execute(context.Background(), testOpp(), d("1"))
	require.NoError(t, err)
	assert.Len(t, poster.posted, 2)
	assert.Equal(t, []string{"polyarb:exec:m1"}, locks.released)

	_, _, err = e.Execute(context.Background(), testOpp(), d("1"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDedup_Expiry(t *testing.T) {
	now := time.Unix(0, 0)
	dd := NewDedup(5 * time.Second)
	dd.now = func() time.Time { return now }

	assert.False(t, dd.IsDuplicate("m"))
	assert.True(t, dd.IsDuplicate("m"))
	now = now.Add(5 * time.Second)
	assert.False(t, dd.IsDuplicate("m"))

	now = now.Add(10 * time.Second)
	dd.Cleanup()
	assert.Zero(t, dd.Len())

	assert.False(t, NewDedup(0).IsDuplicate("x"))
	assert.False(t, NewDedup(0).IsDuplicate("x"))
}
