package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kidconnect/broadcast/internal/directory"
	"github.com/kidconnect/broadcast/internal/gateway"
	"github.com/kidconnect/broadcast/internal/ledger"
)

// ---------------------------------------------------------------------------
// Mock: gateway.Gateway
// ---------------------------------------------------------------------------

type sentCall struct {
	identifier string
	text       string
}

type sendResult struct {
	outcome *gateway.Outcome
	err     error
}

// mockGateway plays back scripted results per identifier and records calls.
// An identifier with no script always succeeds.
type mockGateway struct {
	mu     sync.Mutex
	calls  []sentCall
	script map[string][]sendResult
	onSend func(identifier string)
}

func newMockGateway() *mockGateway {
	return &mockGateway{script: make(map[string][]sendResult)}
}

func (m *mockGateway) Name() string                        { return "mock" }
func (m *mockGateway) HealthCheck(_ context.Context) error { return nil }

func (m *mockGateway) Send(_ context.Context, identifier, text string) (*gateway.Outcome, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sentCall{identifier: identifier, text: text})
	var next sendResult
	if queue := m.script[identifier]; len(queue) > 0 {
		next = queue[0]
		m.script[identifier] = queue[1:]
	} else {
		next = sendResult{outcome: &gateway.Outcome{StatusCode: 202, ProviderMessage: "accepted", ProviderMessageID: "mock-1"}}
	}
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(identifier)
	}
	return next.outcome, next.err
}

func (m *mockGateway) callsTo(identifier string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.identifier == identifier {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Mock: ledger.Ledger
// ---------------------------------------------------------------------------

type mockLedger struct {
	mu      sync.Mutex
	entries []ledger.Attempt
	// failAfter aborts appends once this many entries exist; -1 disables.
	failAfter int
}

func newMockLedger() *mockLedger {
	return &mockLedger{failAfter: -1}
}

func (m *mockLedger) Append(_ context.Context, a ledger.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter >= 0 && len(m.entries) >= m.failAfter {
		return &ledger.PersistenceError{Op: "append", Err: errors.New("disk full")}
	}
	m.entries = append(m.entries, a)
	return nil
}

func (m *mockLedger) ReadAll(_ context.Context) ([]ledger.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Attempt, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *mockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testDirectory(t *testing.T) *directory.Directory {
	t.Helper()
	d := directory.New()
	err := d.ReplaceRoster([]directory.RosterRow{
		{Name: "Ann", Identifier: "111", GroupTag: "English"},
		{Name: "Ben", Identifier: "222", GroupTag: "Afrikaans"},
		{Name: "Cat", Identifier: "333", GroupTag: "English"},
	})
	if err != nil {
		t.Fatalf("replace roster: %v", err)
	}
	return d
}

func testEngine(dir *directory.Directory, gw gateway.Gateway, led ledger.Ledger) *Engine {
	cfg := Config{MaxAttempts: 3}
	return New(cfg, dir, gw, led, nil, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDispatch_AuthorizedSentUnauthorizedSkipped(t *testing.T) {
	dir := directory.New()
	if err := dir.ReplaceRoster([]directory.RosterRow{
		{Name: "Ann", Identifier: "111", GroupTag: "English"},
		{Name: "Ben", Identifier: "222", GroupTag: "Afrikaans"},
	}); err != nil {
		t.Fatalf("replace roster: %v", err)
	}
	dir.ReplaceAllowList([]string{"111"})

	gw := newMockGateway()
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if res.Sent != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("expected sent=1 skipped=1 failed=0, got sent=%d skipped=%d failed=%d", res.Sent, res.Skipped, res.Failed)
	}
	if res.Incomplete {
		t.Error("expected complete batch")
	}

	// Ann gets the personalized greeting; Ben never reaches the gateway.
	if len(gw.calls) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(gw.calls))
	}
	if gw.calls[0].identifier != "111" {
		t.Errorf("expected send to 111, got %s", gw.calls[0].identifier)
	}
	if gw.calls[0].text != "Hi Ann, Reminder" {
		t.Errorf("expected text 'Hi Ann, Reminder', got %q", gw.calls[0].text)
	}

	// Both outcomes are in the result and in the ledger, in order.
	if len(res.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(res.Outcomes))
	}
	if res.Outcomes[0].Outcome != ledger.OutcomeSent || res.Outcomes[0].RecipientID != "111" {
		t.Errorf("unexpected first outcome: %+v", res.Outcomes[0])
	}
	if res.Outcomes[1].Outcome != ledger.OutcomeSkipped || res.Outcomes[1].RecipientID != "222" {
		t.Errorf("unexpected second outcome: %+v", res.Outcomes[1])
	}
	if led.count() != 2 {
		t.Errorf("expected 2 ledger entries, got %d", led.count())
	}
}

func TestDispatch_EmptyBodyRejected(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "222", "333"})
	gw := newMockGateway()
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	for _, body := range []string{"", "   ", "\n\t"} {
		res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: body})
		if !errors.Is(err, ErrEmptyBody) {
			t.Errorf("body %q: expected ErrEmptyBody, got %v", body, err)
		}
		if res != nil {
			t.Errorf("body %q: expected nil result, got %+v", body, res)
		}
	}

	if len(gw.calls) != 0 {
		t.Errorf("expected no gateway calls, got %d", len(gw.calls))
	}
	if led.count() != 0 {
		t.Errorf("expected no ledger entries, got %d", led.count())
	}
}

func TestDispatch_NoMatchingRecipients(t *testing.T) {
	dir := testDirectory(t)
	gw := newMockGateway()
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: "Mandarin", Body: "Reminder"})
	if err != nil {
		t.Fatalf("expected no error for empty selection, got %v", err)
	}
	if res.Sent != 0 || res.Skipped != 0 || res.Failed != 0 {
		t.Errorf("expected all-zero counts, got %+v", res)
	}
	if res.Incomplete {
		t.Error("expected complete batch")
	}
	if led.count() != 0 {
		t.Errorf("expected no ledger entries, got %d", led.count())
	}
}

func TestDispatch_PermanentRejectionNotRetried(t *testing.T) {
	dir := directory.New()
	if err := dir.ReplaceRoster([]directory.RosterRow{
		{Name: "Cat", Identifier: "333", GroupTag: "English"},
	}); err != nil {
		t.Fatalf("replace roster: %v", err)
	}
	dir.ReplaceAllowList([]string{"333"})

	gw := newMockGateway()
	gw.script["333"] = []sendResult{
		{err: &gateway.GatewayError{Gateway: "mock", StatusCode: 400, Message: "not whitelisted", Permanent: true}},
	}
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if gw.callsTo("333") != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", gw.callsTo("333"))
	}
	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("expected failed=1 sent=0, got failed=%d sent=%d", res.Failed, res.Sent)
	}
	if res.Outcomes[0].Outcome != ledger.OutcomeFailed {
		t.Errorf("expected FAILED outcome, got %s", res.Outcomes[0].Outcome)
	}
	if res.Outcomes[0].AttemptNumber != 1 {
		t.Errorf("expected attempt number 1, got %d", res.Outcomes[0].AttemptNumber)
	}
	if res.Outcomes[0].StatusCode != 400 {
		t.Errorf("expected status code 400, got %d", res.Outcomes[0].StatusCode)
	}
}

func TestDispatch_TransientFailureRetriedToSuccess(t *testing.T) {
	dir := directory.New()
	if err := dir.ReplaceRoster([]directory.RosterRow{
		{Name: "Ann", Identifier: "111", GroupTag: "English"},
	}); err != nil {
		t.Fatalf("replace roster: %v", err)
	}
	dir.ReplaceAllowList([]string{"111"})

	gw := newMockGateway()
	gw.script["111"] = []sendResult{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{outcome: &gateway.Outcome{StatusCode: 202, ProviderMessage: "accepted"}},
	}
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if gw.callsTo("111") != 3 {
		t.Errorf("expected 3 attempts, got %d", gw.callsTo("111"))
	}
	if res.Sent != 1 || res.Failed != 0 {
		t.Errorf("expected sent=1 failed=0, got sent=%d failed=%d", res.Sent, res.Failed)
	}
	if res.Outcomes[0].Outcome != ledger.OutcomeSent {
		t.Errorf("expected SENT outcome, got %s", res.Outcomes[0].Outcome)
	}
	if res.Outcomes[0].AttemptNumber != 3 {
		t.Errorf("expected attempt number 3, got %d", res.Outcomes[0].AttemptNumber)
	}
}

func TestDispatch_TransientFailureExhaustsBudget(t *testing.T) {
	dir := directory.New()
	if err := dir.ReplaceRoster([]directory.RosterRow{
		{Name: "Ann", Identifier: "111", GroupTag: "English"},
	}); err != nil {
		t.Fatalf("replace roster: %v", err)
	}
	dir.ReplaceAllowList([]string{"111"})

	gw := newMockGateway()
	gw.script["111"] = []sendResult{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
	}
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if gw.callsTo("111") != 3 {
		t.Errorf("expected 3 attempts, got %d", gw.callsTo("111"))
	}
	if res.Failed != 1 {
		t.Errorf("expected failed=1, got %d", res.Failed)
	}
	if res.Outcomes[0].AttemptNumber != 3 {
		t.Errorf("expected terminal attempt 3, got %d", res.Outcomes[0].AttemptNumber)
	}
}

func TestDispatch_CountsMatchSelectionAndLedger(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "333"}) // 222 will be skipped

	gw := newMockGateway()
	gw.script["333"] = []sendResult{
		{err: &gateway.GatewayError{Gateway: "mock", StatusCode: 422, Message: "malformed identifier", Permanent: true}},
	}
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	selected := 3
	if res.Sent+res.Skipped+res.Failed != selected {
		t.Errorf("expected counts to sum to %d, got %d", selected, res.Sent+res.Skipped+res.Failed)
	}
	if led.count() != len(res.Outcomes) {
		t.Errorf("expected ledger entries (%d) to equal result outcomes (%d)", led.count(), len(res.Outcomes))
	}

	// Exactly one terminal outcome per selected recipient.
	seen := make(map[string]int)
	for _, o := range res.Outcomes {
		seen[o.RecipientID]++
	}
	for _, id := range []string{"111", "222", "333"} {
		if seen[id] != 1 {
			t.Errorf("recipient %s: expected exactly 1 outcome, got %d", id, seen[id])
		}
	}
}

func TestDispatch_GroupFilterProcessesInRosterOrder(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "333"})

	gw := newMockGateway()
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: "English", Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if res.Sent != 2 || res.Skipped != 0 {
		t.Errorf("expected sent=2 skipped=0, got sent=%d skipped=%d", res.Sent, res.Skipped)
	}
	if len(gw.calls) != 2 || gw.calls[0].identifier != "111" || gw.calls[1].identifier != "333" {
		t.Errorf("expected sends to [111 333] in roster order, got %+v", gw.calls)
	}
}

func TestDispatch_LedgerFailureAbortsBatch(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "222", "333"})

	gw := newMockGateway()
	led := newMockLedger()
	led.failAfter = 1 // second append fails
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})

	var perr *ledger.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if res == nil {
		t.Fatal("expected partial result alongside the error")
	}
	if !res.Incomplete {
		t.Error("expected batch marked incomplete")
	}
	// Only the first recipient was fully accounted.
	if len(res.Outcomes) != 1 {
		t.Errorf("expected 1 recorded outcome, got %d", len(res.Outcomes))
	}
	// No further recipients may be contacted after the ledger failed.
	if len(gw.calls) != 2 {
		t.Errorf("expected 2 gateway calls (second one unrecordable), got %d", len(gw.calls))
	}
}

func TestDispatch_CancellationYieldsPartialResult(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "222", "333"})

	ctx, cancel := context.WithCancel(context.Background())

	gw := newMockGateway()
	gw.onSend = func(identifier string) {
		if identifier == "111" {
			cancel()
		}
	}
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(ctx, Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("expected nil error on cancellation, got %v", err)
	}
	if !res.Incomplete {
		t.Error("expected batch marked incomplete")
	}
	if res.Sent != 1 {
		t.Errorf("expected 1 sent before cancellation, got %d", res.Sent)
	}
	// Completed attempts remain in the ledger.
	if led.count() != 1 {
		t.Errorf("expected 1 ledger entry, got %d", led.count())
	}
	if len(gw.calls) != 1 {
		t.Errorf("expected no sends after cancellation, got %d calls", len(gw.calls))
	}
}

func TestDispatch_RosterReplacementBlockedMidBatch(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "222", "333"})

	replaceDone := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	gw := newMockGateway()
	gw.onSend = func(string) {
		once.Do(func() {
			go func() {
				close(started)
				// Must block until the dispatch releases the roster.
				if err := dir.ReplaceRoster([]directory.RosterRow{
					{Name: "Dee", Identifier: "444", GroupTag: "Zulu"},
				}); err != nil {
					t.Errorf("replace roster: %v", err)
				}
				close(replaceDone)
			}()
			<-started
		})
	}
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	res, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// All three recipients of the original roster were processed; the
	// replacement could not shrink the batch mid-iteration.
	if res.Sent != 3 {
		t.Errorf("expected 3 sent from the original roster, got %d", res.Sent)
	}

	<-replaceDone
	if dir.Size() != 1 {
		t.Errorf("expected replacement to land after the batch, got size %d", dir.Size())
	}
}

func TestDispatch_SerializesConcurrentBatches(t *testing.T) {
	dir := testDirectory(t)
	dir.ReplaceAllowList([]string{"111", "222", "333"})

	gw := newMockGateway()
	led := newMockLedger()
	e := testEngine(dir, gw, led)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Dispatch(context.Background(), Request{GroupFilter: directory.FilterAll, Body: "Reminder"}); err != nil {
				t.Errorf("dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	// 4 batches * 3 recipients, every one accounted for.
	if led.count() != 12 {
		t.Errorf("expected 12 ledger entries, got %d", led.count())
	}
}
