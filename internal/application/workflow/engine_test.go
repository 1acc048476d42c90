package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/event"
	domainwf "github.com/garyjia/travel-approval/internal/domain/workflow"
)

// Mock implementations

type storedApplication struct {
	status    domainwf.State
	remark    string
	updatedBy string
	updatedAt time.Time
}

type mockStore struct {
	mu        sync.Mutex
	apps      map[int64]*storedApplication
	history   []*entity.StatusHistory
	getErr    error
	writeErr  error
	appendErr error

	// readBarrier, when set, holds every GetStatus caller until all have read
	readBarrier *sync.WaitGroup
}

func newMockStore() *mockStore {
	return &mockStore{apps: make(map[int64]*storedApplication)}
}

func (m *mockStore) put(id int64, status domainwf.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[id] = &storedApplication{status: status}
}

func (m *mockStore) get(id int64) storedApplication {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.apps[id]
}

func (m *mockStore) historyFor(id int64) []*entity.StatusHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.StatusHistory
	for _, h := range m.history {
		if h.ApplicationID == id {
			result = append(result, h)
		}
	}
	return result
}

func (m *mockStore) GetStatus(ctx context.Context, id int64) (domainwf.State, error) {
	m.mu.Lock()
	if m.getErr != nil {
		m.mu.Unlock()
		return "", m.getErr
	}
	app, exists := m.apps[id]
	var status domainwf.State
	if exists {
		status = app.status
	}
	barrier := m.readBarrier
	m.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}

	if !exists {
		return "", domainwf.ErrNotFound
	}
	return status, nil
}

func (m *mockStore) ConditionalWriteStatus(ctx context.Context, id int64, expected, next domainwf.State, remark, actor string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return false, m.writeErr
	}
	app, exists := m.apps[id]
	if !exists || app.status != expected {
		return false, nil
	}
	app.status = next
	app.remark = remark
	app.updatedBy = actor
	app.updatedAt = at
	return true, nil
}

func (m *mockStore) AppendHistory(ctx context.Context, id int64, record *entity.StatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	copied := *record
	copied.ID = int64(len(m.history) + 1)
	m.history = append(m.history, &copied)
	return nil
}

// snapshot and restore give the mock transaction rollback semantics
func (m *mockStore) snapshot() (map[int64]storedApplication, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apps := make(map[int64]storedApplication, len(m.apps))
	for id, app := range m.apps {
		apps[id] = *app
	}
	return apps, len(m.history)
}

func (m *mockStore) restore(apps map[int64]storedApplication, historyLen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, app := range apps {
		restored := app
		m.apps[id] = &restored
	}
	m.history = m.history[:historyLen]
}

// mockTxManager serializes transactions like a BEGIN IMMEDIATE store
type mockTxManager struct {
	mu        sync.Mutex
	store     *mockStore
	beginErr  error
	commits   int
	rollbacks int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return m.beginErr
	}

	apps, historyLen := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(apps, historyLen)
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) error {
	return nil
}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) Handlers(eventType event.Type) []string {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) Events() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*event.Event(nil), m.events...)
}

type observation struct {
	action  string
	outcome string
}

type mockRecorder struct {
	mu           sync.Mutex
	observations []observation
}

func (m *mockRecorder) ObserveTransition(action, outcome string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, observation{action: action, outcome: outcome})
}

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(opts ...EngineOption) (*engineImpl, *mockStore, *mockTxManager) {
	store := newMockStore()
	txManager := &mockTxManager{store: store}
	opts = append([]EngineOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	engine := NewEngine(store, txManager, opts...).(*engineImpl)
	return engine, store, txManager
}

func actorWith(id string, perms ...domainwf.Permission) domainwf.Actor {
	return domainwf.Actor{ID: id, Permissions: domainwf.NewPermissionSet(perms...)}
}

var allPermissions = actorWith("admin",
	domainwf.PermissionChecking,
	domainwf.PermissionRecommending,
	domainwf.PermissionApproving,
	domainwf.PermissionRequireResubmit,
)

// Test factory

func TestBuildApplicationStateMachine(t *testing.T) {
	tests := []struct {
		name         string
		initialState domainwf.State
		action       domainwf.Action
		wantState    domainwf.State
		wantRemark   bool
		wantPerm     domainwf.Permission
	}{
		{"PENDING -> CHECKED on CHECK", domainwf.StatePending, domainwf.ActionCheck, domainwf.StateChecked, false, domainwf.PermissionChecking},
		{"RESUBMIT_PENDING -> CHECKED on CHECK", domainwf.StateResubmitPending, domainwf.ActionCheck, domainwf.StateChecked, false, domainwf.PermissionChecking},
		{"CHECKED -> RECOMMENDED on RECOMMEND", domainwf.StateChecked, domainwf.ActionRecommend, domainwf.StateRecommended, false, domainwf.PermissionRecommending},
		{"CHECKED -> NOT_RECOMMENDED on DO_NOT_RECOMMEND", domainwf.StateChecked, domainwf.ActionDoNotRecommend, domainwf.StateNotRecommended, true, domainwf.PermissionRecommending},
		{"CHECKED -> RESUBMIT_REQUIRED on REQUIRE_RESUBMIT_AT_CHECKED", domainwf.StateChecked, domainwf.ActionRequireResubmitAtChecked, domainwf.StateResubmitRequired, true, domainwf.PermissionRecommending},
		{"RECOMMENDED -> APPROVED on APPROVE", domainwf.StateRecommended, domainwf.ActionApprove, domainwf.StateApproved, false, domainwf.PermissionApproving},
		{"RECOMMENDED -> REJECTED on REJECT", domainwf.StateRecommended, domainwf.ActionReject, domainwf.StateRejected, true, domainwf.PermissionApproving},
		{"RECOMMENDED -> RESUBMIT_REQUIRED on REQUIRE_RESUBMIT_AT_RECOMMENDED", domainwf.StateRecommended, domainwf.ActionRequireResubmitAtRecommended, domainwf.StateResubmitRequired, true, domainwf.PermissionApproving},
		{"RESUBMIT_REQUIRED -> RESUBMIT_PENDING on RESUBMIT", domainwf.StateResubmitRequired, domainwf.ActionResubmit, domainwf.StateResubmitPending, false, domainwf.PermissionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := BuildApplicationStateMachine(tt.initialState)

			tr, err := machine.Fire(tt.action, allPermissions.Permissions, "remark")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if machine.State() != tt.wantState {
				t.Errorf("expected state %s, got %s", tt.wantState, machine.State())
			}
			if tr.RemarkRequired != tt.wantRemark {
				t.Errorf("expected remark required %v, got %v", tt.wantRemark, tr.RemarkRequired)
			}
			if tr.Permission != tt.wantPerm {
				t.Errorf("expected permission %s, got %s", tt.wantPerm, tr.Permission)
			}
		})
	}
}

func TestBuildApplicationStateMachine_UnlistedPairsAreIllegal(t *testing.T) {
	legal := map[domainwf.State]map[domainwf.Action]bool{
		domainwf.StatePending:          {domainwf.ActionCheck: true},
		domainwf.StateResubmitPending:  {domainwf.ActionCheck: true},
		domainwf.StateChecked:          {domainwf.ActionRecommend: true, domainwf.ActionDoNotRecommend: true, domainwf.ActionRequireResubmitAtChecked: true},
		domainwf.StateRecommended:      {domainwf.ActionApprove: true, domainwf.ActionReject: true, domainwf.ActionRequireResubmitAtRecommended: true},
		domainwf.StateResubmitRequired: {domainwf.ActionResubmit: true},
	}

	for _, state := range domainwf.AllStates {
		for _, action := range actionOrder() {
			if legal[state][action] {
				continue
			}
			machine := BuildApplicationStateMachine(state)
			_, err := machine.Fire(action, allPermissions.Permissions, "remark")
			if !errors.Is(err, domainwf.ErrIllegalTransition) {
				t.Errorf("%s from %s: expected ErrIllegalTransition, got %v", action, state, err)
			}
			if machine.State() != state {
				t.Errorf("%s from %s: state moved to %s", action, state, machine.State())
			}
		}
	}
}

func actionOrder() []domainwf.Action {
	return []domainwf.Action{
		domainwf.ActionCheck,
		domainwf.ActionRecommend,
		domainwf.ActionDoNotRecommend,
		domainwf.ActionRequireResubmitAtChecked,
		domainwf.ActionApprove,
		domainwf.ActionReject,
		domainwf.ActionRequireResubmitAtRecommended,
		domainwf.ActionResubmit,
	}
}

// Test engine

func TestNewEngine(t *testing.T) {
	store := newMockStore()
	engine := NewEngine(store, &mockTxManager{store: store})

	if engine == nil {
		t.Fatal("expected engine to be created")
	}
}

func TestEngine_RequestTransition_ReviewScenario(t *testing.T) {
	recorder := &mockRecorder{}
	disp := &mockDispatcher{}
	engine, store, _ := newTestEngine(WithDispatcher(disp), WithRecorder(recorder))
	ctx := context.Background()
	store.put(1, domainwf.StatePending)

	// Checker with only the checking capability, no remark
	next, err := engine.RequestTransition(ctx, 1, domainwf.ActionCheck, "", actorWith("checker", domainwf.PermissionChecking))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if next != domainwf.StateChecked {
		t.Fatalf("expected CHECKED, got %s", next)
	}

	// Recommender asks for resubmission
	next, err = engine.RequestTransition(ctx, 1, domainwf.ActionRequireResubmitAtChecked, "missing passport copy", actorWith("recommender", domainwf.PermissionRecommending))
	if err != nil {
		t.Fatalf("require resubmit failed: %v", err)
	}
	if next != domainwf.StateResubmitRequired {
		t.Fatalf("expected RESUBMIT_REQUIRED, got %s", next)
	}

	app := store.get(1)
	if app.status != domainwf.StateResubmitRequired {
		t.Errorf("expected stored status RESUBMIT_REQUIRED, got %s", app.status)
	}
	if app.remark != "missing passport copy" {
		t.Errorf("expected remark stored verbatim, got %q", app.remark)
	}
	if app.updatedBy != "recommender" || !app.updatedAt.Equal(fixedNow) {
		t.Errorf("unexpected attribution: %s at %v", app.updatedBy, app.updatedAt)
	}

	history := store.historyFor(1)
	if len(history) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(history))
	}
	if history[0].PreviousStatus != domainwf.StatePending || history[0].NewStatus != domainwf.StateChecked {
		t.Errorf("unexpected first record: %+v", history[0])
	}
	if history[1].PreviousStatus != domainwf.StateChecked {
		t.Errorf("expected history to record pre-transition status CHECKED, got %s", history[1].PreviousStatus)
	}
	if history[1].Remark != "missing passport copy" || history[1].Actor != "recommender" {
		t.Errorf("unexpected second record: %+v", history[1])
	}

	events := disp.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 status events, got %d", len(events))
	}
	if events[1].Type != event.TypeStatusChanged {
		t.Errorf("expected status_changed event, got %s", events[1].Type)
	}
	if got := events[1].GetPayloadString(event.PayloadPreviousStatus); got != "CHECKED" {
		t.Errorf("expected previous_status CHECKED, got %s", got)
	}
	if got := events[1].GetPayloadString(event.PayloadNewStatus); got != "RESUBMIT_REQUIRED" {
		t.Errorf("expected new_status RESUBMIT_REQUIRED, got %s", got)
	}

	if len(recorder.observations) != 2 || recorder.observations[0].outcome != OutcomeOK {
		t.Errorf("unexpected observations: %+v", recorder.observations)
	}
}

func TestEngine_RequestTransition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  domainwf.State
		action  domainwf.Action
		remark  string
		actor   domainwf.Actor
		wantErr error
	}{
		{"unknown action", domainwf.StatePending, domainwf.Action("ESCALATE"), "", allPermissions, domainwf.ErrInvalidAction},
		{"resubmit is not requestable", domainwf.StateResubmitRequired, domainwf.ActionResubmit, "", allPermissions, domainwf.ErrIllegalTransition},
		{"approve from pending", domainwf.StatePending, domainwf.ActionApprove, "", allPermissions, domainwf.ErrIllegalTransition},
		{"check from resubmit required", domainwf.StateResubmitRequired, domainwf.ActionCheck, "", allPermissions, domainwf.ErrIllegalTransition},
		{"checker rejects recommended", domainwf.StateRecommended, domainwf.ActionReject, "too expensive", actorWith("checker", domainwf.PermissionChecking), domainwf.ErrUnauthorized},
		{"approver checks pending", domainwf.StatePending, domainwf.ActionCheck, "", actorWith("approver", domainwf.PermissionApproving), domainwf.ErrUnauthorized},
		{"no permissions", domainwf.StateChecked, domainwf.ActionRecommend, "", domainwf.Actor{ID: "nobody"}, domainwf.ErrUnauthorized},
		{"resubmit capability alone", domainwf.StateChecked, domainwf.ActionRequireResubmitAtChecked, "why", actorWith("r", domainwf.PermissionRequireResubmit), domainwf.ErrUnauthorized},
		{"unauthorized before remark", domainwf.StateRecommended, domainwf.ActionReject, "", actorWith("checker", domainwf.PermissionChecking), domainwf.ErrUnauthorized},
		{"illegal before unauthorized", domainwf.StateApproved, domainwf.ActionReject, "", domainwf.Actor{ID: "nobody"}, domainwf.ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &mockRecorder{}
			engine, store, tx := newTestEngine(WithRecorder(recorder))
			store.put(7, tt.status)

			next, err := engine.RequestTransition(context.Background(), 7, tt.action, tt.remark, tt.actor)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if next != "" {
				t.Errorf("expected no state on failure, got %s", next)
			}
			if got := store.get(7).status; got != tt.status {
				t.Errorf("status changed from %s to %s", tt.status, got)
			}
			if len(store.historyFor(7)) != 0 {
				t.Error("expected no history on failure")
			}
			if tx.commits != 0 {
				t.Error("expected no transaction to commit")
			}
			if len(recorder.observations) != 1 || recorder.observations[0].outcome != Outcome(tt.wantErr) {
				t.Errorf("unexpected observations: %+v", recorder.observations)
			}
		})
	}
}

func TestEngine_RequestTransition_NotFound(t *testing.T) {
	engine, _, _ := newTestEngine()

	_, err := engine.RequestTransition(context.Background(), 404, domainwf.ActionCheck, "", allPermissions)
	if !errors.Is(err, domainwf.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEngine_RequestTransition_TerminalStates(t *testing.T) {
	for _, state := range []domainwf.State{domainwf.StateNotRecommended, domainwf.StateApproved, domainwf.StateRejected} {
		for _, action := range actionOrder() {
			engine, store, _ := newTestEngine()
			store.put(3, state)

			_, err := engine.RequestTransition(context.Background(), 3, action, "remark", allPermissions)
			if !errors.Is(err, domainwf.ErrIllegalTransition) {
				t.Errorf("%s from %s: expected ErrIllegalTransition, got %v", action, state, err)
			}
			if got := store.get(3).status; got != state {
				t.Errorf("%s from %s: status changed to %s", action, state, got)
			}
		}
	}
}

func TestEngine_RequestTransition_RemarkRules(t *testing.T) {
	tests := []struct {
		from   domainwf.State
		action domainwf.Action
		needed bool
	}{
		{domainwf.StatePending, domainwf.ActionCheck, false},
		{domainwf.StateChecked, domainwf.ActionRecommend, false},
		{domainwf.StateRecommended, domainwf.ActionApprove, false},
		{domainwf.StateChecked, domainwf.ActionDoNotRecommend, true},
		{domainwf.StateChecked, domainwf.ActionRequireResubmitAtChecked, true},
		{domainwf.StateRecommended, domainwf.ActionReject, true},
		{domainwf.StateRecommended, domainwf.ActionRequireResubmitAtRecommended, true},
	}

	for _, tt := range tests {
		for _, remark := range []string{"", "   \t\n"} {
			t.Run(tt.action.String(), func(t *testing.T) {
				engine, store, _ := newTestEngine()
				store.put(5, tt.from)

				_, err := engine.RequestTransition(context.Background(), 5, tt.action, remark, allPermissions)
				if tt.needed {
					if !errors.Is(err, domainwf.ErrRemarkRequired) {
						t.Fatalf("expected ErrRemarkRequired, got %v", err)
					}
					if store.get(5).status != tt.from {
						t.Error("status changed despite missing remark")
					}
					return
				}
				if err != nil {
					t.Fatalf("expected success with blank remark, got %v", err)
				}
			})
		}
	}
}

func TestEngine_RequestTransition_RemarkStoredVerbatim(t *testing.T) {
	engine, store, _ := newTestEngine()
	store.put(6, domainwf.StateRecommended)

	remark := "  over budget: hotel exceeds cap\n"
	if _, err := engine.RequestTransition(context.Background(), 6, domainwf.ActionReject, remark, allPermissions); err != nil {
		t.Fatalf("RequestTransition() error = %v", err)
	}

	if got := store.get(6).remark; got != remark {
		t.Errorf("stored remark = %q, want %q", got, remark)
	}
	history := store.historyFor(6)
	if len(history) != 1 || history[0].Remark != remark {
		t.Fatalf("history remark = %+v, want %q", history, remark)
	}
}

func TestEngine_RequestTransition_ApproverScope(t *testing.T) {
	approver := actorWith("approver", domainwf.PermissionApproving)

	for _, action := range []domainwf.Action{domainwf.ActionApprove, domainwf.ActionReject, domainwf.ActionRequireResubmitAtRecommended} {
		engine, store, _ := newTestEngine()
		store.put(1, domainwf.StateRecommended)
		if _, err := engine.RequestTransition(context.Background(), 1, action, "reason", approver); err != nil {
			t.Errorf("%s: unexpected error %v", action, err)
		}
	}

	engine, store, _ := newTestEngine()
	store.put(1, domainwf.StatePending)
	if _, err := engine.RequestTransition(context.Background(), 1, domainwf.ActionCheck, "", approver); !errors.Is(err, domainwf.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for CHECK, got %v", err)
	}
}

func TestEngine_RequestTransition_StoreFailuresRollBack(t *testing.T) {
	t.Run("history append fails", func(t *testing.T) {
		engine, store, tx := newTestEngine()
		store.put(1, domainwf.StatePending)
		store.appendErr = errors.New("disk full")

		_, err := engine.RequestTransition(context.Background(), 1, domainwf.ActionCheck, "", allPermissions)
		if err == nil {
			t.Fatal("expected error")
		}
		if got := store.get(1).status; got != domainwf.StatePending {
			t.Errorf("expected rollback to PENDING, got %s", got)
		}
		if tx.rollbacks != 1 {
			t.Errorf("expected 1 rollback, got %d", tx.rollbacks)
		}
		if Outcome(err) != OutcomeError {
			t.Errorf("expected error outcome, got %s", Outcome(err))
		}
	})

	t.Run("status write fails", func(t *testing.T) {
		disp := &mockDispatcher{}
		engine, store, _ := newTestEngine(WithDispatcher(disp))
		store.put(1, domainwf.StatePending)
		store.writeErr = errors.New("database is locked")

		_, err := engine.RequestTransition(context.Background(), 1, domainwf.ActionCheck, "", allPermissions)
		if err == nil {
			t.Fatal("expected error")
		}
		if len(store.historyFor(1)) != 0 {
			t.Error("expected no history")
		}
		if len(disp.Events()) != 0 {
			t.Error("expected no status event for failed transition")
		}
	})

	t.Run("transaction cannot begin", func(t *testing.T) {
		engine, store, tx := newTestEngine()
		store.put(1, domainwf.StatePending)
		tx.beginErr = errors.New("database is closed")

		if _, err := engine.RequestTransition(context.Background(), 1, domainwf.ActionCheck, "", allPermissions); err == nil {
			t.Fatal("expected error")
		}
		if got := store.get(1).status; got != domainwf.StatePending {
			t.Errorf("status changed to %s", got)
		}
	})
}

func TestEngine_RequestTransition_ConcurrentConflict(t *testing.T) {
	engine, store, _ := newTestEngine()
	store.put(9, domainwf.StateChecked)

	// Both requests read CHECKED before either writes
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	store.readBarrier = barrier

	actions := []domainwf.Action{domainwf.ActionRecommend, domainwf.ActionDoNotRecommend}
	results := make([]error, len(actions))

	var g errgroup.Group
	for i, action := range actions {
		g.Go(func() error {
			_, err := engine.RequestTransition(context.Background(), 9, action, "competing review", allPermissions)
			results[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var succeeded, conflicted int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domainwf.ErrConflict):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Fatalf("expected one success and one conflict, got %d and %d", succeeded, conflicted)
	}
	if n := len(store.historyFor(9)); n != 1 {
		t.Errorf("expected exactly 1 history record, got %d", n)
	}
	if errors.Is(results[0], domainwf.ErrIllegalTransition) || errors.Is(results[1], domainwf.ErrIllegalTransition) {
		t.Error("conflict must be distinct from illegal transition")
	}
}

func TestEngine_NotifyResubmission(t *testing.T) {
	disp := &mockDispatcher{}
	engine, store, _ := newTestEngine(WithDispatcher(disp))
	store.put(2, domainwf.StateResubmitRequired)

	next, err := engine.NotifyResubmission(context.Background(), 2, "applicant")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != domainwf.StateResubmitPending {
		t.Fatalf("expected RESUBMIT_PENDING, got %s", next)
	}

	app := store.get(2)
	if app.remark != domainwf.ResubmittedRemark {
		t.Errorf("expected forced remark, got %q", app.remark)
	}
	history := store.historyFor(2)
	if len(history) != 1 || history[0].Action != domainwf.ActionResubmit || history[0].PreviousStatus != domainwf.StateResubmitRequired {
		t.Fatalf("unexpected history: %+v", history)
	}

	// RESUBMIT_PENDING is reviewable again like PENDING
	if _, err := engine.RequestTransition(context.Background(), 2, domainwf.ActionCheck, "", actorWith("checker", domainwf.PermissionChecking)); err != nil {
		t.Errorf("expected CHECK from RESUBMIT_PENDING, got %v", err)
	}
}

func TestEngine_NotifyResubmission_WrongState(t *testing.T) {
	for _, state := range []domainwf.State{domainwf.StatePending, domainwf.StateChecked, domainwf.StateResubmitPending, domainwf.StateApproved} {
		engine, store, _ := newTestEngine()
		store.put(2, state)

		_, err := engine.NotifyResubmission(context.Background(), 2, "applicant")
		if !errors.Is(err, domainwf.ErrIllegalTransition) {
			t.Errorf("%s: expected ErrIllegalTransition, got %v", state, err)
		}
	}

	engine, _, _ := newTestEngine()
	if _, err := engine.NotifyResubmission(context.Background(), 99, "applicant"); !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEngine_CanRequestTransition(t *testing.T) {
	engine, _, _ := newTestEngine()

	tests := []struct {
		name   string
		status domainwf.State
		perms  domainwf.PermissionSet
		want   []domainwf.Action
	}{
		{"checker on pending", domainwf.StatePending, domainwf.NewPermissionSet(domainwf.PermissionChecking), []domainwf.Action{domainwf.ActionCheck}},
		{"approver on pending", domainwf.StatePending, domainwf.NewPermissionSet(domainwf.PermissionApproving), []domainwf.Action{}},
		{"recommender on checked", domainwf.StateChecked, domainwf.NewPermissionSet(domainwf.PermissionRecommending), []domainwf.Action{domainwf.ActionRecommend, domainwf.ActionDoNotRecommend, domainwf.ActionRequireResubmitAtChecked}},
		{"approver on recommended", domainwf.StateRecommended, domainwf.NewPermissionSet(domainwf.PermissionApproving), []domainwf.Action{domainwf.ActionApprove, domainwf.ActionReject, domainwf.ActionRequireResubmitAtRecommended}},
		{"anyone on resubmit required", domainwf.StateResubmitRequired, allPermissions.Permissions, []domainwf.Action{}},
		{"terminal", domainwf.StateApproved, allPermissions.Permissions, []domainwf.Action{}},
		{"unknown status", domainwf.State("ARCHIVED"), allPermissions.Permissions, []domainwf.Action{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.CanRequestTransition(tt.status, tt.perms)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

// Every advertised action must pass enforcement when a remark is supplied
func TestEngine_CanRequestTransitionMatchesEnforcement(t *testing.T) {
	permSets := []domainwf.PermissionSet{
		0,
		domainwf.NewPermissionSet(domainwf.PermissionChecking),
		domainwf.NewPermissionSet(domainwf.PermissionRecommending),
		domainwf.NewPermissionSet(domainwf.PermissionApproving),
		domainwf.NewPermissionSet(domainwf.PermissionRequireResubmit),
		allPermissions.Permissions,
	}

	for _, state := range domainwf.AllStates {
		for _, perms := range permSets {
			probe, _, _ := newTestEngine()
			advertised := map[domainwf.Action]bool{}
			for _, a := range probe.CanRequestTransition(state, perms) {
				advertised[a] = true
			}

			for _, action := range actionOrder() {
				engine, store, _ := newTestEngine()
				store.put(1, state)
				_, err := engine.RequestTransition(context.Background(), 1, action, "remark", domainwf.Actor{ID: "a", Permissions: perms})
				if (err == nil) != advertised[action] {
					t.Errorf("%s from %s with %s: advertised=%v err=%v", action, state, perms, advertised[action], err)
				}
			}
		}
	}
}

func TestEngine_CanEdit(t *testing.T) {
	engine, _, _ := newTestEngine()

	editable := map[domainwf.State]bool{
		"":                            true,
		domainwf.StatePending:         true,
		domainwf.StateResubmitPending: true,
	}
	for _, state := range append([]domainwf.State{""}, domainwf.AllStates...) {
		if got := engine.CanEdit(state); got != editable[state] {
			t.Errorf("CanEdit(%q) = %v, want %v", state, got, editable[state])
		}
	}
}

func TestEngine_GetCurrentState(t *testing.T) {
	engine, store, _ := newTestEngine()
	store.put(4, domainwf.StateRecommended)

	state, err := engine.GetCurrentState(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != domainwf.StateRecommended {
		t.Errorf("expected RECOMMENDED, got %s", state)
	}

	store.put(5, domainwf.State("Not Recommended"))
	if _, err := engine.GetCurrentState(context.Background(), 5); !errors.Is(err, domainwf.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for unnormalized status, got %v", err)
	}
}

func TestEngine_HandleEvent(t *testing.T) {
	t.Run("edit in resubmit required resubmits", func(t *testing.T) {
		engine, store, _ := newTestEngine()
		store.put(1, domainwf.StateResubmitRequired)

		evt := event.NewEvent(event.TypeApplicationEdited, 1, "applicant", nil)
		if err := engine.HandleEvent(context.Background(), evt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := store.get(1).status; got != domainwf.StateResubmitPending {
			t.Errorf("expected RESUBMIT_PENDING, got %s", got)
		}
		if got := store.get(1).updatedBy; got != "applicant" {
			t.Errorf("expected edit actor attribution, got %s", got)
		}
	})

	t.Run("edit in pending is ignored", func(t *testing.T) {
		engine, store, _ := newTestEngine()
		store.put(1, domainwf.StatePending)

		evt := event.NewEvent(event.TypeApplicationEdited, 1, "applicant", nil)
		if err := engine.HandleEvent(context.Background(), evt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(store.historyFor(1)) != 0 {
			t.Error("expected no history for plain edit")
		}
	})

	t.Run("status changed is a no-op", func(t *testing.T) {
		engine, _, _ := newTestEngine()
		evt := event.NewEvent(event.TypeStatusChanged, 1, "system", nil)
		if err := engine.HandleEvent(context.Background(), evt); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid events", func(t *testing.T) {
		engine, _, _ := newTestEngine()
		if err := engine.HandleEvent(context.Background(), nil); err == nil {
			t.Error("expected error for nil event")
		}
		if err := engine.HandleEvent(context.Background(), event.NewEvent(event.TypeApplicationEdited, 0, "a", nil)); err == nil {
			t.Error("expected error for missing application ID")
		}
		if err := engine.HandleEvent(context.Background(), event.NewEvent(event.Type("other"), 1, "a", nil)); err == nil {
			t.Error("expected error for unknown event type")
		}
	})

	t.Run("missing application", func(t *testing.T) {
		engine, _, _ := newTestEngine()
		err := engine.HandleEvent(context.Background(), event.NewEvent(event.TypeApplicationEdited, 42, "a", nil))
		if !errors.Is(err, domainwf.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{domainwf.ErrIllegalTransition, OutcomeIllegal},
		{domainwf.ErrUnauthorized, OutcomeUnauthorized},
		{domainwf.ErrRemarkRequired, OutcomeRemarkRequired},
		{domainwf.ErrConflict, OutcomeConflict},
		{domainwf.ErrNotFound, OutcomeNotFound},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
