package creditline

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type stubStore struct {
	configs   map[string]CreditConfig
	records   map[string]CreditRecord
	details   map[string]DueDetail
	available map[string]Amount
	approved  map[string]map[string]Amount
}

func newStubStore() *stubStore {
	return &stubStore{
		configs:   map[string]CreditConfig{},
		records:   map[string]CreditRecord{},
		details:   map[string]DueDetail{},
		available: map[string]Amount{},
		approved:  map[string]map[string]Amount{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetConfig(ctx context.Context, hash CreditHash) (CreditConfig, error) {
	config, found := store.configs[hash.String()]
	if !found {
		return CreditConfig{}, ErrCreditNotFound
	}
	return config, nil
}

func (store *stubStore) PutConfig(ctx context.Context, hash CreditHash, borrower BorrowerID, config CreditConfig) error {
	store.configs[hash.String()] = config
	return nil
}

func (store *stubStore) GetRecord(ctx context.Context, hash CreditHash) (CreditRecord, DueDetail, error) {
	record, found := store.records[hash.String()]
	if !found {
		return CreditRecord{}, DueDetail{}, ErrCreditNotFound
	}
	return record, store.details[hash.String()], nil
}

func (store *stubStore) PutRecord(ctx context.Context, hash CreditHash, record CreditRecord, detail DueDetail) error {
	store.records[hash.String()] = record
	store.details[hash.String()] = detail
	return nil
}

func (store *stubStore) AvailableCredit(ctx context.Context, hash CreditHash) (Amount, error) {
	return store.available[hash.String()], nil
}

func (store *stubStore) SetAvailableCredit(ctx context.Context, hash CreditHash, available Amount) error {
	store.available[hash.String()] = available
	return nil
}

func (store *stubStore) ApprovedReceivableAmount(ctx context.Context, hash CreditHash, receivableID ReceivableID) (Amount, bool, error) {
	amounts, found := store.approved[hash.String()]
	if !found {
		return 0, false, nil
	}
	amount, found := amounts[receivableID.String()]
	return amount, found, nil
}

func (store *stubStore) PutApprovedReceivable(ctx context.Context, hash CreditHash, receivableID ReceivableID, faceAmount Amount) error {
	amounts, found := store.approved[hash.String()]
	if !found {
		amounts = map[string]Amount{}
		store.approved[hash.String()] = amounts
	}
	amounts[receivableID.String()] = faceAmount
	return nil
}

type stubReceivable struct {
	amount   Amount
	maturity int64
	owner    string
	heldBy   string
}

type stubRegistry struct {
	receivables map[string]stubReceivable
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{receivables: map[string]stubReceivable{}}
}

func (registry *stubRegistry) AmountOf(ctx context.Context, receivableID ReceivableID) (Amount, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return 0, fmt.Errorf("receivable %s not registered", receivableID)
	}
	return receivable.amount, nil
}

func (registry *stubRegistry) MaturityOf(ctx context.Context, receivableID ReceivableID) (int64, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return 0, fmt.Errorf("receivable %s not registered", receivableID)
	}
	return receivable.maturity, nil
}

func (registry *stubRegistry) OwnerOf(ctx context.Context, receivableID ReceivableID) (BorrowerID, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return BorrowerID{}, fmt.Errorf("receivable %s not registered", receivableID)
	}
	return NewBorrowerID(receivable.owner)
}

func (registry *stubRegistry) IsHeldBy(ctx context.Context, receivableID ReceivableID, holder Actor) (bool, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return false, nil
	}
	return receivable.heldBy == holder.String(), nil
}

type transfer struct {
	party  string
	amount Amount
}

type stubTreasury struct {
	ins  []transfer
	outs []transfer
}

func (treasury *stubTreasury) TransferIn(ctx context.Context, from BorrowerID, amount Amount) error {
	treasury.ins = append(treasury.ins, transfer{party: from.String(), amount: amount})
	return nil
}

func (treasury *stubTreasury) TransferOut(ctx context.Context, to BorrowerID, amount Amount) error {
	treasury.outs = append(treasury.outs, transfer{party: to.String(), amount: amount})
	return nil
}

type stubRoles struct {
	approvers map[string]bool
	services  map[string]bool
}

func (roles *stubRoles) IsApprover(ctx context.Context, caller Actor) (bool, error) {
	return roles.approvers[caller.String()], nil
}

func (roles *stubRoles) IsServiceAccount(ctx context.Context, caller Actor) (bool, error) {
	return roles.services[caller.String()], nil
}

type stubNotifier struct {
	events []Event
}

func (notifier *stubNotifier) Notify(ctx context.Context, event Event) {
	notifier.events = append(notifier.events, event)
}

type stubClock struct {
	now int64
}

func (clock *stubClock) Now() int64 {
	return clock.now
}

func unixAt(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
}

func mustBorrower(test *testing.T, raw string) BorrowerID {
	test.Helper()
	borrower, err := NewBorrowerID(raw)
	if err != nil {
		test.Fatalf("borrower id: %v", err)
	}
	return borrower
}

func mustReceivable(test *testing.T, raw string) ReceivableID {
	test.Helper()
	receivableID, err := NewReceivableID(raw)
	if err != nil {
		test.Fatalf("receivable id: %v", err)
	}
	return receivableID
}

func mustActor(test *testing.T, raw string) Actor {
	test.Helper()
	actor, err := NewActor(raw)
	if err != nil {
		test.Fatalf("actor: %v", err)
	}
	return actor
}

func mustAmount(test *testing.T, raw int64) Amount {
	test.Helper()
	amount, err := NewAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func mustConfig(test *testing.T, creditLimit int64, numPeriods int, yieldBps int64, committed int64, start int64, duration PeriodDuration, autoApprove bool) CreditConfig {
	test.Helper()
	config, err := NewCreditConfig(Amount(creditLimit), numPeriods, yieldBps, Amount(committed), start, duration, autoApprove)
	if err != nil {
		test.Fatalf("credit config: %v", err)
	}
	return config
}

type testRig struct {
	store       *stubStore
	registry    *stubRegistry
	treasury    *stubTreasury
	roles       *stubRoles
	notifier    *stubNotifier
	clock       *stubClock
	switchboard *StaticSwitchboard
	settings    PoolSettings
	manager     *Manager
	engine      *Engine
}

func newTestRig(test *testing.T, settings PoolSettings) *testRig {
	test.Helper()
	rig := &testRig{
		store:       newStubStore(),
		registry:    newStubRegistry(),
		treasury:    &stubTreasury{},
		roles:       &stubRoles{approvers: map[string]bool{"approver": true}, services: map[string]bool{"servicer": true}},
		notifier:    &stubNotifier{},
		clock:       &stubClock{now: unixAt(2024, time.January, 16)},
		switchboard: &StaticSwitchboard{PoolEnabled: true},
		settings:    settings,
	}
	source := StaticSettings{Settings: settings}
	manager, err := NewManager(rig.store, rig.registry, rig.roles, source, rig.clock.Now, WithManagerNotifier(rig.notifier))
	if err != nil {
		test.Fatalf("manager: %v", err)
	}
	rig.manager = manager
	engine, err := NewEngine(rig.store, manager, rig.registry, rig.treasury, rig.switchboard, rig.roles, source, Actor{value: "pool-custodian"}, rig.clock.Now, WithNotifier(rig.notifier))
	if err != nil {
		test.Fatalf("engine: %v", err)
	}
	rig.engine = engine
	return rig
}

func defaultSettings() PoolSettings {
	return PoolSettings{
		AdvanceRateBps:       8000,
		LateFeeBps:           2400,
		LatePaymentGraceDays: 5,
		MinPrincipalRateBps:  100,
	}
}
