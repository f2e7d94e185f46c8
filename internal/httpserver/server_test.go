package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/creditline/internal/auth"
	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "creditline"
)

type memStore struct {
	configs   map[string]creditline.CreditConfig
	borrowers map[string]string
	records   map[string]creditline.CreditRecord
	details   map[string]creditline.DueDetail
	available map[string]creditline.Amount
	approved  map[string]creditline.Amount
}

func newMemStore() *memStore {
	return &memStore{
		configs:   map[string]creditline.CreditConfig{},
		borrowers: map[string]string{},
		records:   map[string]creditline.CreditRecord{},
		details:   map[string]creditline.DueDetail{},
		available: map[string]creditline.Amount{},
		approved:  map[string]creditline.Amount{},
	}
}

func (store *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore creditline.Store) error) error {
	return fn(ctx, store)
}

func (store *memStore) GetConfig(ctx context.Context, hash creditline.CreditHash) (creditline.CreditConfig, error) {
	config, found := store.configs[hash.String()]
	if !found {
		return creditline.CreditConfig{}, creditline.ErrCreditNotFound
	}
	return config, nil
}

func (store *memStore) PutConfig(ctx context.Context, hash creditline.CreditHash, borrower creditline.BorrowerID, config creditline.CreditConfig) error {
	store.configs[hash.String()] = config
	store.borrowers[hash.String()] = borrower.String()
	return nil
}

func (store *memStore) GetRecord(ctx context.Context, hash creditline.CreditHash) (creditline.CreditRecord, creditline.DueDetail, error) {
	record, found := store.records[hash.String()]
	if !found {
		return creditline.CreditRecord{}, creditline.DueDetail{}, creditline.ErrCreditNotFound
	}
	return record, store.details[hash.String()], nil
}

func (store *memStore) PutRecord(ctx context.Context, hash creditline.CreditHash, record creditline.CreditRecord, detail creditline.DueDetail) error {
	store.records[hash.String()] = record
	store.details[hash.String()] = detail
	return nil
}

func (store *memStore) AvailableCredit(ctx context.Context, hash creditline.CreditHash) (creditline.Amount, error) {
	return store.available[hash.String()], nil
}

func (store *memStore) SetAvailableCredit(ctx context.Context, hash creditline.CreditHash, available creditline.Amount) error {
	store.available[hash.String()] = available
	return nil
}

func (store *memStore) ApprovedReceivableAmount(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID) (creditline.Amount, bool, error) {
	amount, found := store.approved[hash.String()+"/"+receivableID.String()]
	return amount, found, nil
}

func (store *memStore) PutApprovedReceivable(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID, faceAmount creditline.Amount) error {
	store.approved[hash.String()+"/"+receivableID.String()] = faceAmount
	return nil
}

type memReceivable struct {
	amount creditline.Amount
	owner  string
	heldBy string
}

type memRegistry struct {
	receivables map[string]memReceivable
}

func (registry *memRegistry) AmountOf(ctx context.Context, receivableID creditline.ReceivableID) (creditline.Amount, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return 0, fmt.Errorf("receivable %s not registered", receivableID)
	}
	return receivable.amount, nil
}

func (registry *memRegistry) MaturityOf(ctx context.Context, receivableID creditline.ReceivableID) (int64, error) {
	return 0, nil
}

func (registry *memRegistry) OwnerOf(ctx context.Context, receivableID creditline.ReceivableID) (creditline.BorrowerID, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return creditline.BorrowerID{}, fmt.Errorf("receivable %s not registered", receivableID)
	}
	return creditline.NewBorrowerID(receivable.owner)
}

func (registry *memRegistry) IsHeldBy(ctx context.Context, receivableID creditline.ReceivableID, holder creditline.Actor) (bool, error) {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return false, nil
	}
	return receivable.heldBy == holder.String(), nil
}

func (registry *memRegistry) RegisterReceivable(ctx context.Context, receivableID creditline.ReceivableID, owner creditline.BorrowerID, faceAmount creditline.Amount, maturityUnixUTC int64) error {
	if _, exists := registry.receivables[receivableID.String()]; exists {
		return creditline.ErrReceivableAlreadyRegistered
	}
	registry.receivables[receivableID.String()] = memReceivable{amount: faceAmount, owner: owner.String(), heldBy: owner.String()}
	return nil
}

func (registry *memRegistry) Pledge(ctx context.Context, receivableID creditline.ReceivableID, holder creditline.Actor) error {
	receivable, found := registry.receivables[receivableID.String()]
	if !found {
		return creditline.ErrReceivableNotFound
	}
	receivable.heldBy = holder.String()
	registry.receivables[receivableID.String()] = receivable
	return nil
}

type memTreasury struct{}

func (memTreasury) TransferIn(ctx context.Context, from creditline.BorrowerID, amount creditline.Amount) error {
	return nil
}

func (memTreasury) TransferOut(ctx context.Context, to creditline.BorrowerID, amount creditline.Amount) error {
	return nil
}

func newTestRouter(test *testing.T) (*gin.Engine, *memRegistry) {
	test.Helper()
	store := newMemStore()
	registry := &memRegistry{receivables: map[string]memReceivable{}}
	roles := auth.NewRoleSet([]string{"approver"}, []string{"servicer"})
	settings := creditline.StaticSettings{Settings: creditline.PoolSettings{
		AdvanceRateBps:       10_000,
		LateFeeBps:           2400,
		LatePaymentGraceDays: 5,
		MinPrincipalRateBps:  100,
	}}
	clock := func() int64 { return time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC).Unix() }
	holder, err := creditline.NewActor("pool-custodian")
	if err != nil {
		test.Fatalf("holder: %v", err)
	}
	manager, err := creditline.NewManager(store, registry, roles, settings, clock)
	if err != nil {
		test.Fatalf("manager: %v", err)
	}
	engine, err := creditline.NewEngine(store, manager, registry, memTreasury{}, creditline.StaticSwitchboard{PoolEnabled: true}, roles, settings, holder, clock)
	if err != nil {
		test.Fatalf("engine: %v", err)
	}
	validator, err := auth.NewValidator([]byte(testSigningKey), testIssuer)
	if err != nil {
		test.Fatalf("validator: %v", err)
	}
	cfg := Config{TokenSigningKey: testSigningKey, TokenIssuer: testIssuer}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("config: %v", err)
	}
	server := NewServer(zap.NewNop(), manager, engine, registry, roles)
	return NewRouter(cfg, validator, server), registry
}

func bearerToken(test *testing.T, subject string) string {
	test.Helper()
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSigningKey))
	if err != nil {
		test.Fatalf("token signing failed: %v", err)
	}
	return "Bearer " + signed
}

func doRequest(test *testing.T, router *gin.Engine, method string, path string, subject string, payload map[string]any) *httptest.ResponseRecorder {
	test.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			test.Fatalf("marshal failed: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if subject != "" {
		request.Header.Set("Authorization", bearerToken(test, subject))
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestHealthz(test *testing.T) {
	router, _ := newTestRouter(test)
	recorder := doRequest(test, router, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestAPIRequiresBearerToken(test *testing.T) {
	router, _ := newTestRouter(test)
	recorder := doRequest(test, router, http.MethodGet, "/api/borrowers/acme/due", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestReceivableRegistrationEndpoints(test *testing.T) {
	router, registry := newTestRouter(test)

	recorder := doRequest(test, router, http.MethodPost, "/api/receivables/inv-1", "approver", map[string]any{
		"owner":       "acme",
		"face_amount": 50_000,
	})
	if recorder.Code != http.StatusOK {
		test.Fatalf("registration failed: %d %s", recorder.Code, recorder.Body.String())
	}
	if registry.receivables["inv-1"].owner != "acme" {
		test.Fatalf("expected registered receivable, got %+v", registry.receivables)
	}

	recorder = doRequest(test, router, http.MethodPost, "/api/receivables/inv-1", "approver", map[string]any{
		"owner":       "acme",
		"face_amount": 50_000,
	})
	if recorder.Code != http.StatusConflict {
		test.Fatalf("expected 409 on duplicate registration, got %d", recorder.Code)
	}

	recorder = doRequest(test, router, http.MethodPost, "/api/receivables/inv-1/pledge", "approver", map[string]any{
		"holder": "pool-custodian",
	})
	if recorder.Code != http.StatusOK {
		test.Fatalf("pledge failed: %d %s", recorder.Code, recorder.Body.String())
	}
	if registry.receivables["inv-1"].heldBy != "pool-custodian" {
		test.Fatalf("expected custody moved, got %+v", registry.receivables["inv-1"])
	}

	recorder = doRequest(test, router, http.MethodPost, "/api/receivables/inv-2", "stranger", map[string]any{
		"owner":       "acme",
		"face_amount": 1000,
	})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for non-approver registration, got %d", recorder.Code)
	}
}

func TestApproveAndDrawFlow(test *testing.T) {
	router, registry := newTestRouter(test)
	registry.receivables["inv-1"] = memReceivable{amount: 50_000, owner: "acme", heldBy: "pool-custodian"}

	recorder := doRequest(test, router, http.MethodPost, "/api/borrowers/acme/approval", "approver", map[string]any{
		"credit_limit":             100_000,
		"num_periods":              3,
		"yield_bps":                1217,
		"period_duration":          "monthly",
		"auto_approve_receivables": true,
	})
	if recorder.Code != http.StatusOK {
		test.Fatalf("approval failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(test, router, http.MethodPost, "/api/borrowers/acme/drawdowns", "acme", map[string]any{
		"receivable_id": "inv-1",
		"amount":        50_000,
	})
	if recorder.Code != http.StatusOK {
		test.Fatalf("drawdown failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Due duePayload `json:"due"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		test.Fatalf("decode due payload: %v", err)
	}
	if response.Due.UnbilledPrincipal != 49_750 {
		test.Fatalf("expected unbilled 49750, got %d", response.Due.UnbilledPrincipal)
	}
	if response.Due.State != "good_standing" {
		test.Fatalf("expected good standing, got %s", response.Due.State)
	}

	recorder = doRequest(test, router, http.MethodGet, "/api/borrowers/acme/available-credit", "acme", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("available credit failed: %d", recorder.Code)
	}
	var available struct {
		AvailableCredit int64 `json:"available_credit"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &available); err != nil {
		test.Fatalf("decode available credit: %v", err)
	}
	if available.AvailableCredit != 0 {
		test.Fatalf("expected available credit consumed, got %d", available.AvailableCredit)
	}
}

func TestDomainErrorsMapToStatusCodes(test *testing.T) {
	router, _ := newTestRouter(test)

	recorder := doRequest(test, router, http.MethodPost, "/api/borrowers/acme/drawdowns", "acme", map[string]any{
		"receivable_id": "inv-1",
		"amount":        1000,
	})
	if recorder.Code != http.StatusNotFound {
		test.Fatalf("expected 404 for unknown credit line, got %d", recorder.Code)
	}

	recorder = doRequest(test, router, http.MethodPost, "/api/borrowers/acme/approval", "stranger", map[string]any{
		"credit_limit":    100_000,
		"num_periods":     3,
		"yield_bps":       1217,
		"period_duration": "monthly",
	})
	if recorder.Code != http.StatusForbidden {
		test.Fatalf("expected 403 for non-approver, got %d", recorder.Code)
	}
}
