package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"wisp/internal/auth"
	"wisp/internal/log"
	"wisp/internal/services"
	"wisp/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	periods := services.NewPeriodResolver(store)
	engine := services.NewDistributionEngine(store, periods, nil)
	tokens := auth.NewJWTManager("test-secret", time.Hour)

	srv := NewServer(":0", Dependencies{
		Store:     store,
		Auth:      auth.NewAuthenticator(store, tokens),
		Tokens:    tokens,
		Movements: services.NewMovementService(store, periods, engine),
		Salaries:  services.NewSalaryService(store, periods, engine, nil),
		Balances:  services.NewBalanceService(store),
		Periods:   periods,
		Logger:    log.New(log.DefaultConfig()),
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

// signup registers a user, creates their member profile, and returns the
// session token and member ID.
func signup(t *testing.T, ts *httptest.Server, username string) (string, int64) {
	t.Helper()

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/register", "", map[string]string{
		"username": username, "password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", resp.StatusCode, raw)
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/members", session.Token, map[string]string{"name": username})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create member status = %d, body %s", resp.StatusCode, raw)
	}
	var member struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &member); err != nil {
		t.Fatalf("unmarshal member: %v", err)
	}
	return session.Token, member.ID
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/households", "", map[string]string{"name": "casa"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/households", "not-a-token", map[string]string{"name": "casa"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginFlow(t *testing.T) {
	ts := newTestServer(t)
	signup(t, ts, "alice")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/login", "", map[string]string{
		"username": "alice", "password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login status = %d, want 200", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/login", "", map[string]string{
		"username": "alice", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", resp.StatusCode)
	}
}

func TestMovementLifecycleOverAPI(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, _ := signup(t, ts, "alice")
	bobToken, _ := signup(t, ts, "bob")

	// Household setup: alice creates, both join.
	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/households", aliceToken, map[string]string{"name": "casa"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create household status = %d, body %s", resp.StatusCode, raw)
	}
	var household struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &household); err != nil {
		t.Fatalf("unmarshal household: %v", err)
	}
	for _, token := range []string{aliceToken, bobToken} {
		resp, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/join", ts.URL, household.ID), token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join status = %d, body %s", resp.StatusCode, raw)
		}
	}

	resp, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/categories", ts.URL, household.ID), aliceToken,
		map[string]string{"name": "groceries", "distribution_type": "equal"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category status = %d, body %s", resp.StatusCode, raw)
	}
	var category struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &category); err != nil {
		t.Fatalf("unmarshal category: %v", err)
	}

	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/movements", aliceToken, map[string]any{
		"amount": "100.00", "date": "2025-04-10", "category_id": category.ID, "description": "weekly shop",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create movement status = %d, body %s", resp.StatusCode, raw)
	}
	var created struct {
		Movement struct {
			ID          int64  `json:"id"`
			Amount      string `json:"amount"`
			AmountCents int64  `json:"amount_cents"`
		} `json:"movement"`
		Distributions []struct {
			AmountCents int64 `json:"amount_cents"`
			IsPayer     bool  `json:"is_payer"`
		} `json:"distributions"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("unmarshal movement: %v", err)
	}
	if created.Movement.AmountCents != 10000 || created.Movement.Amount != "100.00" {
		t.Errorf("movement amount = %s (%d cents), want 100.00", created.Movement.Amount, created.Movement.AmountCents)
	}
	if len(created.Distributions) != 2 {
		t.Fatalf("got %d distributions, want 2", len(created.Distributions))
	}
	for _, d := range created.Distributions {
		if d.AmountCents != 5000 {
			t.Errorf("distribution = %d cents, want 5000", d.AmountCents)
		}
	}

	resp, raw = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/households/%d/movements?period=2025-04", ts.URL, household.ID), aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list movements status = %d, body %s", resp.StatusCode, raw)
	}
	var listed []struct {
		ID           int64  `json:"id"`
		Distribution string `json:"distribution_type"`
	}
	if err := json.Unmarshal(raw, &listed); err != nil {
		t.Fatalf("unmarshal movements: %v", err)
	}
	if len(listed) != 1 || listed[0].Distribution != "equal" {
		t.Errorf("listed movements = %+v", listed)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, _ := signup(t, ts, "alice")

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/households", aliceToken, map[string]string{"name": "casa"})
	var household struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &household); err != nil {
		t.Fatalf("unmarshal household: %v", err)
	}
	if resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/join", ts.URL, household.ID), aliceToken, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}

	t.Run("unknown category yields 404", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/movements", aliceToken, map[string]any{
			"amount": "10.00", "date": "2025-04-10", "category_id": 999,
		})
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("unknown distribution type yields 422", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/categories", ts.URL, household.ID), aliceToken,
			map[string]string{"name": "misc", "distribution_type": "percentage"})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("prorrata without salaries yields 422", func(t *testing.T) {
		resp, raw := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/categories", ts.URL, household.ID), aliceToken,
			map[string]string{"name": "rent", "distribution_type": "prorrata"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create category status = %d, body %s", resp.StatusCode, raw)
		}
		var category struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &category); err != nil {
			t.Fatalf("unmarshal category: %v", err)
		}

		resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/movements", aliceToken, map[string]any{
			"amount": "10.00", "date": "2025-04-10", "category_id": category.ID,
		})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("bad amount yields 422", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/movements", aliceToken, map[string]any{
			"amount": "-5.00", "date": "2025-04-10", "category_id": 1,
		})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})

	t.Run("bad period yields 400", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet,
			fmt.Sprintf("%s/api/households/%d/movements?period=April", ts.URL, household.ID), aliceToken, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestSalaryAndBalanceEndpoints(t *testing.T) {
	ts := newTestServer(t)
	aliceToken, aliceID := signup(t, ts, "alice")
	bobToken, bobID := signup(t, ts, "bob")

	_, raw := doJSON(t, http.MethodPost, ts.URL+"/api/households", aliceToken, map[string]string{"name": "casa"})
	var household struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &household); err != nil {
		t.Fatalf("unmarshal household: %v", err)
	}
	for _, token := range []string{aliceToken, bobToken} {
		doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/join", ts.URL, household.ID), token, nil)
	}

	for _, upsert := range []struct {
		token  string
		amount string
	}{
		{aliceToken, "3000.00"},
		{bobToken, "1000.00"},
	} {
		resp, raw := doJSON(t, http.MethodPut, ts.URL+"/api/salaries", upsert.token,
			map[string]string{"period": "2025-03", "amount": upsert.amount})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("upsert salary status = %d, body %s", resp.StatusCode, raw)
		}
	}

	resp, raw := doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/households/%d/salaries?period=2025-03", ts.URL, household.ID), aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list salaries status = %d, body %s", resp.StatusCode, raw)
	}
	var salaries []struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.Unmarshal(raw, &salaries); err != nil {
		t.Fatalf("unmarshal salaries: %v", err)
	}
	if len(salaries) != 2 {
		t.Fatalf("got %d salaries, want 2", len(salaries))
	}

	_, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/households/%d/categories", ts.URL, household.ID), aliceToken,
		map[string]string{"name": "rent", "distribution_type": "prorrata"})
	var category struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &category); err != nil {
		t.Fatalf("unmarshal category: %v", err)
	}
	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/movements", aliceToken, map[string]any{
		"amount": "400.00", "date": "2025-04-05", "category_id": category.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create movement status = %d, body %s", resp.StatusCode, raw)
	}

	resp, raw = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/households/%d/balances?member_a=%d&member_b=%d", ts.URL, household.ID, bobID, aliceID),
		bobToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pairwise status = %d, body %s", resp.StatusCode, raw)
	}
	var balance struct {
		YouOwe  string `json:"you_owe"`
		OwesYou string `json:"owes_you"`
		Net     string `json:"net"`
	}
	if err := json.Unmarshal(raw, &balance); err != nil {
		t.Fatalf("unmarshal balance: %v", err)
	}
	if balance.YouOwe != "100.00" || balance.Net != "-100.00" {
		t.Errorf("balance = %+v, want you_owe 100.00", balance)
	}

	resp, raw = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/households/%d/summary", ts.URL, household.ID), aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d, body %s", resp.StatusCode, raw)
	}
	var summary []struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if len(summary) != 2 {
		t.Errorf("got %d summary rows, want 2", len(summary))
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}
}
