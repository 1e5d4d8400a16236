package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClientChargeSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/charges" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "charge-pay-1" {
			t.Errorf("Idempotency-Key = %q", r.Header.Get("Idempotency-Key"))
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body chargeRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.AmountCents != 12345 {
			t.Errorf("amount = %d", body.AmountCents)
		}
		_ = json.NewEncoder(w).Encode(processorResponse{ID: "ch_abc"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "sk_test", time.Second)
	ref, err := c.Charge(context.Background(), "pay-1", 12345)
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if ref != "ch_abc" {
		t.Errorf("ref = %q", ref)
	}
}

func TestClientKeysAreScopedPerOperation(t *testing.T) {
	var mu sync.Mutex
	keys := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys[r.URL.Path] = r.Header.Get("Idempotency-Key")
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(processorResponse{ID: "ref_" + strings.TrimPrefix(r.URL.Path, "/")})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	ctx := context.Background()
	if _, err := c.Charge(ctx, "pay-1", 500); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if _, err := c.Payout(ctx, "pay-1", 500, "acct_1"); err != nil {
		t.Fatalf("Payout: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	charge, payout := keys["/charges"], keys["/payouts"]
	if charge == "" || payout == "" {
		t.Fatalf("missing keys: %v", keys)
	}
	if charge == payout {
		t.Errorf("charge and payout share idempotency key %q", charge)
	}
	if !strings.Contains(charge, "pay-1") || !strings.Contains(payout, "pay-1") {
		t.Errorf("keys must derive from the payment id: %v", keys)
	}
}

func TestClientPayoutFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.Payout(context.Background(), "pay-1", 100, "acct_1"); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestClientRejectsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.Charge(context.Background(), "k", 100); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestSandboxIsIdempotentPerKey(t *testing.T) {
	s := NewSandbox()
	ctx := context.Background()
	a, err := s.Charge(ctx, "k1", 100)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Charge(ctx, "k1", 100)
	if a != b {
		t.Errorf("repeat charge ref %q != %q", b, a)
	}
	c, _ := s.Charge(ctx, "k2", 100)
	if c == a {
		t.Error("distinct keys share a ref")
	}
	p, _ := s.Payout(ctx, "k1", 100, "acct")
	if !strings.HasPrefix(p, "po_") || p == a {
		t.Errorf("payout ref = %q", p)
	}
}

func TestSandboxFail(t *testing.T) {
	boom := errors.New("processor down")
	s := NewSandbox()
	s.Fail = boom
	if _, err := s.Charge(context.Background(), "k", 100); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
