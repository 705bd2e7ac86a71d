package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRPCBlockchainClient_TreasuryBalance_ParsesResponse(t *testing.T) {
	var capturedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stx":{"balance":"1500000"}}`))
	}))
	defer srv.Close()

	client := NewBlockchainClient(srv.URL, 10, "signing_key", time.Second)
	before := time.Now()
	bal, err := client.TreasuryBalance(context.Background(), "SP000000000000000000002Q6VF78")
	if err != nil {
		t.Fatalf("TreasuryBalance failed: %v", err)
	}

	wantPath := "/extended/v1/address/SP000000000000000000002Q6VF78/balances"
	if capturedPath != wantPath {
		t.Errorf("path = %s, want %s", capturedPath, wantPath)
	}
	if bal.BalanceMicroSTX != 1500000 {
		t.Errorf("BalanceMicroSTX = %d, want 1500000", bal.BalanceMicroSTX)
	}
	if bal.Address != "SP000000000000000000002Q6VF78" {
		t.Errorf("Address = %s, want the queried address", bal.Address)
	}
	if bal.AsOf.Before(before) {
		t.Errorf("AsOf = %v, want a timestamp at or after the call", bal.AsOf)
	}
}

func TestRPCBlockchainClient_TreasuryBalance_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewBlockchainClient(srv.URL, 10, "signing_key", time.Second)
	if _, err := client.TreasuryBalance(context.Background(), "SPBOGUS"); err == nil {
		t.Fatal("TreasuryBalance against a 404 response = nil error, want error")
	}
}

func TestRPCBlockchainClient_TreasuryBalance_InvalidBalanceString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stx":{"balance":"not-a-number"}}`))
	}))
	defer srv.Close()

	client := NewBlockchainClient(srv.URL, 10, "signing_key", time.Second)
	if _, err := client.TreasuryBalance(context.Background(), "SPBOGUS"); err == nil {
		t.Fatal("TreasuryBalance with a non-numeric balance = nil error, want error")
	}
}

func TestRPCBlockchainClient_TreasuryBalance_RespectsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"stx":{"balance":"1"}}`))
	}))
	defer srv.Close()

	client := NewBlockchainClient(srv.URL, 10, "signing_key", 20*time.Millisecond)
	if _, err := client.TreasuryBalance(context.Background(), "SPBOGUS"); err == nil {
		t.Fatal("TreasuryBalance with a 20ms timeout against a slow server = nil error, want a timeout error")
	}
}

func TestRPCBlockchainClient_SubmitFundingRequest_SignsClaims(t *testing.T) {
	client := NewBlockchainClient("http://example.invalid", 10, "signing_key", time.Second)
	txID, err := client.SubmitFundingRequest(context.Background(), FundingRequest{
		Recipient:      "SP000000000000000000002Q6VF78",
		AmountMicroSTX: 10_000,
		FeeMicroSTX:    FundingFeeLowMicroSTX,
	})
	if err != nil {
		t.Fatalf("SubmitFundingRequest failed: %v", err)
	}
	if txID == "" {
		t.Error("txID is empty, want a signed JWT assertion")
	}
}

func TestRPCBlockchainClient_SubmitFundingRequest_RejectsWithoutSigningKey(t *testing.T) {
	client := NewBlockchainClient("http://example.invalid", 10, "", time.Second)
	if _, err := client.SubmitFundingRequest(context.Background(), FundingRequest{Recipient: "SP1", AmountMicroSTX: 1}); err == nil {
		t.Fatal("SubmitFundingRequest without a signing key = nil error, want error")
	}
}

func TestRPCBlockchainClient_NewBlockchainClient_DefaultsRateLimit(t *testing.T) {
	// A non-positive ratePerSecond must fall back to a usable default rather
	// than construct a limiter that can never admit a request.
	client := NewBlockchainClient("http://example.invalid", 0, "signing_key", time.Second)
	if client == nil {
		t.Fatal("NewBlockchainClient returned nil")
	}
}
