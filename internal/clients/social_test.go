package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSocialClient_Post_SendsAuthAndSignature(t *testing.T) {
	var gotAuth, gotSig, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSig = r.Header.Get("X-Signature")
		var p postPayload
		json.NewDecoder(r.Body).Decode(&p)
		gotBody = p.Body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(postResponse{ID: "post_123"})
	}))
	defer srv.Close()

	client := NewSocialClient(srv.URL, "key_abc", "secret_xyz")
	id, err := client.Post(context.Background(), SocialPost{Body: "quarterly update", Tags: []string{"treasury"}})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if id != "post_123" {
		t.Errorf("id = %s, want post_123", id)
	}
	if gotAuth != "Bearer key_abc" {
		t.Errorf("Authorization header = %q, want Bearer key_abc", gotAuth)
	}
	if gotSig == "" {
		t.Error("X-Signature header was not set despite a configured secret")
	}
	if gotBody != "quarterly update" {
		t.Errorf("posted body = %q, want %q", gotBody, "quarterly update")
	}
}

func TestHTTPSocialClient_Post_OmitsSignatureWithoutSecret(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(postResponse{ID: "post_1"})
	}))
	defer srv.Close()

	client := NewSocialClient(srv.URL, "key_abc", "")
	if _, err := client.Post(context.Background(), SocialPost{Body: "hello"}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if gotSig != "" {
		t.Errorf("X-Signature header = %q, want empty with no secret configured", gotSig)
	}
}

func TestHTTPSocialClient_Post_RejectsWithoutAPIKey(t *testing.T) {
	client := NewSocialClient("http://example.invalid", "", "secret")
	if _, err := client.Post(context.Background(), SocialPost{Body: "hello"}); err == nil {
		t.Fatal("Post without an API key = nil error, want error")
	}
}

func TestHTTPSocialClient_Post_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewSocialClient(srv.URL, "key_abc", "secret")
	if _, err := client.Post(context.Background(), SocialPost{Body: "hello"}); err == nil {
		t.Fatal("Post against a 500 response = nil error, want error")
	}
}

func TestHTTPSocialClient_Post_AcceptsCreatedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(postResponse{ID: "post_created"})
	}))
	defer srv.Close()

	client := NewSocialClient(srv.URL, "key_abc", "secret")
	id, err := client.Post(context.Background(), SocialPost{Body: "hello"})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if id != "post_created" {
		t.Errorf("id = %s, want post_created", id)
	}
}

func TestSignBody_IsDeterministicAndSecretSensitive(t *testing.T) {
	body := []byte(`{"body":"hello"}`)
	a := signBody("secret_one", body)
	b := signBody("secret_one", body)
	if a != b {
		t.Error("signBody is not deterministic for the same secret and body")
	}
	if c := signBody("secret_two", body); c == a {
		t.Error("signBody produced the same signature for two different secrets")
	}
}
