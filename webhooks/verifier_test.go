package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-fulfillment/core"
)

func signHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func signBase64(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHeaderHMACVerifierHexSignature(t *testing.T) {
	body := []byte(`{"id":"order-1"}`)
	verifier := HeaderHMACVerifier{
		Header:   HeaderStorefrontSignature,
		Secret:   "topsecret",
		Encoding: "hex",
	}

	req := core.InboundRequest{
		Body: body,
		Headers: map[string]string{
			HeaderStorefrontSignature: signHex("topsecret", body),
		},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected signature to verify, got %v", err)
	}

	req.Headers[HeaderStorefrontSignature] = signHex("wrong-secret", body)
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected mismatched signature to be rejected")
	}
}

func TestHeaderHMACVerifierBase64Signature(t *testing.T) {
	body := []byte(`{"vendor_job_id":"vj-9"}`)
	verifier := HeaderHMACVerifier{
		Header:   HeaderVendorSignature,
		Secret:   "vendor-secret",
		Encoding: "base64",
	}

	req := core.InboundRequest{
		Body: body,
		Headers: map[string]string{
			HeaderVendorSignature: signBase64("vendor-secret", body),
		},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected base64 signature to verify, got %v", err)
	}

	req.Headers[HeaderVendorSignature] = "not-base64!!"
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected undecodable signature to be rejected")
	}
}

func TestHeaderHMACVerifierMatchesHeaderCaseInsensitively(t *testing.T) {
	body := []byte(`{}`)
	verifier := HeaderHMACVerifier{
		Header: HeaderStorefrontSignature,
		Secret: "topsecret",
	}

	req := core.InboundRequest{
		Body: body,
		Headers: map[string]string{
			"x-storefront-hmac-sha256": signHex("topsecret", body),
		},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected case-insensitive header lookup, got %v", err)
	}
}

func TestHeaderHMACVerifierRequiresSignatureHeader(t *testing.T) {
	verifier := HeaderHMACVerifier{
		Header: HeaderStorefrontSignature,
		Secret: "topsecret",
	}
	err := verifier.Verify(context.Background(), core.InboundRequest{Body: []byte(`{}`)})
	if err == nil {
		t.Fatal("expected missing signature header to be rejected")
	}
}

func TestHeaderHMACVerifierStripsPrefix(t *testing.T) {
	body := []byte(`{"status":"SHIPPED"}`)
	verifier := HeaderHMACVerifier{
		Header: HeaderVendorSignature,
		Prefix: "sha256=",
		Secret: "vendor-secret",
	}

	req := core.InboundRequest{
		Body: body,
		Headers: map[string]string{
			HeaderVendorSignature: "sha256=" + signHex("vendor-secret", body),
		},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected prefixed signature to verify, got %v", err)
	}
}

func TestHeaderTokenVerifier(t *testing.T) {
	verifier := HeaderTokenVerifier{Header: "X-Callback-Token", Token: "shared-token"}

	req := core.InboundRequest{
		Headers: map[string]string{"X-Callback-Token": "shared-token"},
	}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected matching token to verify, got %v", err)
	}

	req.Headers["X-Callback-Token"] = "other-token"
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected mismatched token to be rejected")
	}

	if err := verifier.Verify(context.Background(), core.InboundRequest{}); err == nil {
		t.Fatal("expected missing token header to be rejected")
	}
}

func TestNewStorefrontVerifierRejectsAllWithoutSecret(t *testing.T) {
	verifier := NewStorefrontVerifier("   ")
	if _, ok := verifier.(RejectAllVerifier); !ok {
		t.Fatalf("expected RejectAllVerifier, got %T", verifier)
	}

	body := []byte(`{}`)
	req := core.InboundRequest{
		Body: body,
		Headers: map[string]string{
			HeaderStorefrontSignature: signHex("", body),
		},
	}
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatal("expected unconfigured verifier to reject every delivery")
	}
}
