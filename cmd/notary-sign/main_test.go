package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gitgig-io/ragnar/internal/notary"
)

func TestRun_ClaimAttestationVerifies(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "notary.key")
	var out bytes.Buffer

	err := run(context.Background(), []string{
		"-kind", "claim",
		"-key-file", keyPath,
		"-maintainer", "11",
		"-platform", "1",
		"-repo", "org/demo",
		"-issue", "123",
		"-contributors", "55,77",
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var v output
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}

	wantDigest := notary.ClaimDigest("11", "1", "org/demo", "123", []string{"55", "77"})
	if v.Digest != wantDigest.Hex() {
		t.Fatalf("digest: got %q want %q", v.Digest, wantDigest.Hex())
	}

	sig := common.FromHex(v.Signature)
	if err := notary.Verify(wantDigest, sig, common.HexToAddress(v.Signer)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Expires != 0 {
		t.Fatalf("claim attestations carry no expiry, got %d", v.Expires)
	}
}

func TestRun_IssueFeeAttestation(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "notary.key")
	var out bytes.Buffer

	err := run(context.Background(), []string{
		"-kind", "issue-fee",
		"-key-file", keyPath,
		"-chain-id", "8453",
		"-escrow-address", "0x00000000000000000000000000000000000000e5",
		"-platform", "1",
		"-repo", "org/demo",
		"-issue", "123",
		"-fee", "50",
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var v output
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if v.Expires == 0 {
		t.Fatalf("fee attestations must carry an expiry")
	}

	domain := notary.Domain{ChainID: 8453, Instance: common.HexToAddress("0x00000000000000000000000000000000000000e5")}
	wantDigest := notary.IssueFeeDigest(domain, "1", "org", "demo", "123", 50, v.Expires)
	if v.Digest != wantDigest.Hex() {
		t.Fatalf("digest: got %q want %q", v.Digest, wantDigest.Hex())
	}
	if err := notary.Verify(wantDigest, common.FromHex(v.Signature), common.HexToAddress(v.Signer)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestRun_Rejections(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "notary.key")

	cases := []struct {
		name string
		args []string
	}{
		{"unknown kind", []string{"-kind", "bogus", "-key-file", keyPath}},
		{"no key source", []string{"-kind", "claim", "-maintainer", "11", "-platform", "1", "-repo", "org/demo", "-issue", "1", "-contributors", "55"}},
		{"domain missing", []string{"-kind", "identity", "-key-file", keyPath, "-wallet", "0x00000000000000000000000000000000000000e5", "-platform", "1", "-user-id", "55", "-nonce", "1"}},
		{"claim without contributors", []string{"-kind", "claim", "-key-file", keyPath, "-maintainer", "11", "-platform", "1", "-repo", "org/demo", "-issue", "1"}},
		{"bad repo", []string{"-kind", "repo-fee", "-key-file", keyPath, "-chain-id", "1", "-escrow-address", "0x00000000000000000000000000000000000000e5", "-platform", "1", "-repo", "no-slash", "-fee", "10"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			if err := run(context.Background(), tc.args, &out); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
