// notary-sign produces the signed attestations the escrow engine verifies:
// maintainer claim authorizations, identity bindings, maintainer-fee
// overrides, and known-user marks.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gitgig-io/ragnar/internal/notary"
	"github.com/gitgig-io/ragnar/internal/notarykey"
	"github.com/gitgig-io/ragnar/internal/queue"
	"github.com/gitgig-io/ragnar/internal/secrets"
)

type output struct {
	Kind      string `json:"kind"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
	Expires   uint64 `json:"expires,omitempty"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("notary-sign", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	kind := fs.String("kind", "", "attestation kind: claim|identity|owner-fee|repo-fee|issue-fee|known-user")

	keyFile := fs.String("key-file", "", "notary private key file (created if missing)")
	keySecret := fs.String("key-secret", "", "secret reference holding the notary private key")
	secretProvider := fs.String("secret-provider", "env", "secret provider for --key-secret (aws|env)")

	chainID := fs.Uint64("chain-id", 0, "EVM chain id for domain-bound attestations")
	escrowAddr := fs.String("escrow-address", "", "escrow instance address for domain-bound attestations")

	platform := fs.String("platform", "", "platform id")
	repo := fs.String("repo", "", "repository as owner/name")
	issue := fs.String("issue", "", "issue id")
	maintainer := fs.String("maintainer", "", "maintainer platform user id (claim)")
	contributors := fs.String("contributors", "", "comma-separated contributor platform user ids (claim)")

	wallet := fs.String("wallet", "", "wallet address (identity)")
	userID := fs.String("user-id", "", "platform user id (identity, known-user)")
	username := fs.String("username", "", "platform username (identity)")
	nonce := fs.Uint64("nonce", 0, "identity nonce; 1 for a first mint")

	org := fs.String("org", "", "organization (known-user)")
	fee := fs.Uint("fee", 0, "maintainer fee percent (fee overrides)")
	expiresIn := fs.Duration("expires-in", 5*time.Minute, "attestation validity window from now")

	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadKey(ctx, *keyFile, *keySecret, *secretProvider)
	if err != nil {
		return err
	}

	domain := notary.Domain{}
	needsDomain := *kind != "claim"
	if needsDomain {
		if *chainID == 0 || !common.IsHexAddress(*escrowAddr) {
			return fmt.Errorf("--chain-id and --escrow-address are required for %q attestations", *kind)
		}
		domain = notary.Domain{ChainID: *chainID, Instance: common.HexToAddress(*escrowAddr)}
	}

	expires := uint64(time.Now().Add(*expiresIn).Unix())

	var digest common.Hash
	var withExpiry bool
	switch *kind {
	case "claim":
		ids := queue.SplitCommaList(*contributors)
		if *maintainer == "" || *platform == "" || *repo == "" || *issue == "" || len(ids) == 0 {
			return fmt.Errorf("claim requires --maintainer, --platform, --repo, --issue, and --contributors")
		}
		digest = notary.ClaimDigest(*maintainer, *platform, *repo, *issue, ids)
	case "identity":
		if !common.IsHexAddress(*wallet) || *platform == "" || *userID == "" || *nonce == 0 {
			return fmt.Errorf("identity requires --wallet, --platform, --user-id, and --nonce")
		}
		digest = notary.IdentityBindingDigest(domain, common.HexToAddress(*wallet), *platform, *userID, *username, *nonce)
	case "owner-fee":
		owner, _, err := splitRepo(*repo)
		if err != nil {
			return err
		}
		if *platform == "" || *fee > 255 {
			return fmt.Errorf("owner-fee requires --platform and --fee in [0,255]")
		}
		digest = notary.OwnerFeeDigest(domain, *platform, owner, uint8(*fee), expires)
		withExpiry = true
	case "repo-fee":
		owner, name, err := splitRepo(*repo)
		if err != nil {
			return err
		}
		if *platform == "" || *fee > 255 {
			return fmt.Errorf("repo-fee requires --platform and --fee in [0,255]")
		}
		digest = notary.RepoFeeDigest(domain, *platform, owner, name, uint8(*fee), expires)
		withExpiry = true
	case "issue-fee":
		owner, name, err := splitRepo(*repo)
		if err != nil {
			return err
		}
		if *platform == "" || *issue == "" || *fee > 255 {
			return fmt.Errorf("issue-fee requires --platform, --issue, and --fee in [0,255]")
		}
		digest = notary.IssueFeeDigest(domain, *platform, owner, name, *issue, uint8(*fee), expires)
		withExpiry = true
	case "known-user":
		if *platform == "" || *org == "" || *userID == "" {
			return fmt.Errorf("known-user requires --platform, --org, and --user-id")
		}
		digest = notary.KnownUserDigest(domain, *platform, *org, *userID, expires)
		withExpiry = true
	default:
		return fmt.Errorf("unknown --kind %q", *kind)
	}

	sig, err := notary.SignDigest(key, digest)
	if err != nil {
		return err
	}

	payload := output{
		Kind:      *kind,
		Digest:    digest.Hex(),
		Signature: "0x" + hex.EncodeToString(sig),
		Signer:    notarykey.Address(key).Hex(),
	}
	if withExpiry {
		payload.Expires = expires
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func loadKey(ctx context.Context, keyFile, keySecret, provider string) (*ecdsa.PrivateKey, error) {
	file := strings.TrimSpace(keyFile)
	secret := strings.TrimSpace(keySecret)
	switch {
	case file != "" && secret != "":
		return nil, fmt.Errorf("use only one of --key-file or --key-secret")
	case file != "":
		key, _, err := notarykey.EnsurePrivateKeyFile(file)
		return key, err
	case secret != "":
		var p secrets.Provider
		switch provider {
		case "aws":
			aws, err := secrets.NewAWS(ctx)
			if err != nil {
				return nil, err
			}
			p = aws
		case "env":
			p = secrets.NewEnv()
		default:
			return nil, fmt.Errorf("unknown --secret-provider %q", provider)
		}
		return notarykey.FromProvider(ctx, p, secret)
	default:
		return nil, fmt.Errorf("one of --key-file or --key-secret is required")
	}
}

func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("--repo must be owner/name")
	}
	return owner, name, nil
}
