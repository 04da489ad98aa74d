//go:build integration

package eth

import (
	"context"
	"math/big"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Image pinned by digest for deterministic runs.
const anvilImage = "ghcr.io/foundry-rs/foundry@sha256:043752653d5be351c71709091b3db97c4421c907eb40ea294195e7f532aadf46"

// Anvil's first funded dev account.
const anvilDevKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestSubmitter_MinesValueTransferOnAnvil(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	port := freePort(t)
	containerID := startAnvil(t, ctx, port)
	t.Cleanup(func() { _ = exec.Command("docker", "rm", "-f", containerID).Run() })

	client := dialUntilReady(t, ctx, "http://127.0.0.1:"+port)
	defer client.Close()

	key, err := crypto.HexToECDSA(anvilDevKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}

	sub, err := NewSubmitter(client, []Signer{NewLocalSigner(key)}, SubmitterConfig{
		ChainID:             big.NewInt(31337),
		GasLimitMultiplier:  1.2,
		MinTipCap:           big.NewInt(1),
		ReceiptPollInterval: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}

	payee := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	res, err := sub.SendAndWaitMined(ctx, TxRequest{
		To:    payee,
		Value: big.NewInt(1),
	})
	if err != nil {
		t.Fatalf("SendAndWaitMined: %v", err)
	}

	if res.Receipt == nil || res.Receipt.Status != 1 {
		t.Fatalf("receipt: %+v", res.Receipt)
	}
	if (res.TxHash == common.Hash{}) {
		t.Fatalf("expected a non-zero tx hash")
	}
	if res.Replacements != 0 {
		t.Fatalf("replacements = %d, want 0", res.Replacements)
	}

	if got, err := client.BalanceAt(ctx, payee, nil); err != nil || got.Sign() == 0 {
		t.Fatalf("payee balance = %v (err %v), want funded", got, err)
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return strings.TrimPrefix(ln.Addr().String(), "127.0.0.1:")
}

func startAnvil(t *testing.T, ctx context.Context, hostPort string) string {
	t.Helper()

	out, err := exec.CommandContext(ctx, "docker",
		"run", "--rm", "-d",
		"-e", "ANVIL_IP_ADDR=0.0.0.0",
		"-p", "127.0.0.1:"+hostPort+":8545",
		anvilImage,
		"anvil", "--port", "8545", "--chain-id", "31337",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("docker run anvil: %v: %s", err, string(out))
	}
	return strings.TrimSpace(string(out))
}

func dialUntilReady(t *testing.T, ctx context.Context, url string) *ethclient.Client {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		c, err := ethclient.DialContext(cctx, url)
		if err == nil {
			// Dialing succeeds before the RPC answers; probe with a real call.
			if _, err = c.ChainID(cctx); err == nil {
				cancel()
				return c
			}
			c.Close()
		}
		cancel()
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("rpc not ready: %s", url)
	return nil
}
