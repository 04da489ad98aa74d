package eth

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type noncerStub struct {
	pending uint64
	calls   int
	err     error
}

func (s *noncerStub) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.pending, nil
}

func TestNonceManager_SeedsOnceThenCounts(t *testing.T) {
	t.Parallel()

	chain := &noncerStub{pending: 42}
	m := NewNonceManager(chain, common.HexToAddress("0x00000000000000000000000000000000000000A1"))

	for i := 0; i < 3; i++ {
		n, err := m.Next(context.Background())
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if want := uint64(42 + i); n != want {
			t.Fatalf("Next #%d = %d, want %d", i, n, want)
		}
	}
	if chain.calls != 1 {
		t.Fatalf("chain queried %d times, want 1", chain.calls)
	}
}

func TestNonceManager_SeedFailureLeavesCounterUnseeded(t *testing.T) {
	t.Parallel()

	chain := &noncerStub{pending: 10, err: errors.New("rpc down")}
	m := NewNonceManager(chain, common.HexToAddress("0x00000000000000000000000000000000000000A1"))

	if _, err := m.Next(context.Background()); err == nil {
		t.Fatalf("expected seed error")
	}

	chain.err = nil
	n, err := m.Next(context.Background())
	if err != nil {
		t.Fatalf("Next after recovery: %v", err)
	}
	if n != 10 {
		t.Fatalf("Next = %d, want 10", n)
	}
}
