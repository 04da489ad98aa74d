package eth

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type PendingNoncer interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out consecutive nonces for one payout account. The
// counter seeds itself from the chain's pending nonce on first use and only
// moves forward, so concurrent payouts in this process never collide on a
// nonce.
type NonceManager struct {
	backend PendingNoncer
	account common.Address

	mu     sync.Mutex
	next   uint64
	seeded bool
}

func NewNonceManager(backend PendingNoncer, account common.Address) *NonceManager {
	return &NonceManager{backend: backend, account: account}
}

// Next reserves and returns the next nonce.
func (m *NonceManager) Next(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seeded {
		n, err := m.backend.PendingNonceAt(ctx, m.account)
		if err != nil {
			return 0, err
		}
		m.next = n
		m.seeded = true
	}

	n := m.next
	m.next++
	return n, nil
}
