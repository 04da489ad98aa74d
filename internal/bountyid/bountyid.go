package bountyid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const keyPrefixV1 = "bounty"

var ErrInvalidRepo = errors.New("bountyid: invalid repo")

// Key identifies one external issue. The three fields are opaque,
// case-sensitive strings supplied by the funding platform.
type Key struct {
	Platform string
	Repo     string
	Issue    string
}

func (k Key) String() string {
	return k.Platform + "/" + k.Repo + "#" + k.Issue
}

// ID computes the canonical bounty id.
//
// id = keccak256("bounty" || len(platform)BE32 || platform || len(repo)BE32 || repo || len(issue)BE32 || issue)
//
// Length prefixes keep distinct field splits from colliding
// ("ab","c" vs "a","bc").
func (k Key) ID() [32]byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(keyPrefixV1))
	writeLenPrefixed(h, k.Platform)
	writeLenPrefixed(h, k.Repo)
	writeLenPrefixed(h, k.Issue)

	sum := h.Sum(nil)
	var out [32]byte
	copy(out[:], sum)
	return out
}

// SplitRepo splits a repo identifier of the form "owner/name".
func SplitRepo(repo string) (owner, name string, err error) {
	i := strings.IndexByte(repo, '/')
	if i <= 0 || i == len(repo)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	return repo[:i], repo[i+1:], nil
}

func writeLenPrefixed(h interface{ Write([]byte) (int, error) }, s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(s))
}
