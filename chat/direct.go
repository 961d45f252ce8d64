// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/huddlechat/huddle/lib/ref"
)

// HashFunc orders direct-room participants. It must be deterministic
// and identical on every client.
type HashFunc func(localpart string) uint64

// directDomainKey is the BLAKE3 key for direct-room ordering: the ASCII
// domain name zero-padded to 32 bytes. Changing it renames every
// direct room.
var directDomainKey = [32]byte{
	'h', 'u', 'd', 'd', 'l', 'e', '.', 'c', 'h', 'a', 't', '.', 'd', 'i', 'r', 'e',
	'c', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// BLAKE3Hash is the default HashFunc: the first 8 bytes (big-endian) of
// the keyed BLAKE3 hash of the localpart.
func BLAKE3Hash(localpart string) uint64 {
	hasher, err := blake3.NewKeyed(directDomainKey[:])
	if err != nil {
		panic("chat: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(localpart))
	return binary.BigEndian.Uint64(hasher.Sum(nil)[:8])
}

// DirectRoomName derives the name of the two-party room between a and
// b: the localpart with the lower hash first, joined by '_'. Equal
// hashes fall back to lexical order, so the result does not depend on
// which participant asks. A nil hash uses BLAKE3Hash.
func DirectRoomName(a, b ref.UserID, hash HashFunc) string {
	if hash == nil {
		hash = BLAKE3Hash
	}
	first, second := a.Localpart(), b.Localpart()
	firstHash, secondHash := hash(first), hash(second)
	if secondHash < firstHash || (secondHash == firstHash && second < first) {
		first, second = second, first
	}
	return first + "_" + second
}
