package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// stateDigest hashes the simulation state that must be identical across two
// runs with the same seed and inputs.
func (s *Store) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, s.nextCustomer)

	for _, id := range s.sortedCustomerIDs() {
		c := s.customers[id].m.Context()
		h.Write([]byte(id))
		h.Write([]byte(s.customers[id].m.CurrentState()))
		h.Write([]byte(c.Purchase.Phase))
		if p, ok := s.grid.Position(id); ok {
			digestWriteI64(h, &tmp, int64(p.X))
			digestWriteI64(h, &tmp, int64(p.Z))
		}
		digestWriteI64(h, &tmp, c.Budget)
		for _, it := range c.Selected {
			h.Write([]byte(it.ID))
		}
		for _, it := range c.Purchased {
			h.Write([]byte(it.ID))
		}
	}
	for _, c := range s.co.Counters() {
		h.Write([]byte(c.ID))
		h.Write([]byte{boolByte(c.Enabled)})
		h.Write([]byte(c.Occupant))
		for _, a := range c.WaitLine {
			h.Write([]byte(a))
		}
	}
	for _, st := range s.shelves.Stock() {
		h.Write([]byte(st.Spot))
		digestWriteU64(h, &tmp, uint64(len(st.Items)))
	}
	t := s.ledger.Totals(s.shelves.Returned())
	digestWriteI64(h, &tmp, t.Revenue)
	digestWriteU64(h, &tmp, uint64(t.Sales))
	digestWriteU64(h, &tmp, math.Float64bits(t.SatisfactionSum))

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
