// mempool.go - Volatile reservations of serials by unconfirmed spends.

package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// AddSpendToMempool reserves serial for txHash. It fails if the serial is
// spent in the active chain or already reserved.
func (s *State) AddSpendToMempool(serial Serial, txHash chainhash.Hash) bool {
	return s.AddSpendsToMempool([]Serial{serial}, txHash)
}

// AddSpendsToMempool reserves every serial for txHash, or none of them.
func (s *State) AddSpendsToMempool(serials []Serial, txHash chainhash.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()

	seen := make(map[Serial]struct{}, len(serials))
	for _, serial := range serials {
		if _, ok := s.usedSerials[serial]; ok {
			return false
		}
		if _, ok := s.mempoolSerials[serial]; ok {
			return false
		}
		if _, ok := seen[serial]; ok {
			return false
		}
		seen[serial] = struct{}{}
	}
	for _, serial := range serials {
		s.mempoolSerials[serial] = txHash
	}
	return true
}

// RemoveSpendFromMempool drops the reservation of serial.
func (s *State) RemoveSpendFromMempool(serial Serial) {
	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()
	delete(s.mempoolSerials, serial)
}

// GetMempoolConflictingTxHash returns the transaction holding serial, or
// the zero hash.
func (s *State) GetMempoolConflictingTxHash(serial Serial) chainhash.Hash {
	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()
	return s.mempoolSerials[serial]
}

// CanAddSpendToMempool reports whether serial is neither spent nor
// reserved.
func (s *State) CanAddSpendToMempool(serial Serial) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()
	if _, ok := s.usedSerials[serial]; ok {
		return false
	}
	_, ok := s.mempoolSerials[serial]
	return !ok
}

// MempoolSize returns the number of reserved serials.
func (s *State) MempoolSize() int {
	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()
	return len(s.mempoolSerials)
}

// evictConfirmed drops every reservation of the transactions that hold a
// serial spent by a connected block and returns those transactions. Called
// with mu held.
func (s *State) evictConfirmed(serials []Serial) []chainhash.Hash {
	s.mempoolMu.Lock()
	defer s.mempoolMu.Unlock()

	var evicted []chainhash.Hash
	holders := make(map[chainhash.Hash]struct{})
	for _, serial := range serials {
		h, ok := s.mempoolSerials[serial]
		if !ok {
			continue
		}
		if _, dup := holders[h]; !dup {
			holders[h] = struct{}{}
			evicted = append(evicted, h)
		}
	}
	if len(holders) == 0 {
		return nil
	}
	for serial, h := range s.mempoolSerials {
		if _, ok := holders[h]; ok {
			delete(s.mempoolSerials, serial)
		}
	}
	return evicted
}
