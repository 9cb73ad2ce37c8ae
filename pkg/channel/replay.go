package channel

import (
	"code.securecomm.org/golang/internal/utils"
)

// DefaultReplayWindow is the default number of sequence numbers tracked below the highest accepted one.
const DefaultReplayWindow = 128

// replayWindow tracks accepted sequence numbers in a sliding window anchored at the
// highest accepted number. Bit seq % size is set when seq was accepted.
type replayWindow struct {
	bits    utils.Bitset
	size    uint64
	highest uint64
}

func newReplayWindow(size int) *replayWindow {
	bits := utils.NewBitset(size)
	return &replayWindow{bits: bits, size: uint64(bits.Size())}
}

// check reports whether seq may be accepted. It does not modify the window.
func (self *replayWindow) check(seq uint64) bool {
	switch {
	case 0 == seq:
		return false
	case seq > self.highest:
		return true
	case self.highest-seq >= self.size:
		return false
	default:
		seen, err := self.bits.GetBit(self.pos(seq))
		return nil == err && !seen
	}
}

// accept records seq, it must have passed check.
func (self *replayWindow) accept(seq uint64) {
	if seq > self.highest {
		if seq-self.highest >= self.size {
			self.bits.Reset()
		} else {
			for s := self.highest + 1; s < seq; s++ {
				_ = self.bits.ClearBit(self.pos(s))
			}
		}
		self.highest = seq
	}
	_ = self.bits.SetBit(self.pos(seq))
}

func (self *replayWindow) pos(seq uint64) int {
	return int(seq % self.size)
}
