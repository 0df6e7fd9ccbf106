package definiteinit

import "diaudit/internal/air"

// Verdict is the answer InitDataflow gives for one bucket at one use site:
// whether that bucket is definitely initialized there.
type Verdict uint8

const (
	VerdictNo Verdict = iota
	VerdictYes
	VerdictPartial
)

func (v Verdict) String() string {
	switch v {
	case VerdictYes:
		return "yes"
	case VerdictPartial:
		return "partial"
	default:
		return "no"
	}
}

// InitDataflow answers, for one bucket of one allocation, whether it is
// definitely initialized at an arbitrary program point: a local scan
// backward through the use's own block, falling back to a cross-block
// live-out recursion over predecessors when the block has no local
// non-load use before the query point.
type InitDataflow struct {
	fn     *air.Function
	bucket *bucketState
}

func NewInitDataflow(fn *air.Function, bucket *bucketState) *InitDataflow {
	return &InitDataflow{fn: fn, bucket: bucket}
}

// localScan walks blockID's instructions in program order up to (not
// including) upTo, or the whole block when upTo is nil, and returns one
// running verdict for the bucket: every instruction recorded as a use of
// the bucket is folded in by applyLocalEffect, so a full store makes it Yes,
// a release makes it No, and a partial store turns No into Partial.
func (d *InitDataflow) localScan(blockID air.BlockID, upTo *air.Instr) Verdict {
	fnBlock := d.fn.Block(blockID)
	if fnBlock == nil {
		return VerdictNo
	}
	verdict := VerdictNo
	for _, in := range fnBlock.Instrs {
		if in.Dead {
			continue
		}
		if in == upTo {
			return verdict
		}
		verdict = d.applyLocalEffect(verdict, in)
	}
	return verdict
}

// applyLocalEffect folds one instruction's effect (if it has one on this
// bucket) into a running local verdict. Only instructions recorded as a
// Use against this bucket are consulted; an instruction not touching the
// bucket leaves the verdict unchanged.
func (d *InitDataflow) applyLocalEffect(cur Verdict, in *air.Instr) Verdict {
	for _, use := range d.bucket.uses {
		if use.Instr != in || !use.Valid {
			continue
		}
		switch use.Kind {
		case UseStore:
			return VerdictYes
		case UsePartialStore:
			if cur == VerdictNo {
				cur = VerdictPartial
			}
		case UseRelease:
			return VerdictNo
		}
	}
	return cur
}

// VerdictAt answers the definite-initialization question for this bucket
// immediately before in, which lives in block blockID.
func (d *InitDataflow) VerdictAt(blockID air.BlockID, in *air.Instr) Verdict {
	local := d.localScan(blockID, in)
	if local != VerdictNo {
		return local
	}
	return d.liveOutOfPredecessors(blockID, make(map[air.BlockID]bool))
}

// liveOutOfPredecessors is InitDataflow's cross-block recursion: the bucket
// is live-out-initialized at blockID if every predecessor either has no
// in-edge (function entry reached with nothing known, i.e. No) or is itself
// live-out-initialized, recursing through the CFG and memoizing per block to
// break cycles. The Computing sentinel models a back-edge: the recursion
// speculates Yes when it revisits a block still being computed, so a cycle
// with all-initialized predecessors is correctly found all-initialized
// instead of deadlocking or mis-reporting No on the loop's first iteration.
func (d *InitDataflow) liveOutOfPredecessors(blockID air.BlockID, visiting map[air.BlockID]bool) Verdict {
	st := d.bucket.block(blockID)
	switch st.availability {
	case AvailLiveOut:
		return VerdictYes
	case AvailNotLiveOut:
		return VerdictNo
	case AvailComputing:
		return VerdictYes
	}
	if visiting[blockID] {
		return VerdictNo
	}
	visiting[blockID] = true
	st.availability = AvailComputing

	preds := d.fn.Predecessors(blockID)
	if len(preds) == 0 {
		st.availability = AvailNotLiveOut
		delete(visiting, blockID)
		return VerdictNo
	}

	sawPartial := false
	sawNo := false
	for _, p := range preds {
		v := d.verdictAtEndOfBlock(p, visiting)
		switch v {
		case VerdictNo:
			sawNo = true
		case VerdictPartial:
			sawPartial = true
		}
	}

	delete(visiting, blockID)

	var result Verdict
	switch {
	case sawNo:
		result = VerdictNo
	case sawPartial:
		result = VerdictPartial
	default:
		result = VerdictYes
	}

	switch result {
	case VerdictYes:
		st.availability = AvailLiveOut
	default:
		st.availability = AvailNotLiveOut
	}
	return result
}

// verdictAtEndOfBlock is the local scan over the whole of block p (no
// stopping instruction), falling back to p's own predecessors only when p
// has no non-load use of the bucket at all. A Yes or Partial local answer
// is returned as it is. A block with has_non_load_use whose local scan
// answers No is still live-out, regardless of which use kind set that
// flag: a Release with no prior store locally scans to No (it is, after
// all, not yet initialized right at the release), but the original still
// pre-seeds such a block's Availability to LiveOut unconditionally, and a
// successor block querying this one as a predecessor gets Yes.
func (d *InitDataflow) verdictAtEndOfBlock(p air.BlockID, visiting map[air.BlockID]bool) Verdict {
	local := d.localScan(p, nil)
	if local != VerdictNo {
		return local
	}
	st := d.bucket.block(p)
	if !st.hasNonLoadUse {
		return d.liveOutOfPredecessors(p, visiting)
	}
	return VerdictYes
}
