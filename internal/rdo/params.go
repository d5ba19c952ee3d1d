// Package rdo is the block partitioner and mode decision engine. It
// searches the partition tree of every superblock under a
// rate-distortion objective, speculating on copy-on-write clones of the
// tile's context store, and records the winning tree for the write pass.
package rdo

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/me"
)

// Params controls search exhaustiveness. No setting changes which
// decisions are legal; speed 0 searches every legal partition.
type Params struct {
	// Partitions caps how many partition types of a node inside the frame
	// are evaluated, in symbol order.
	Partitions int
	// PruneSplit skips splitting a node whose unsplit best is a skipped
	// block with prediction error below PruneSplit per sample, squared.
	// Zero disables pruning.
	PruneSplit int
	IntraModes []block.PredMode
	// IntraTopK and InterTopK bound how many prescreened candidates get a
	// full rate-distortion evaluation.
	IntraTopK int
	InterTopK int
	TxSplit   bool // evaluate the split transform size
	TxTypes   []block.TxType
	Optimize  bool // coefficient-level rate-distortion search
	Compound  bool
	SkipTrial bool // evaluate dropping the residual of inter blocks
	Motion    me.Params
}

var (
	allIntra = []block.PredMode{
		block.DCPred, block.VPred, block.HPred, block.D45Pred, block.D135Pred,
		block.D113Pred, block.D157Pred, block.D203Pred, block.D67Pred,
		block.SmoothPred, block.SmoothVPred, block.SmoothHPred, block.PaethPred,
	}
	fastIntra = []block.PredMode{
		block.DCPred, block.VPred, block.HPred, block.SmoothPred, block.PaethPred,
	}
	allTxTypes = []block.TxType{
		block.DctDct, block.AdstDct, block.DctAdst, block.AdstAdst,
		block.FlipadstDct, block.DctFlipadst, block.Idtx, block.VDct, block.HDct,
	}
	someTxTypes = []block.TxType{block.DctDct, block.AdstDct, block.DctAdst, block.AdstAdst}
	dctOnly     = []block.TxType{block.DctDct}
)

// ParamsForSpeed returns the search parameters of speed 0 (slowest,
// exhaustive) to 10.
func ParamsForSpeed(speed int) Params {
	p := Params{
		Partitions: int(block.NumPartitions),
		IntraModes: allIntra,
		IntraTopK:  len(allIntra),
		InterTopK:  16,
		TxSplit:    true,
		TxTypes:    allTxTypes,
		Optimize:   true,
		Compound:   true,
		SkipTrial:  true,
		Motion:     me.ParamsForSpeed(speed),
	}
	switch {
	case speed <= 0:
	case speed <= 2:
		p.Partitions = 8
		p.IntraTopK = 4
		p.InterTopK = 4
	case speed <= 5:
		p.Partitions = 4
		p.PruneSplit = 4
		p.IntraTopK = 3
		p.InterTopK = 3
		p.TxTypes = someTxTypes
	case speed <= 7:
		p.Partitions = 4
		p.PruneSplit = 9
		p.IntraModes = fastIntra
		p.IntraTopK = 2
		p.InterTopK = 2
		p.TxSplit = false
		p.TxTypes = someTxTypes
		p.Compound = false
	default:
		p.Partitions = 4
		p.PruneSplit = 16
		p.IntraModes = fastIntra
		p.IntraTopK = 1
		p.InterTopK = 1
		p.TxSplit = false
		p.TxTypes = dctOnly
		p.Optimize = false
		p.Compound = false
		p.SkipTrial = false
	}
	return p
}
