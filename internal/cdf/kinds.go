package cdf

// Kind identifies a symbol category. Each kind owns a table of
// Contexts(k) CDFs over an alphabet of Symbols(k) values.
type Kind uint8

const (
	PartitionSmall Kind = iota // 16x16 nodes
	PartitionMid               // 32x32 nodes
	PartitionLarge             // 64x64 nodes
	PartitionEdge              // split-or-horz / split-or-vert at frame edges
	Skip
	DeltaQ
	KfYMode
	YMode
	UVMode
	IsInter
	CompMode
	RefBit
	CompRef0Bit
	CompRef1Bit
	InterMode
	CompInterMode
	CompType
	MvJoint
	MvSign
	MvClass
	MvClass0Bit
	MvClass0Fr
	MvFr
	MvClass0Hp
	MvHp
	MvBits
	TxDepth
	TxTypeIntra
	TxTypeInter
	TxbSkip
	EobPt16
	EobPt32
	EobPt64
	EobPt128
	EobPt256
	EobPt512
	EobPt1024
	EobExtra
	CoeffBaseEob
	CoeffBase
	CoeffBr
	DcSign

	NumKinds
)

// Context-count constants shared with the syntax layer.
const (
	TxCats        = 4  // transform size categories (4, 8, 16, 32)
	PlaneTypes    = 2  // luma, chroma
	IntraModes    = 13 // DC .. PAETH
	TxTypes       = 9
	MvClasses     = 11
	MvMaxBits     = 10
	RefPositions  = 6
	EobClassesMax = 11
	BaseContexts  = 21
	BrContexts    = 21
	BrCdfSize     = 4
)

type kindInfo struct {
	name     string
	contexts int
	symbols  int
}

var kinds = [NumKinds]kindInfo{
	PartitionSmall: {"partition16", 4, 8},
	PartitionMid:   {"partition32", 4, 10},
	PartitionLarge: {"partition64", 4, 10},
	PartitionEdge:  {"partition_edge", 6, 2},
	Skip:           {"skip", 3, 2},
	DeltaQ:         {"delta_q", 1, 4},
	KfYMode:        {"kf_y_mode", 25, IntraModes},
	YMode:          {"y_mode", 4, IntraModes},
	UVMode:         {"uv_mode", IntraModes, IntraModes},
	IsInter:        {"is_inter", 4, 2},
	CompMode:       {"comp_mode", 3, 2},
	RefBit:         {"ref_bit", 3 * RefPositions, 2},
	CompRef0Bit:    {"comp_ref0_bit", RefPositions, 2},
	CompRef1Bit:    {"comp_ref1_bit", RefPositions, 2},
	InterMode:      {"inter_mode", 6, 4},
	CompInterMode:  {"comp_inter_mode", 6, 4},
	CompType:       {"comp_type", 3, 2},
	MvJoint:        {"mv_joint", 1, 4},
	MvSign:         {"mv_sign", 2, 2},
	MvClass:        {"mv_class", 2, MvClasses},
	MvClass0Bit:    {"mv_class0_bit", 2, 2},
	MvClass0Fr:     {"mv_class0_fr", 4, 4},
	MvFr:           {"mv_fr", 2, 4},
	MvClass0Hp:     {"mv_class0_hp", 2, 2},
	MvHp:           {"mv_hp", 2, 2},
	MvBits:         {"mv_bits", 2 * MvMaxBits, 2},
	TxDepth:        {"tx_depth", TxCats, 2},
	TxTypeIntra:    {"tx_type_intra", 3 * IntraModes, TxTypes},
	TxTypeInter:    {"tx_type_inter", 3, TxTypes},
	TxbSkip:        {"txb_skip", TxCats * PlaneTypes * 3, 2},
	EobPt16:        {"eob_pt_16", PlaneTypes, 5},
	EobPt32:        {"eob_pt_32", PlaneTypes, 6},
	EobPt64:        {"eob_pt_64", PlaneTypes, 7},
	EobPt128:       {"eob_pt_128", PlaneTypes, 8},
	EobPt256:       {"eob_pt_256", PlaneTypes, 9},
	EobPt512:       {"eob_pt_512", PlaneTypes, 10},
	EobPt1024:      {"eob_pt_1024", PlaneTypes, 11},
	EobExtra:       {"eob_extra", TxCats * PlaneTypes * EobClassesMax, 2},
	CoeffBaseEob:   {"coeff_base_eob", TxCats * PlaneTypes * 4, 3},
	CoeffBase:      {"coeff_base", TxCats * PlaneTypes * BaseContexts, 4},
	CoeffBr:        {"coeff_br", TxCats * PlaneTypes * BrContexts, BrCdfSize},
	DcSign:         {"dc_sign", PlaneTypes * 3, 2},
}

// Contexts returns the number of contexts of kind k.
func Contexts(k Kind) int { return kinds[k].contexts }

// Symbols returns the alphabet size of kind k.
func Symbols(k Kind) int { return kinds[k].symbols }

func (k Kind) String() string {
	if k >= NumKinds {
		return "invalid"
	}
	return kinds[k].name
}
