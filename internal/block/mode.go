package block

// PredMode is an intra prediction mode, in symbol order.
type PredMode uint8

const (
	DCPred PredMode = iota
	VPred
	HPred
	D45Pred
	D135Pred
	D113Pred
	D157Pred
	D203Pred
	D67Pred
	SmoothPred
	SmoothVPred
	SmoothHPred
	PaethPred

	NumIntraModes
)

var modeNames = [NumIntraModes]string{
	"DC", "V", "H", "D45", "D135", "D113", "D157", "D203", "D67", "SMOOTH", "SMOOTH_V", "SMOOTH_H", "PAETH",
}

func (m PredMode) String() string {
	if m >= NumIntraModes {
		return "INVALID"
	}
	return modeNames[m]
}

// Directional reports whether m extrapolates along an angle.
func (m PredMode) Directional() bool {
	return m >= VPred && m <= D67Pred
}

// Angle returns the prediction angle in degrees of a directional mode.
func (m PredMode) Angle() int {
	return modeAngles[m]
}

var modeAngles = [NumIntraModes]int{
	VPred: 90, HPred: 180, D45Pred: 45, D135Pred: 135, D113Pred: 113,
	D157Pred: 157, D203Pred: 203, D67Pred: 67,
}

// ModeContext maps an intra mode to its above/left context class (0..4).
var ModeContext = [NumIntraModes]int{0, 1, 2, 3, 4, 4, 4, 4, 3, 0, 1, 2, 0}

// InterMode is a single-reference inter mode.
type InterMode uint8

const (
	NearestMV InterMode = iota
	NearMV
	GlobalMV
	NewMV

	NumInterModes
)

var interModeNames = [NumInterModes]string{"NEARESTMV", "NEARMV", "GLOBALMV", "NEWMV"}

func (m InterMode) String() string {
	if m >= NumInterModes {
		return "INVALID"
	}
	return interModeNames[m]
}

// CompoundType selects how two inter predictions are blended.
type CompoundType uint8

const (
	CompoundAverage CompoundType = iota
	CompoundDistance
)

// RefFrame names a reference: IntraFrame for intra blocks, Last..Altref
// for inter references.
type RefFrame int8

const (
	NoneFrame  RefFrame = -1
	IntraFrame RefFrame = 0
	LastFrame  RefFrame = 1
	Last2Frame RefFrame = 2
	Last3Frame RefFrame = 3
	Golden     RefFrame = 4
	BwdRef     RefFrame = 5
	AltRef2    RefFrame = 6
	AltRef     RefFrame = 7
)

const (
	// NumRefSlots is the number of reference buffer slots.
	NumRefSlots = 8
	// InterRefsPerFrame is the number of named inter references.
	InterRefsPerFrame = 7
)

var refNames = [...]string{"INTRA", "LAST", "LAST2", "LAST3", "GOLDEN", "BWDREF", "ALTREF2", "ALTREF"}

func (r RefFrame) String() string {
	if r < 0 || int(r) >= len(refNames) {
		return "NONE"
	}
	return refNames[r]
}

// MotionVector is a displacement in 1/8 luma sample units.
type MotionVector struct {
	Row, Col int32
}

// IsZero reports whether mv is the zero vector.
func (mv MotionVector) IsZero() bool { return mv.Row == 0 && mv.Col == 0 }

// Add returns mv + o.
func (mv MotionVector) Add(o MotionVector) MotionVector {
	return MotionVector{mv.Row + o.Row, mv.Col + o.Col}
}

// Sub returns mv - o.
func (mv MotionVector) Sub(o MotionVector) MotionVector {
	return MotionVector{mv.Row - o.Row, mv.Col - o.Col}
}

// LowerPrecision rounds odd eighth-pel components toward zero when high
// precision vectors are disabled.
func (mv MotionVector) LowerPrecision(allowHP bool) MotionVector {
	if allowHP {
		return mv
	}
	round := func(v int32) int32 {
		if v&1 != 0 {
			if v > 0 {
				return v - 1
			}
			return v + 1
		}
		return v
	}
	return MotionVector{round(mv.Row), round(mv.Col)}
}

// MaxMvComponent bounds the magnitude of a motion vector component.
const MaxMvComponent = 1<<14 - 1
