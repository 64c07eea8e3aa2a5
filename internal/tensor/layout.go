package tensor

// Layout tags the physical memory arrangement of a tensor. Dims always carry
// the logical shape regardless of layout; the layout only decides where each
// logical element lands in memory. Two tensors with equal dims and dtype but
// different layout tags hold the same logical values at different byte
// offsets, so layouts participate in descriptor equality.
//
// Plain layouts store elements in the row-major order their name spells.
// Blocked layouts tile a channel dimension into fixed-size runs (8 wide) for
// engines that vectorize across channels; the blocked dims must be divisible
// by the block size.
type Layout int

// Recognized layouts. The letters name the dimension order: N batch, C
// channel, H height, W width, O output channel, I input channel, G group.
const (
	Vec      Layout = iota // 1D contiguous
	NC                     // 2D row-major (batch, channel)
	OI                     // 2D weights (output, input)
	IO                     // 2D weights, transposed
	NCHW                   // 4D activations, channel-major
	NHWC                   // 4D activations, channel-minor
	OIHW                   // 4D conv weights
	HWIO                   // 4D conv weights, spatial-major
	GOIHW                  // 5D grouped conv weights
	NChw8c                 // 4D activations, channels blocked by 8
	OIhw8i8o               // 4D conv weights, both channel dims blocked by 8
)

// Rank returns the number of logical dimensions the layout describes.
func (l Layout) Rank() int {
	switch l {
	case Vec:
		return 1
	case NC, OI, IO:
		return 2
	case NCHW, NHWC, OIHW, HWIO, NChw8c, OIhw8i8o:
		return 4
	case GOIHW:
		return 5
	default:
		panic("unknown layout")
	}
}

// IsBlocked reports whether the layout tiles a channel dimension.
func (l Layout) IsBlocked() bool {
	return l == NChw8c || l == OIhw8i8o
}

// blockedDims returns the indices of logical dims that must be divisible by
// the block size, or nil for plain layouts.
func (l Layout) blockedDims() []int {
	switch l {
	case NChw8c:
		return []int{1}
	case OIhw8i8o:
		return []int{0, 1}
	default:
		return nil
	}
}

// BlockSize is the channel tile width of the blocked layouts.
const BlockSize = 8

// String returns the conventional spelling of the layout tag.
func (l Layout) String() string {
	switch l {
	case Vec:
		return "x"
	case NC:
		return "nc"
	case OI:
		return "oi"
	case IO:
		return "io"
	case NCHW:
		return "nchw"
	case NHWC:
		return "nhwc"
	case OIHW:
		return "oihw"
	case HWIO:
		return "hwio"
	case GOIHW:
		return "goihw"
	case NChw8c:
		return "nChw8c"
	case OIhw8i8o:
		return "OIhw8i8o"
	default:
		return "unknown"
	}
}
