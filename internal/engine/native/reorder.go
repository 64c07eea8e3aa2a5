package native

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/weft-ml/weft/internal/engine"
	"github.com/weft-ml/weft/internal/tensor"
)

func (e *Engine) buildReorder(c engine.ReorderConfig) (engine.Handle, error) {
	sum := fmt.Sprintf("src %s dst %s", c.Src, c.Dst)

	if !c.Src.Dims().Equal(c.Dst.Dims()) {
		return nil, cerr(c.Kind(), sum, fmt.Errorf("logical dims must match: %w", engine.ErrShapeMismatch))
	}
	if err := reorderSupported(c.Src, c.Dst); err != nil {
		return nil, err
	}
	return &handle{cfg: c, in: []tensor.Descriptor{c.Src}, out: []tensor.Descriptor{c.Dst}}, nil
}

// reorderSupported reports whether the engine can bridge the two descriptors.
// Element conversion covers float32 and float16 in either direction; layout
// conversion covers any pair of plain layouts of equal rank plus packing and
// unpacking of the blocked layouts through their plain canonical form.
func reorderSupported(src, dst tensor.Descriptor) error {
	sd, dd := src.DType(), dst.DType()
	floatPair := (sd == tensor.Float32 && dd == tensor.Float16) ||
		(sd == tensor.Float16 && dd == tensor.Float32)
	if sd != dd && !floatPair {
		return &engine.UnsupportedConfigurationError{
			Op: engine.Reorder, Detail: fmt.Sprintf("element conversion %s to %s", sd, dd),
		}
	}
	if src.Layout().IsBlocked() && dst.Layout().IsBlocked() && src.Layout() != dst.Layout() {
		return &engine.UnsupportedConfigurationError{
			Op: engine.Reorder, Detail: fmt.Sprintf("layout conversion %s to %s", src.Layout(), dst.Layout()),
		}
	}
	return nil
}

func (e *Engine) execReorder(srcD, dstD tensor.Descriptor, src, dst *tensor.Tensor) {
	if srcD.Layout() == dstD.Layout() {
		convertDType(dst, src)
		return
	}

	// Bridge the element type first so the layout stage runs dtype-uniform.
	from := src
	if srcD.DType() != dstD.DType() {
		tmp := tensor.New(srcD.WithDType(dstD.DType()))
		convertDType(tmp, from)
		from = tmp
	}
	moveLayout(dst, from)
}

// convertDType copies src into dst element by element; the two tensors share
// dims and layout, so element order is preserved.
func convertDType(dst, src *tensor.Tensor) {
	sd, dd := src.Desc().DType(), dst.Desc().DType()
	switch {
	case sd == dd:
		copy(dst.Bytes(), src.Bytes())
	case sd == tensor.Float32 && dd == tensor.Float16:
		s := src.Float32s()
		d := dst.Uint16s()
		for i, v := range s {
			d[i] = float16.Fromfloat32(v).Bits()
		}
	case sd == tensor.Float16 && dd == tensor.Float32:
		s := src.Uint16s()
		d := dst.Float32s()
		for i, b := range s {
			d[i] = float16.Frombits(b).Float32()
		}
	default:
		panic(fmt.Sprintf("native: unhandled element conversion %s to %s", sd, dd))
	}
}

// moveLayout rewrites src into dst's layout. Both tensors share dims and
// dtype.
func moveLayout(dst, src *tensor.Tensor) {
	sl, dl := src.Desc().Layout(), dst.Desc().Layout()
	switch {
	case !sl.IsBlocked() && !dl.IsBlocked():
		permuteCopy(dst, src)
	case dl.IsBlocked():
		canon := canonicalFor(dl)
		from := src
		if sl != canon {
			tmp := tensor.New(tensor.MustDescriptor(src.Desc().Dims(), src.Desc().DType(), canon))
			permuteCopy(tmp, src)
			from = tmp
		}
		packBlocked(dst, from)
	default:
		canon := canonicalFor(sl)
		if dl == canon {
			unpackBlocked(dst, src)
			return
		}
		tmp := tensor.New(tensor.MustDescriptor(src.Desc().Dims(), src.Desc().DType(), canon))
		unpackBlocked(tmp, src)
		permuteCopy(dst, tmp)
	}
}

// canonicalFor names the plain layout a blocked layout packs from.
func canonicalFor(l tensor.Layout) tensor.Layout {
	if l == tensor.NChw8c {
		return tensor.NCHW
	}
	return tensor.OIHW
}

// physOrder lists a plain layout's logical dims outermost first. Blocked
// layouts have no single permutation and return nil.
func physOrder(l tensor.Layout) []int {
	switch l {
	case tensor.Vec:
		return []int{0}
	case tensor.NC, tensor.OI:
		return []int{0, 1}
	case tensor.IO:
		return []int{1, 0}
	case tensor.NCHW, tensor.OIHW:
		return []int{0, 1, 2, 3}
	case tensor.NHWC:
		return []int{0, 2, 3, 1}
	case tensor.HWIO:
		return []int{2, 3, 1, 0}
	case tensor.GOIHW:
		return []int{0, 1, 2, 3, 4}
	default:
		return nil
	}
}

// logicalStrides assigns each logical dim its physical stride under the given
// physical order.
func logicalStrides(dims tensor.Dims, order []int) []int {
	strides := make([]int, len(dims))
	acc := 1
	for i := len(order) - 1; i >= 0; i-- {
		strides[order[i]] = acc
		acc *= dims[order[i]]
	}
	return strides
}

func orderEqual(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// permuteCopy rewrites between two plain layouts by walking the logical index
// space with an odometer. Layouts with the same physical order degrade to a
// flat copy.
func permuteCopy(dst, src *tensor.Tensor) {
	srcOrder := physOrder(src.Desc().Layout())
	dstOrder := physOrder(dst.Desc().Layout())
	sb, db := src.Bytes(), dst.Bytes()
	if orderEqual(srcOrder, dstOrder) {
		copy(db, sb)
		return
	}

	dims := src.Desc().Dims()
	esz := src.Desc().DType().Size()
	srcStr := logicalStrides(dims, srcOrder)
	dstStr := logicalStrides(dims, dstOrder)

	idx := make([]int, len(dims))
	total := src.NumElements()
	for lin := 0; lin < total; lin++ {
		so, do := 0, 0
		for j, v := range idx {
			so += v * srcStr[j]
			do += v * dstStr[j]
		}
		copy(db[do*esz:(do+1)*esz], sb[so*esz:(so+1)*esz])
		for j := len(idx) - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < dims[j] {
				break
			}
			idx[j] = 0
		}
	}
}

func packBlocked(dst, src *tensor.Tensor) {
	d := src.Desc()
	esz := d.DType().Size()
	if dst.Desc().Layout() == tensor.NChw8c {
		packNChw8c(dst.Bytes(), src.Bytes(), d.Dim(0), d.Dim(1), d.Dim(2), d.Dim(3), esz)
		return
	}
	packOIhw8i8o(dst.Bytes(), src.Bytes(), d.Dim(0), d.Dim(1), d.Dim(2), d.Dim(3), esz)
}

func unpackBlocked(dst, src *tensor.Tensor) {
	d := dst.Desc()
	esz := d.DType().Size()
	if src.Desc().Layout() == tensor.NChw8c {
		unpackNChw8c(dst.Bytes(), src.Bytes(), d.Dim(0), d.Dim(1), d.Dim(2), d.Dim(3), esz)
		return
	}
	unpackOIhw8i8o(dst.Bytes(), src.Bytes(), d.Dim(0), d.Dim(1), d.Dim(2), d.Dim(3), esz)
}

// packNChw8c tiles channels into blocks of BlockSize with the channel lane
// innermost: [n][c/8][h][w][8].
func packNChw8c(dst, src []byte, n, c, h, w, esz int) {
	cb := c / tensor.BlockSize
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			blk, lane := ch/tensor.BlockSize, ch%tensor.BlockSize
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					si := (((b*c+ch)*h+y)*w + x) * esz
					di := (((((b*cb+blk)*h+y)*w+x)*tensor.BlockSize + lane)) * esz
					copy(dst[di:di+esz], src[si:si+esz])
				}
			}
		}
	}
}

func unpackNChw8c(dst, src []byte, n, c, h, w, esz int) {
	cb := c / tensor.BlockSize
	for b := 0; b < n; b++ {
		for ch := 0; ch < c; ch++ {
			blk, lane := ch/tensor.BlockSize, ch%tensor.BlockSize
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					di := (((b*c+ch)*h+y)*w + x) * esz
					si := (((((b*cb+blk)*h+y)*w+x)*tensor.BlockSize + lane)) * esz
					copy(dst[di:di+esz], src[si:si+esz])
				}
			}
		}
	}
}

// packOIhw8i8o tiles both channel dims: [o/8][i/8][h][w][8i][8o].
func packOIhw8i8o(dst, src []byte, o, i, kh, kw, esz int) {
	ib := i / tensor.BlockSize
	for oc := 0; oc < o; oc++ {
		ob, ol := oc/tensor.BlockSize, oc%tensor.BlockSize
		for ic := 0; ic < i; ic++ {
			bb, il := ic/tensor.BlockSize, ic%tensor.BlockSize
			for y := 0; y < kh; y++ {
				for x := 0; x < kw; x++ {
					si := (((oc*i+ic)*kh+y)*kw + x) * esz
					di := ((((((ob*ib+bb)*kh+y)*kw+x)*tensor.BlockSize+il)*tensor.BlockSize + ol)) * esz
					copy(dst[di:di+esz], src[si:si+esz])
				}
			}
		}
	}
}

func unpackOIhw8i8o(dst, src []byte, o, i, kh, kw, esz int) {
	ib := i / tensor.BlockSize
	for oc := 0; oc < o; oc++ {
		ob, ol := oc/tensor.BlockSize, oc%tensor.BlockSize
		for ic := 0; ic < i; ic++ {
			bb, il := ic/tensor.BlockSize, ic%tensor.BlockSize
			for y := 0; y < kh; y++ {
				for x := 0; x < kw; x++ {
					di := (((oc*i+ic)*kh+y)*kw + x) * esz
					si := ((((((ob*ib+bb)*kh+y)*kw+x)*tensor.BlockSize+il)*tensor.BlockSize + ol)) * esz
					copy(dst[di:di+esz], src[si:si+esz])
				}
			}
		}
	}
}
