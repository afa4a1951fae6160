package codec

import "math"

const ooSqrt2 = float32(0.7071067811865475244008443621049)

// tables holds the per-size dequantization and inverse DCT data.
type tables struct {
	size    int
	dequant []float32
	copyIdx []int
	cosine  []float32
}

var (
	tables16 = buildTables(16)
	tables32 = buildTables(32)
)

func tablesFor(size int) *tables {
	switch size {
	case 16:
		return tables16
	case 32:
		return tables32
	}
	return nil
}

func buildTables(n int) *tables {
	t := &tables{
		size:    n,
		dequant: make([]float32, n*n),
		copyIdx: make([]int, n*n),
		cosine:  make([]float32, n*n),
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			t.dequant[j*n+i] = 1 + 2*float32(i+j)
		}
	}
	for u := 0; u < n; u++ {
		for k := 0; k < n; k++ {
			t.cosine[u*n+k] = float32(math.Cos((2*float64(k) + 1) * float64(u) * math.Pi / (2 * float64(n))))
		}
	}

	// Zigzag order: coefficient count lands at row j, column i.
	diag, right := false, true
	i, j, count := 0, 0, 0
	for i < n && j < n {
		t.copyIdx[j*n+i] = count
		count++
		if !diag {
			if right {
				if i < n-1 {
					i++
				} else {
					j++
				}
				right = false
			} else {
				if j < n-1 {
					j++
				} else {
					i++
				}
				right = true
			}
			diag = true
			continue
		}
		if right {
			i++
			j--
			if i == n-1 || j == 0 {
				diag = false
			}
		} else {
			i--
			j++
			if j == n-1 || i == 0 {
				diag = false
			}
		}
	}
	return t
}

func (t *tables) idctColumn(in, out []float32, column int) {
	n := t.size
	for k := 0; k < n; k++ {
		total := ooSqrt2 * in[column]
		for u := 1; u < n; u++ {
			total += in[u*n+column] * t.cosine[u*n+k]
		}
		out[n*k+column] = total
	}
}

func (t *tables) idctLine(in, out []float32, line int) {
	n := t.size
	oosob := 2 / float32(n)
	base := line * n
	for k := 0; k < n; k++ {
		total := ooSqrt2 * in[base]
		for u := 1; u < n; u++ {
			total += in[base+u] * t.cosine[u*n+k]
		}
		out[base+k] = total * oosob
	}
}
