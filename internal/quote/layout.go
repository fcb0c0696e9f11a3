package quote

import (
	"math"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// Layout returns a near-square grid with Rows*Cols >= n and Cols >= Rows,
// minimal in total cells. Used for rendering the array footprint only.
func Layout(n int) model.GridLayout {
	if n <= 0 {
		return model.GridLayout{}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return model.GridLayout{Rows: rows, Cols: cols}
}
