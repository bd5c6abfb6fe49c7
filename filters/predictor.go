package filters

import (
	"errors"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

func intParam(params *raw.DictObj, key string, def int) int {
	o, ok := params.Get(key)
	if !ok {
		return def
	}
	if n, ok := o.(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}

// applyPredictor undoes TIFF (2) and PNG (10..15) predictors.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("invalid predictor parameters")
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if predictor == 2 {
		if bpc != 8 {
			return data, nil
		}
		out := append([]byte(nil), data...)
		for r := 0; r+rowLen <= len(out); r += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[r+i] += out[r+i-bpp]
			}
		}
		return out, nil
	}
	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for i := 0; i < len(data); i += rowLen + 1 {
		ft := data[i]
		end := i + 1 + rowLen
		if end > len(data) {
			end = len(data)
		}
		row := append([]byte(nil), data[i+1:end]...)
		for len(row) < rowLen {
			row = append(row, 0)
		}
		for j := 0; j < rowLen; j++ {
			var left, upLeft byte
			if j >= bpp {
				left = row[j-bpp]
				upLeft = prev[j-bpp]
			}
			up := prev[j]
			switch ft {
			case 1:
				row[j] += left
			case 2:
				row[j] += up
			case 3:
				row[j] += byte((int(left) + int(up)) / 2)
			case 4:
				row[j] += paeth(left, up, upLeft)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
