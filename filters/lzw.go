package filters

import (
	"context"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

// Decode implements the PDF flavour of LZW: MSB-first codes of 9 to 12 bits,
// clear code 256, EOD 257, and EarlyChange (default 1) controlling when the
// code width grows.
func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	early := intParam(params, "EarlyChange", 1)
	const clearCode, eodCode = 256, 257
	var (
		table  [][]byte
		out    []byte
		prev   []byte
		width  = 9
		bitBuf uint32
		bitCnt int
		pos    int
	)
	reset := func() {
		table = table[:0]
		for i := 0; i < 256; i++ {
			table = append(table, []byte{byte(i)})
		}
		table = append(table, nil, nil)
		width = 9
		prev = nil
	}
	reset()
	for {
		for bitCnt < width && pos < len(in) {
			bitBuf = bitBuf<<8 | uint32(in[pos])
			pos++
			bitCnt += 8
		}
		if bitCnt < width {
			break
		}
		code := int(bitBuf>>(bitCnt-width)) & (1<<width - 1)
		bitCnt -= width
		if code == clearCode {
			reset()
			continue
		}
		if code == eodCode {
			break
		}
		var entry []byte
		switch {
		case code < len(table) && table[code] != nil:
			entry = table[code]
		case code == len(table) && prev != nil:
			entry = append(append([]byte(nil), prev...), prev[0])
		default:
			return out, nil
		}
		out = append(out, entry...)
		if prev != nil && len(table) < 4096 {
			next := append(append([]byte(nil), prev...), entry[0])
			table = append(table, next)
		}
		prev = entry
		if len(table)+early >= 1<<width && width < 12 {
			width++
		}
	}
	return applyPredictor(out, params)
}
