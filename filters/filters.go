// Package filters decodes and encodes PDF stream data.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// ErrSizeLimit is returned when decoded data exceeds Limits.MaxDecompressedSize.
var ErrSizeLimit = errors.New("decompressed size exceeds limit")

// UnsupportedError reports a filter that is recognised but not decoded here.
// Image codecs fall in this category: redaction never needs their pixels.
type UnsupportedError struct{ Filter string }

func (e UnsupportedError) Error() string { return "unsupported filter: " + e.Filter }

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// DefaultPipeline decodes every non-image filter.
func DefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

var abbreviations = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"A85": "ASCII85Decode",
	"AHx": "ASCIIHexDecode",
	"RL":  "RunLengthDecode",
	"DCT": "DCTDecode",
	"CCF": "CCITTFaxDecode",
}

func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if full, ok := abbreviations[name]; ok {
			name = full
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, UnsupportedError{Filter: name}
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrSizeLimit
		}
		data = out
	}
	return data, nil
}

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary, following indirect references through doc.
func ExtractFilters(doc *raw.Document, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj
	filterObj, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}
	switch f := doc.Resolve(filterObj).(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := doc.Resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	pObj, ok := dict.Get("DecodeParms")
	if !ok {
		pObj, ok = dict.Get("DP")
	}
	if ok {
		switch p := doc.Resolve(pObj).(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				d, _ := doc.Resolve(item).(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}

// DecodeStream returns the decoded payload of s.
func (p *Pipeline) DecodeStream(ctx context.Context, doc *raw.Document, s *raw.StreamObj) ([]byte, error) {
	names, params := ExtractFilters(doc, s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	return p.Decode(ctx, s.Data, names, params)
}

// EncodeFlate compresses data for a FlateDecode stream.
func EncodeFlate(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

// Decode reads a zlib stream. Producers that omit the zlib header are
// handled by retrying as raw deflate. Truncated streams yield what was
// inflated before the damage.
func (flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	out, err := inflate(in)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

func inflate(in []byte) ([]byte, error) {
	var out bytes.Buffer
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		_, err = io.Copy(&out, zr)
		zr.Close()
		if err == nil || out.Len() > 0 {
			return out.Bytes(), nil
		}
	}
	out.Reset()
	fr := flate.NewReader(bytes.NewReader(in))
	defer fr.Close()
	if _, ferr := io.Copy(&out, fr); ferr != nil && out.Len() == 0 {
		return nil, ferr
	}
	return out.Bytes(), nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4/5+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	clean := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0 {
			continue
		}
		clean = append(clean, c)
	}
	// an odd trailing digit is followed by an implied 0
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	result := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(result, clean)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		l := int(in[i])
		i++
		switch {
		case l == 128:
			return out.Bytes(), nil
		case l < 128:
			end := i + l + 1
			if end > len(in) {
				end = len(in)
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-l))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }
