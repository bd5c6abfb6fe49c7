package builder

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // Register decoders
	_ "image/png"
	"os"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// ImageFromFile decodes a PNG or JPEG file.
func ImageFromFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// ImageXObject converts src into a Flate-compressed image XObject. Gray
// images keep a single channel, everything else becomes DeviceRGB.
// Transparency is dropped: the sample is composited onto white.
func ImageXObject(src image.Image) *raw.StreamObj {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("XObject"))
	dict.Set("Subtype", raw.NameLiteral("Image"))
	dict.Set("Width", raw.NumberInt(int64(w)))
	dict.Set("Height", raw.NumberInt(int64(h)))
	dict.Set("BitsPerComponent", raw.NumberInt(8))
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))

	if gray, ok := src.(*image.Gray); ok {
		pixels := make([]byte, 0, w*h)
		for y := 0; y < h; y++ {
			off := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := gray.Pix[off : off+w]
			pixels = append(pixels, row...)
		}
		dict.Set("ColorSpace", raw.NameLiteral("DeviceGray"))
		return raw.NewStream(dict, filters.EncodeFlate(pixels))
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Over)

	pixels := make([]byte, 0, w*h*3)
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, rgba.Pix[offset], rgba.Pix[offset+1], rgba.Pix[offset+2])
	}
	dict.Set("ColorSpace", raw.NameLiteral("DeviceRGB"))
	return raw.NewStream(dict, filters.EncodeFlate(pixels))
}
