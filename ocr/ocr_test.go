package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"reflect"
	"testing"
)

func TestInputFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	langs := []string{"nld", "eng"}

	in, err := InputFromImage(img, 2,
		WithLanguages(langs...),
		WithDPI(300),
		WithPageSegMode(6),
		WithWhitelist("0123456789"),
	)
	if err != nil {
		t.Fatalf("InputFromImage() error = %v", err)
	}
	if in.PageIndex != 2 || in.ID != "page-2" || in.DPI != 300 {
		t.Fatalf("unexpected input header: %+v", in)
	}
	if in.PageSegMode != 6 || in.Whitelist != "0123456789" {
		t.Fatalf("unexpected engine settings: %+v", in)
	}
	decoded, err := png.Decode(bytes.NewReader(in.Image))
	if err != nil {
		t.Fatalf("payload is not PNG: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("bounds changed: %v", decoded.Bounds())
	}
	langs[0] = "deu"
	if !reflect.DeepEqual(in.Languages, []string{"nld", "eng"}) {
		t.Fatalf("languages not copied: %+v", in.Languages)
	}
}

func TestRegionUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b Region
		want Region
	}{
		{"disjoint", Region{X: 10, Y: 5, Width: 20, Height: 10}, Region{X: 40, Y: 2, Width: 10, Height: 20}, Region{X: 10, Y: 2, Width: 40, Height: 20}},
		{"empty left", Region{}, Region{X: 1, Y: 1, Width: 2, Height: 2}, Region{X: 1, Y: 1, Width: 2, Height: 2}},
		{"empty right", Region{X: 1, Y: 1, Width: 2, Height: 2}, Region{}, Region{X: 1, Y: 1, Width: 2, Height: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Union(tt.b); got != tt.want {
				t.Fatalf("Union = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResultWords(t *testing.T) {
	res := Result{Blocks: []TextBlock{
		{Lines: []TextLine{{Words: []TextWord{{Text: "Jan"}, {Text: "Jansen"}}}}},
		{Lines: []TextLine{{Words: []TextWord{{Text: "Kerkstraat"}}}, {Words: []TextWord{{Text: "1"}}}}},
	}}
	var got []string
	for _, w := range res.Words() {
		got = append(got, w.Text)
	}
	if !reflect.DeepEqual(got, []string{"Jan", "Jansen", "Kerkstraat", "1"}) {
		t.Fatalf("unexpected words %q", got)
	}
}

func TestDefaultEngineIsNoop(t *testing.T) {
	res, err := DefaultEngine().Recognize(context.Background(), Input{ID: "page-0"})
	if err != nil || res.InputID != "page-0" || res.PlainText != "" {
		t.Fatalf("unexpected default result %+v, %v", res, err)
	}
}
