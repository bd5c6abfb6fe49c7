package contentstream

import (
	"context"
	"fmt"

	"github.com/Peterrvisserr/WOOBARNEVELD/filters"
	"github.com/Peterrvisserr/WOOBARNEVELD/ir/raw"
)

// maxTreeDepth bounds walks up the page tree.
const maxTreeDepth = 64

// Inherited looks key up on the page and then on its ancestors.
func Inherited(doc *raw.Document, page *raw.DictObj, key string) (raw.Object, bool) {
	node := page
	for i := 0; node != nil && i < maxTreeDepth; i++ {
		if v, ok := node.Get(key); ok {
			return v, true
		}
		parent, ok := node.Get("Parent")
		if !ok {
			break
		}
		node, _ = doc.ResolveDict(parent)
	}
	return nil, false
}

// PageResources returns the resource dictionary in effect for a page. A
// page without resources gets an empty dictionary.
func PageResources(doc *raw.Document, page *raw.DictObj) *raw.DictObj {
	if v, ok := Inherited(doc, page, "Resources"); ok {
		if d, ok := doc.ResolveDict(v); ok {
			return d
		}
	}
	return raw.Dict()
}

// PageContent decodes and concatenates the content streams of a page.
func PageContent(ctx context.Context, doc *raw.Document, page *raw.DictObj, limits filters.Limits) ([]byte, error) {
	contents, ok := page.Get("Contents")
	if !ok {
		return nil, nil
	}
	pipeline := filters.DefaultPipeline(limits)
	var streams []*raw.StreamObj
	switch v := doc.Resolve(contents).(type) {
	case *raw.StreamObj:
		streams = append(streams, v)
	case *raw.ArrayObj:
		for _, item := range v.Items {
			if st, ok := doc.ResolveStream(item); ok {
				streams = append(streams, st)
			}
		}
	}
	var out []byte
	for i, st := range streams {
		data, err := pipeline.DecodeStream(ctx, doc, st)
		if err != nil {
			return nil, fmt.Errorf("decode content stream %d: %w", i, err)
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
	}
	return out, nil
}
