// Package raw holds the untyped PDF object model produced by the parser and
// consumed by the semantic layer and the writer.
package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Encrypted bool
}

// NewDocument returns an empty document with the given header version.
func NewDocument(version string) *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: version,
	}
}

// Resolve follows indirect references until a direct object is reached.
// Missing objects resolve to nil. Reference chains are bounded to guard
// against cycles.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return nil
		}
		o = next
	}
	return nil
}

// ResolveDict resolves o and returns it as a dictionary. Streams yield their
// dictionary.
func (d *Document) ResolveDict(o Object) (*DictObj, bool) {
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

// ResolveArray resolves o and returns it as an array.
func (d *Document) ResolveArray(o Object) (*ArrayObj, bool) {
	a, ok := d.Resolve(o).(*ArrayObj)
	return a, ok
}

// ResolveStream resolves o and returns it as a stream.
func (d *Document) ResolveStream(o Object) (*StreamObj, bool) {
	s, ok := d.Resolve(o).(*StreamObj)
	return s, ok
}

// ResolveNumber resolves o and returns its numeric value.
func (d *Document) ResolveNumber(o Object) (float64, bool) {
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// Add stores obj under the next free object number.
func (d *Document) Add(obj Object) ObjectRef {
	ref := ObjectRef{Num: d.MaxObjectNumber() + 1}
	d.Objects[ref] = obj
	return ref
}

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// SortedRefs returns all object references in ascending order.
func (d *Document) SortedRefs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// Catalog returns the document catalog named by the trailer's /Root.
func (d *Document) Catalog() (*DictObj, bool) {
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, false
	}
	return d.ResolveDict(root)
}

// PageEntry is a leaf of the page tree.
type PageEntry struct {
	Ref  ObjectRef // zero for a page stored as a direct object
	Dict *DictObj
}

// Pages walks the page tree in document order. Nodes seen twice are
// skipped so a cyclic /Kids graph terminates.
func (d *Document) Pages() []PageEntry {
	cat, ok := d.Catalog()
	if !ok {
		return nil
	}
	root, ok := cat.Get("Pages")
	if !ok {
		return nil
	}
	var out []PageEntry
	seen := make(map[*DictObj]bool)
	var walk func(o Object, depth int)
	walk = func(o Object, depth int) {
		node, ok := d.ResolveDict(o)
		if !ok || seen[node] || depth > 64 {
			return
		}
		seen[node] = true
		kids, hasKids := node.Get("Kids")
		if typ, _ := node.Name("Type"); typ == "Page" || (!hasKids && typ != "Pages") {
			entry := PageEntry{Dict: node}
			if ref, ok := o.(RefObj); ok {
				entry.Ref = ref.R
			}
			out = append(out, entry)
			return
		}
		if arr, ok := d.ResolveArray(kids); ok {
			for _, kid := range arr.Items {
				walk(kid, depth+1)
			}
		}
	}
	walk(root, 0)
	return out
}
