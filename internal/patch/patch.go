package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Entry is one (path, value) change. A null value removes the key.
type Entry struct {
	Path  []string `json:"path"`
	Value Value    `json:"value"`
}

func (e Entry) String() string {
	return strings.Join(e.Path, ".")
}

// Patch is an ordered list of entries, applied in list order.
type Patch []Entry

// Set appends an entry.
func (p *Patch) Set(v Value, path ...string) {
	*p = append(*p, Entry{Path: append([]string(nil), path...), Value: v})
}

// Remove appends a removal entry for path.
func (p *Patch) Remove(path ...string) {
	p.Set(Null(), path...)
}

// Validate checks every entry's path without applying anything.
func (p Patch) Validate() error {
	for i, e := range p {
		if err := ValidatePath(e.Path); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// Apply writes each entry into dst in order, creating intermediate objects
// on demand. A null value deletes the leaf key. Validation failures and
// conflicts abort with an error; the caller must discard the whole patch.
func Apply(dst *Object, p Patch) error {
	for i, e := range p {
		if err := applyEntry(dst, e); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e, err)
		}
	}
	return nil
}

func applyEntry(dst *Object, e Entry) error {
	if err := ValidatePath(e.Path); err != nil {
		return err
	}
	last := len(e.Path) - 1
	node := dst
	for i, field := range e.Path[:last] {
		existing, ok := node.Get(field)
		if !ok {
			if e.Value.IsNull() {
				// Removing below a missing container is a no-op.
				return nil
			}
			o := NewObject()
			node.Set(field, Obj(o))
			node = o
			continue
		}
		o, isObj := existing.Object()
		if !isObj {
			return fmt.Errorf("%w: %v", ErrPathConflict, e.Path[:i+1])
		}
		node = o
	}
	if e.Value.IsNull() {
		node.Delete(e.Path[last])
		return nil
	}
	node.Set(e.Path[last], Clone(e.Value))
	return nil
}

// Builder produces a patch by extracting paths from a source value. Each
// added path that exists in the source becomes one entry; the sparse mirror
// accumulated on the way is available for callers that send whole objects.
type Builder struct {
	src     Value
	mirror  *Object
	entries Patch
}

func NewBuilder(src Value) *Builder {
	return &Builder{src: src, mirror: NewObject()}
}

// Add extracts path from the source. A path absent from the source adds
// nothing, even when an earlier Add left it in the mirror. Any error is
// fatal for the patch being built.
func (b *Builder) Add(path ...string) error {
	v, wrote, err := extract(b.src, b.mirror, path)
	if err != nil || !wrote {
		return err
	}
	b.entries = append(b.entries, Entry{Path: append([]string(nil), path...), Value: v})
	return nil
}

func (b *Builder) Len() int        { return len(b.entries) }
func (b *Builder) Patch() Patch    { return b.entries }
func (b *Builder) Mirror() *Object { return b.mirror }

// Digest returns the BLAKE2b-256 hash of the canonical JSON encoding of v.
// Peers compare digests to detect a diverged mirror.
func Digest(v Value) ([32]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}
