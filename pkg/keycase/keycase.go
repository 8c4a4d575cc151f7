// Package keycase rewrites the keys of decoded JSON values from one naming
// convention to another.
//
// Values are classified into a closed set of kinds (see [Classify]). Only
// sequences and plain mappings are walked; scalars and opaque values such as
// time.Time, []byte or domain structs are returned as-is.
//
// Key collisions (two source keys converging on one target key) are resolved
// last-write-wins. For decoded values the walk visits keys in sorted order, so
// the source key that sorts last owns the target. For raw JSON the walk follows
// document order. Use [WithCollisionPolicy] to turn collisions into errors.
package keycase

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Kind is the classification of a value for conversion purposes.
type Kind int

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindOpaque:
		return "opaque"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Classify reports how Convert treats v.
//
// Only []any and []map[string]any are sequences, and only map[string]any is a
// plain mapping. Typed maps and slices of other element types are opaque.
func Classify(v any) Kind {
	switch v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		float32, float64:
		return KindScalar
	case []any, []map[string]any:
		return KindSequence
	case map[string]any:
		return KindMapping
	default:
		return KindOpaque
	}
}

// Converter rewrites a single key.
type Converter func(key string) (string, error)

// CollisionPolicy decides what happens when two keys convert to the same target.
type CollisionPolicy int

const (
	// CollideLastWins keeps the value of the last source key visited.
	CollideLastWins CollisionPolicy = iota
	// CollideError aborts the conversion with a *CollisionError.
	CollideError
)

// ParseCollisionPolicy parses "last_wins" or "error".
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch s {
	case "", "last_wins":
		return CollideLastWins, nil
	case "error":
		return CollideError, nil
	default:
		return CollideLastWins, fmt.Errorf("keycase: unknown collision policy %q", s)
	}
}

// Collision describes two source keys that produced the same target key.
type Collision struct {
	Path    string
	Target  string
	Sources []string // previous owner first, new owner last
}

// DefaultMaxDepth bounds nesting when no WithMaxDepth option is given.
const DefaultMaxDepth = 256

var (
	// ErrCycle is returned when a mapping or sequence contains itself.
	ErrCycle = errors.New("keycase: cyclic value")

	// ErrTooDeep is returned when nesting exceeds the configured maximum depth.
	ErrTooDeep = errors.New("keycase: nesting exceeds maximum depth")

	// ErrNotJSON is returned by ConvertJSON for input that is not valid JSON.
	// The input is returned unchanged alongside it.
	ErrNotJSON = errors.New("keycase: input is not valid JSON")
)

// ConverterError wraps an error returned by the Converter for a key.
type ConverterError struct {
	Path string
	Key  string
	Err  error
}

func (e *ConverterError) Error() string {
	return fmt.Sprintf("keycase: convert key %q at %s: %v", e.Key, e.Path, e.Err)
}

func (e *ConverterError) Unwrap() error { return e.Err }

// CollisionError is returned under CollideError.
type CollisionError struct {
	Collision Collision
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("keycase: keys %q collide on %q at %s",
		e.Collision.Sources, e.Collision.Target, e.Collision.Path)
}

// Transformer converts keys with a fixed converter and options.
// A Transformer is immutable after construction and safe for concurrent use.
type Transformer struct {
	convert     Converter
	maxDepth    int
	policy      CollisionPolicy
	onCollision func(Collision)
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithMaxDepth caps nesting depth. Values <= 0 keep the default.
func WithMaxDepth(n int) Option {
	return func(t *Transformer) {
		if n > 0 {
			t.maxDepth = n
		}
	}
}

// WithCollisionPolicy sets the collision policy.
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(t *Transformer) { t.policy = p }
}

// WithCollisionHook registers fn to observe every collision, whatever the policy.
func WithCollisionHook(fn func(Collision)) Option {
	return func(t *Transformer) { t.onCollision = fn }
}

// New creates a Transformer around a fallible converter.
func New(c Converter, opts ...Option) *Transformer {
	t := &Transformer{
		convert:  c,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ForNamer creates a Transformer around a naming convention.
func ForNamer(n Namer, opts ...Option) *Transformer {
	return New(n.Converter(), opts...)
}

// Convert rewrites every mapping key in v with n using default options.
func Convert(v any, n Namer) (any, error) {
	return ForNamer(n).Convert(v)
}

// Convert returns a converted copy of v. Mappings and sequences are rebuilt;
// nothing reachable from v is modified. On error no partial result is returned.
func (t *Transformer) Convert(v any) (any, error) {
	w := walker{t: t}
	out, err := w.value(v, "$", 0)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// containerID identifies a container on the path. Sequences also carry
// their length, since a sub-slice shares its parent's backing array.
type containerID struct {
	kind Kind
	ptr  uintptr
	len  int
}

// walker holds the containers on the current path for cycle detection.
type walker struct {
	t     *Transformer
	stack []containerID
}

func (w *walker) enter(v any, kind Kind) error {
	rv := reflect.ValueOf(v)
	id := containerID{kind: kind, ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		id.len = rv.Len()
	}
	for _, seen := range w.stack {
		if seen == id {
			return ErrCycle
		}
	}
	w.stack = append(w.stack, id)
	return nil
}

func (w *walker) leave() {
	w.stack = w.stack[:len(w.stack)-1]
}

func (w *walker) value(v any, path string, depth int) (any, error) {
	switch Classify(v) {
	case KindSequence:
		if depth >= w.t.maxDepth {
			return nil, ErrTooDeep
		}
		return w.sequence(v, path, depth)
	case KindMapping:
		return w.mapping(v.(map[string]any), path, depth)
	default:
		return v, nil
	}
}

func (w *walker) sequence(v any, path string, depth int) (any, error) {
	switch s := v.(type) {
	case []any:
		if s == nil {
			return s, nil
		}
		if len(s) > 0 {
			if err := w.enter(s, KindSequence); err != nil {
				return nil, err
			}
			defer w.leave()
		}
		out := make([]any, len(s))
		for i, elem := range s {
			cv, err := w.value(elem, indexPath(path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	case []map[string]any:
		if s == nil {
			return s, nil
		}
		if len(s) > 0 {
			if err := w.enter(s, KindSequence); err != nil {
				return nil, err
			}
			defer w.leave()
		}
		out := make([]map[string]any, len(s))
		for i, elem := range s {
			if elem == nil {
				continue
			}
			cv, err := w.mapping(elem, indexPath(path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	return v, nil
}

func (w *walker) mapping(m map[string]any, path string, depth int) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	if depth >= w.t.maxDepth {
		return nil, ErrTooDeep
	}
	if err := w.enter(m, KindMapping); err != nil {
		return nil, err
	}
	defer w.leave()

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	owner := make(map[string]string, len(m))
	for _, k := range keys {
		nk, err := w.t.convert(k)
		if err != nil {
			return nil, &ConverterError{Path: path, Key: k, Err: err}
		}
		if prev, ok := owner[nk]; ok {
			if err := w.t.collide(Collision{Path: path, Target: nk, Sources: []string{prev, k}}); err != nil {
				return nil, err
			}
		}
		owner[nk] = k

		cv, err := w.value(m[k], keyPath(path, k), depth+1)
		if err != nil {
			return nil, err
		}
		out[nk] = cv
	}
	return out, nil
}

func (t *Transformer) collide(c Collision) error {
	if t.onCollision != nil {
		t.onCollision(c)
	}
	if t.policy == CollideError {
		return &CollisionError{Collision: c}
	}
	return nil
}

func keyPath(parent, key string) string {
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
