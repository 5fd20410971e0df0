package container

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// ── Lazy cell ─────────────────────────────────────────────────────────────────

// Lazy defers a dependency's resolution until first Get(), caching the
// result. Declare a field of type *container.Lazy with a lazy inject tag:
//
//	type ReportService struct {
//	    Renderer *container.Lazy `inject:"pdfRenderer,lazy"`
//	}
//
//	r, err := s.Renderer.Get()
type Lazy struct {
	once    sync.Once
	resolve func() (any, error)
	value   any
	err     error
}

func newLazy(resolve func() (any, error)) *Lazy {
	return &Lazy{resolve: resolve}
}

// Get resolves the dependency on first call and returns the cached result
// thereafter.
func (l *Lazy) Get() (any, error) {
	l.once.Do(func() {
		l.value, l.err = l.resolve()
	})
	return l.value, l.err
}

// ── Injection markers ─────────────────────────────────────────────────────────

// injectionPoint is one tagged field on a component struct.
type injectionPoint struct {
	index    []int // reflect field index path
	name     string
	optional bool
	lazy     bool
}

const injectTag = "inject"

// injectionPoints scans t (a struct type) for `inject` tags. Anonymous
// embedded structs are walked first, so an outer redeclaration of the same
// field overrides what the embedded "base" declared.
//
// Tag grammar: `inject:"[name][,optional][,lazy]"`. An empty name is
// by-type: the dependency name is derived from the field's type name in
// lowerCamel, falling back to the lowerCamel field name for untyped (any)
// or ambiguous fields.
func injectionPoints(t reflect.Type) []injectionPoint {
	var points []injectionPoint
	collectInjectionPoints(t, nil, &points)
	return points
}

func collectInjectionPoints(t reflect.Type, path []int, points *[]injectionPoint) {
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		idx := append(append([]int(nil), path...), i)

		if field.Anonymous {
			// Fields behind an unexported embedded struct are not settable
			// via reflection; such "base classes" must be exported to carry
			// injection markers.
			if !field.IsExported() {
				continue
			}
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			collectInjectionPoints(ft, idx, points)
			continue
		}

		tag, ok := field.Tag.Lookup(injectTag)
		if !ok || !field.IsExported() {
			continue
		}

		point := injectionPoint{index: idx}
		parts := strings.Split(tag, ",")
		point.name = strings.TrimSpace(parts[0])
		for _, opt := range parts[1:] {
			switch strings.TrimSpace(opt) {
			case "optional":
				point.optional = true
			case "lazy":
				point.lazy = true
			}
		}
		if point.name == "" {
			point.name = derivedName(field)
		}
		*points = append(*points, point)
	}
}

// derivedName converts the field's type name (or the field name when the
// type is anonymous or an empty interface) to canonical component-name
// casing: "UserService" → "userService".
func derivedName(field reflect.StructField) string {
	t := field.Type
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" && t != anyType {
		return lowerCamel(name)
	}
	return lowerCamel(field.Name)
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

func lowerCamel(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// ── Injection resolver ────────────────────────────────────────────────────────

// injectAttributes populates every tagged field of instance (a struct
// pointer) by resolving against c. Required markers use Get and propagate
// its errors; optional markers use TryGet and leave the field zero on a
// miss; lazy markers install a *Lazy cell that resolves on first read.
func injectAttributes(c *Container, instance any) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	elem := v.Elem()

	for _, point := range injectionPoints(elem.Type()) {
		field, err := fieldByIndex(elem, point.index)
		if err != nil {
			return err
		}

		if point.lazy {
			if field.Type() != lazyType {
				return fmt.Errorf("lazy injection field %s must be of type *container.Lazy, got %s",
					point.name, field.Type())
			}
			field.Set(reflect.ValueOf(lazyCell(c, point)))
			continue
		}

		dep, err := resolvePoint(c, point)
		if err != nil {
			return err
		}
		if dep == nil {
			continue
		}
		dv := reflect.ValueOf(dep)
		if !dv.Type().AssignableTo(field.Type()) {
			return fmt.Errorf("cannot inject [%s] (%T) into field of type %s",
				point.name, dep, field.Type())
		}
		field.Set(dv)
	}
	return nil
}

var lazyType = reflect.TypeOf((*Lazy)(nil))

func lazyCell(c *Container, point injectionPoint) *Lazy {
	return newLazy(func() (any, error) {
		return resolvePoint(c, point)
	})
}

func resolvePoint(c *Container, point injectionPoint) (any, error) {
	if point.optional {
		return c.TryGet(point.name)
	}
	return c.Get(point.name)
}

// fieldByIndex walks an index path, allocating nil embedded struct pointers
// along the way.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, error) {
	for i, x := range index {
		if i > 0 {
			if v.Kind() == reflect.Ptr {
				if v.IsNil() {
					if !v.CanSet() {
						return reflect.Value{}, fmt.Errorf("cannot allocate embedded field in %s", v.Type())
					}
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v, nil
}
