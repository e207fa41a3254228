package shader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownStruct is returned when a struct is missing from the source or one of its fields
// has a type whose layout cannot be resolved.
var ErrUnknownStruct = errors.New("shader: unknown or unresolvable struct")

// Layout is the host-shareable size and alignment of a WGSL type.
type Layout struct {
	Size  uint64
	Align uint64
}

// Stride returns the distance between consecutive elements of an array of this type.
//
// Returns:
//   - uint64: the size rounded up to the alignment
func (l Layout) Stride() uint64 {
	return roundUpAlign(l.Align, l.Size)
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// fieldRegex matches a struct member: optional attributes, name, colon, type
	fieldRegex = regexp.MustCompile(`^(?:@\w+(?:\([^)]*\))?\s*)*(\w+)\s*:\s*(.+)$`)

	// builtinRegex matches @builtin(...) attributes, which take no buffer space
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)
)

// primitiveLayouts holds the size and alignment of the scalar, vector and matrix types a
// storage buffer record can use.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var primitiveLayouts = map[string]Layout{
	"f32": {4, 4},
	"i32": {4, 4},
	"u32": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x3<f32>": {64, 16},
	"mat4x3f":     {64, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},
}

// member is one buffer-relevant field of a WGSL struct.
type member struct {
	name     string
	typeName string
}

// structDecl is a WGSL struct declaration.
type structDecl struct {
	name    string
	members []member
}

// StructLayouts computes the layout of every struct in source whose members resolve.
// Structs may refer to structs declared anywhere in the source.
//
// Parameters:
//   - source: WGSL source
//
// Returns:
//   - map[string]Layout: layouts keyed by struct name
func StructLayouts(source string) map[string]Layout {
	decls := parseStructs(stripComments(source))
	resolved := make(map[string]Layout, len(decls))

	for progress := true; progress && len(decls) > 0; {
		progress = false
		pending := decls[:0]
		for _, d := range decls {
			if l, ok := structLayout(d, resolved); ok {
				resolved[d.name] = l
				progress = true
			} else {
				pending = append(pending, d)
			}
		}
		decls = pending
	}

	return resolved
}

// StructLayout computes the layout of the named struct in source.
//
// Parameters:
//   - source: WGSL source
//   - name: the struct name
//
// Returns:
//   - Layout: the struct's layout
//   - error: ErrUnknownStruct if the struct is absent or unresolvable
func StructLayout(source, name string) (Layout, error) {
	l, ok := StructLayouts(source)[name]
	if !ok {
		return Layout{}, errors.Wrapf(ErrUnknownStruct, "%q", name)
	}
	return l, nil
}

func parseStructs(source string) []structDecl {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	decls := make([]structDecl, 0, len(matches))

	for _, m := range matches {
		d := structDecl{name: m[1]}
		for _, part := range splitTopLevel(m[2]) {
			part = strings.TrimSpace(part)
			if part == "" || builtinRegex.MatchString(part) {
				continue
			}
			if fm := fieldRegex.FindStringSubmatch(part); fm != nil {
				d.members = append(d.members, member{name: fm[1], typeName: strings.ReplaceAll(fm[2], " ", "")})
			}
		}
		decls = append(decls, d)
	}
	return decls
}

// structLayout places each member at its next aligned offset and rounds the total up to the
// largest member alignment.
func structLayout(d structDecl, known map[string]Layout) (Layout, bool) {
	var offset uint64
	align := uint64(1)

	for _, m := range d.members {
		l, ok := typeLayout(m.typeName, known)
		if !ok {
			return Layout{}, false
		}
		offset = roundUpAlign(l.Align, offset) + l.Size
		align = max(align, l.Align)
	}

	return Layout{Size: roundUpAlign(align, offset), Align: align}, true
}

// typeLayout resolves primitives, known structs and fixed-size arrays.
func typeLayout(typeName string, known map[string]Layout) (Layout, bool) {
	if l, ok := primitiveLayouts[typeName]; ok {
		return l, true
	}
	if l, ok := known[typeName]; ok {
		return l, true
	}

	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return Layout{}, false
	}
	elemType, count, fixed := strings.Cut(strings.TrimSuffix(inner, ">"), ",")
	if !fixed {
		return Layout{}, false
	}

	elem, ok := typeLayout(elemType, known)
	if !ok {
		return Layout{}, false
	}
	n, err := strconv.ParseUint(count, 10, 64)
	if err != nil {
		return Layout{}, false
	}
	return Layout{Size: n * elem.Stride(), Align: elem.Align}, true
}

// splitTopLevel splits a struct body at commas that are not nested inside <> or ().
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<', '(':
			depth++
		case '>', ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// stripComments removes line comments and nested block comments.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))

	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch source[i : i+2] {
			case "/*":
				depth++
				i++
				continue
			case "*/":
				if depth > 0 {
					depth--
					i++
					continue
				}
			case "//":
				if depth == 0 {
					for i < len(source) && source[i] != '\n' {
						i++
					}
					sb.WriteByte('\n')
					continue
				}
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}
