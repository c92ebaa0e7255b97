package tree

import "regexp"

var disambigSuffix = regexp.MustCompile(`@\d+$`)

// Normalize strips the trailing "@<digits>" disambiguation suffix that is
// appended upstream when sibling cases share a display name. Everything
// else passes through untouched. It must be applied both when building an
// IdentityMap and when resolving incoming result names, or lookups
// silently miss.
func Normalize(id string) string {
	return disambigSuffix.ReplaceAllString(id, "")
}

// IdentityMap resolves a (file path, normalized name) pair to the case
// nodes that carry it. Duplicate display names collapse onto one key, so
// each key holds its cases in declaration order and Resolve hands them
// out one at a time.
type IdentityMap map[string][]*Node

func identityKey(filePath, name string) string {
	return filePath + "\x00" + Normalize(name)
}

// BuildIdentityMap indexes every case under the given file nodes.
func BuildIdentityMap(files []*Node) IdentityMap {
	m := make(IdentityMap)
	for _, f := range files {
		for _, c := range f.Cases() {
			key := identityKey(f.Path, c.ID)
			m[key] = append(m[key], c)
		}
	}
	return m
}

// Resolve returns the cases registered for the given file path and
// display name, declaration order preserved. A nil slice means the name
// is unknown.
func (m IdentityMap) Resolve(filePath, displayName string) []*Node {
	return m[identityKey(filePath, displayName)]
}
