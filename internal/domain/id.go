package domain

import "regexp"

// RootID designates every loaded configuration at once.
const RootID = "root"

// Kind is the entity kind encoded in the first character of an identifier.
type Kind byte

const (
	KindConfig Kind = 'c'
	KindFile   Kind = 'f'
	KindTest   Kind = 't'
	KindRoot   Kind = 'r'
	KindNone   Kind = 0
)

var (
	configIDPattern = regexp.MustCompile(`^c[0-9a-f]+$`)
	planIDPattern   = regexp.MustCompile(`^(root|[cft][0-9a-f]+)$`)
)

// KindOf recovers the kind of id, or KindNone when id is not well-formed.
func KindOf(id string) Kind {
	if id == RootID {
		return KindRoot
	}
	if !planIDPattern.MatchString(id) {
		return KindNone
	}
	return Kind(id[0])
}

// IsConfigID reports whether id has the shape of a configuration id.
func IsConfigID(id string) bool { return configIDPattern.MatchString(id) }

// IsPlanID reports whether id may appear in a run or debug plan.
func IsPlanID(id string) bool { return planIDPattern.MatchString(id) }
