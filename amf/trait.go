package amf

import (
	"strconv"
	"strings"
)

// TraitDefinition is the serialized shape of an object's class.
type TraitDefinition struct {
	// Name is the fully qualified class name, empty for anonymous objects.
	Name           string
	Static         []string
	Dynamic        bool
	Externalizable bool

	// DynamicFields lists, in order, the dynamic members a registered class declares.
	// They are written as name/value pairs, so they take no part in Equal or Key.
	DynamicFields []string
}

// AnonymousTrait is the shape of a plain dynamic object.
var AnonymousTrait = &TraitDefinition{Dynamic: true}

// IsAnonymous reports whether t describes a plain dynamic object with no class name.
func (t *TraitDefinition) IsAnonymous() bool {
	return t == nil || (t.Name == "" && t.Dynamic && !t.Externalizable && len(t.Static) == 0)
}

// Equal compares name, flags and the ordered static field list.
func (t *TraitDefinition) Equal(o *TraitDefinition) bool {
	if t == nil || o == nil {
		return t.IsAnonymous() && o.IsAnonymous()
	}
	if t.Name != o.Name || t.Dynamic != o.Dynamic || t.Externalizable != o.Externalizable {
		return false
	}
	if len(t.Static) != len(o.Static) {
		return false
	}
	for i := range t.Static {
		if t.Static[i] != o.Static[i] {
			return false
		}
	}
	return true
}

// Key returns a string that is equal for two traits exactly when Equal is true.
func (t *TraitDefinition) Key() string {
	if t == nil {
		t = AnonymousTrait
	}
	var sb strings.Builder
	sb.WriteString(strconv.Quote(t.Name))
	if t.Dynamic {
		sb.WriteString("|d")
	}
	if t.Externalizable {
		sb.WriteString("|e")
	}
	for _, s := range t.Static {
		sb.WriteByte('|')
		sb.WriteString(strconv.Quote(s))
	}
	return sb.String()
}

func (t *TraitDefinition) staticIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, s := range t.Static {
		if s == name {
			return i
		}
	}
	return -1
}
