package types

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EntityBase is the base type shared by every synthesized entity type.
const EntityBase = "Entity"

// SplitEntity decomposes "EntityUser" into ("Entity", "User"). Other names
// come back unchanged with an empty suffix.
func SplitEntity(dt string) (base, additional string) {
	if strings.HasPrefix(dt, EntityBase) && len(dt) > len(EntityBase) {
		rest := dt[len(EntityBase):]
		r, _ := utf8.DecodeRuneInString(rest)
		if unicode.IsUpper(r) {
			return EntityBase, rest
		}
	}
	return dt, ""
}

// IsEntity reports whether dt names the entity base or a concrete entity.
func IsEntity(dt string) bool {
	base, _ := SplitEntity(dt)
	return base == EntityBase
}

// TitleCase turns "user_role" into "UserRole". Underscores, dashes and
// spaces separate words.
func TitleCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	var b strings.Builder
	for _, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(p[size:])
	}
	return b.String()
}

// EntityType returns the entity type synthesized from an entity name literal.
func EntityType(name string) string {
	t := TitleCase(name)
	if t == "" {
		return ""
	}
	return EntityBase + t
}

// EntityToken reverses EntityType: "EntityUserRole" becomes "user_role".
// Names that are not concrete entity types return "".
func EntityToken(dt string) string {
	base, suffix := SplitEntity(dt)
	if base != EntityBase || suffix == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range suffix {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
