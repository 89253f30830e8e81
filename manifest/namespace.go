package manifest

import "strings"

// ToAlias converts a library name to the alias scripts use in `using`
// paths: "UI-Kit" -> "ui_kit", "netTools" -> "net_tools".
func ToAlias(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				prev := rune(s[i-1])
				if prev >= 'a' && prev <= 'z' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// reservedAliases lists names a library alias must not take: they are
// the built-in type ids and the roots of the project's own tree.
var reservedAliases = map[string]bool{
	"null":           true,
	"int":            true,
	"float":          true,
	"bool":           true,
	"string":         true,
	"wstring":        true,
	"array":          true,
	"array_iterator": true,
	"table":          true,
	"function":       true,
	"struct":         true,
	"window":         true,
	"src":            true,
	"lib":            true,
}

// IsReservedAlias reports whether alias is unavailable to libraries.
func IsReservedAlias(alias string) bool {
	return reservedAliases[alias]
}
