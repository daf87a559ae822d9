package importer

import (
	"regexp"
	"strings"
)

// entityRe matches [[entity]] and [[entity|alias]] markers.
var entityRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// ExtractEntities finds all [[entity]] markers in the given text and
// returns the entity names deduplicated, ordered by first appearance.
func ExtractEntities(text string) []string {
	matches := entityRe.FindAllStringSubmatch(text, -1)

	seen := make(map[string]bool)
	var entities []string
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, name)
	}
	return entities
}

// StripEntityMarkers replaces [[entity]] markers with plain text. An
// aliased marker keeps its alias, otherwise the entity name is used.
func StripEntityMarkers(text string) string {
	return entityRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := entityRe.FindStringSubmatch(match)
		if alias := strings.TrimSpace(parts[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(parts[1])
	})
}
