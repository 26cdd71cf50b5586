package inventory

import "strings"

// tagsOf extracts the bracketed tags of a block name. "Door [A1:Inner]
// [AUTOCLOSE:5]" yields [["A1","Inner"], ["AUTOCLOSE","5"]]. Parts are
// trimmed and empty parts dropped; an unterminated bracket ends the scan.
func tagsOf(name string) [][]string {
	var tags [][]string
	rest := name
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			return tags
		}
		end := strings.IndexByte(rest[open+1:], ']')
		if end < 0 {
			return tags
		}
		inside := rest[open+1 : open+1+end]
		if parts := splitParts(inside); len(parts) > 0 {
			tags = append(tags, parts)
		}
		rest = rest[open+1+end+1:]
	}
}

func splitParts(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(raw, ":") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// hasTag reports whether name carries a single-part tag equal to want,
// ignoring case.
func hasTag(name, want string) bool {
	for _, tag := range tagsOf(name) {
		if len(tag) == 1 && strings.EqualFold(tag[0], want) {
			return true
		}
	}
	return false
}
