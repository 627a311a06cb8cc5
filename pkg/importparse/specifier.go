package importparse

import "strings"

const nodeProtocol = "node:"

// PackageName reduces an import specifier to the package that provides it.
// Relative, absolute, subpath-import (#) and URL specifiers have no package
// and report false. The node: protocol prefix is stripped.
//
//	lodash/fp      -> lodash
//	@scope/pkg/sub -> @scope/pkg
//	node:fs        -> fs
func PackageName(specifier string) (string, bool) {
	spec := strings.TrimSpace(specifier)
	spec = strings.TrimPrefix(spec, nodeProtocol)

	if spec == "" || strings.ContainsAny(spec[:1], "./#") || strings.Contains(spec, "://") {
		return "", false
	}

	parts := strings.SplitN(spec, "/", 3)

	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 || parts[1] == "" || parts[0] == "@" {
			return "", false
		}

		return parts[0] + "/" + parts[1], true
	}

	return parts[0], true
}
