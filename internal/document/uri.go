package document

import (
	"fmt"
	"strings"
)

// URI identifies a virtual document. URIs use the weave: scheme, are
// synthesized (never real filesystem paths), and stay stable for the
// lifetime of the logical region they represent — language servers
// index by initial URI, so identity churn forces needless reopens.
type URI string

// RootURI synthesizes the URI for a host document's root virtual
// document in the given language.
func RootURI(hostPath, language string) URI {
	path := strings.TrimPrefix(hostPath, "/")
	return URI(fmt.Sprintf("weave:///%s/%s", path, language))
}

// ChildURI synthesizes the URI for a foreign child document. Merged
// (non-standalone) children are unique per language under a parent;
// standalone children carry their ordinal among standalone extractions
// of the same language, counted in source order.
func ChildURI(parent URI, language string, standalone bool, ordinal int) URI {
	if !standalone {
		return URI(fmt.Sprintf("%s/%s", parent, language))
	}
	return URI(fmt.Sprintf("%s/%s.%d", parent, language, ordinal))
}
