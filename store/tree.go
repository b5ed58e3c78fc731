package store

import (
	"encoding/json"
	"sort"
	"strings"
)

// assemble builds the JSON object for path out of the leaf documents stored
// below it. docs maps full leaf paths to their raw documents. It returns nil
// when nothing lives under path.
func assemble(path string, docs map[string][]byte) []byte {
	prefix := path + "/"
	children := make(map[string]map[string][]byte)
	for p, doc := range docs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		name, _, _ := strings.Cut(rest, "/")
		if children[name] == nil {
			children[name] = make(map[string][]byte)
		}
		children[name][p] = doc
	}
	if len(children) == 0 {
		return nil
	}

	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	tree := make(map[string]json.RawMessage, len(names))
	for _, name := range names {
		childPath := prefix + name
		if doc, ok := children[name][childPath]; ok {
			tree[name] = json.RawMessage(doc)
			continue
		}
		if sub := assemble(childPath, children[name]); sub != nil {
			tree[name] = json.RawMessage(sub)
		}
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil
	}
	return out
}
