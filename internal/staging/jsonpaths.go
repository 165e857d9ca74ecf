package staging

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// Path is one parsed JSONPath expression: the chain of object keys leading
// to a value.
type Path []string

func (p Path) String() string {
	return "$." + strings.Join(p, ".")
}

// Lookup follows p through nested objects
func (p Path) Lookup(doc map[string]interface{}) (interface{}, bool) {
	var cur interface{} = doc
	for _, key := range p {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

type jsonPathsDocument struct {
	JSONPaths []string `json:"jsonpaths"`
}

// ParseJSONPaths reads a jsonpaths mapping document. Each expression maps
// positionally onto one column of the target table.
func ParseJSONPaths(r io.Reader) ([]Path, error) {
	var doc jsonPathsDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jsonpaths: %w", err)
	}
	if len(doc.JSONPaths) == 0 {
		return nil, fmt.Errorf("jsonpaths document has no expressions")
	}

	paths := make([]Path, 0, len(doc.JSONPaths))
	for _, expr := range doc.JSONPaths {
		p, err := ParsePath(expr)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ParsePath parses the JSONPath subset COPY accepts: a root followed by
// dot members ($.a.b) or bracket members ($['a'] or $["a"]).
func ParsePath(expr string) (Path, error) {
	s := strings.TrimSpace(expr)
	if !strings.HasPrefix(s, "$") {
		return nil, fmt.Errorf("jsonpath %q must start with $", expr)
	}
	s = s[1:]

	var p Path
	for len(s) > 0 {
		switch s[0] {
		case '.':
			s = s[1:]
			end := strings.IndexAny(s, ".[")
			if end < 0 {
				end = len(s)
			}
			if end == 0 {
				return nil, fmt.Errorf("jsonpath %q has an empty member", expr)
			}
			p = append(p, s[:end])
			s = s[end:]
		case '[':
			if len(s) < 2 || (s[1] != '\'' && s[1] != '"') {
				return nil, fmt.Errorf("jsonpath %q: only quoted member names are supported", expr)
			}
			quote := s[1]
			end := strings.IndexByte(s[2:], quote)
			if end < 0 || len(s) < end+4 || s[end+3] != ']' {
				return nil, fmt.Errorf("jsonpath %q has an unterminated member", expr)
			}
			p = append(p, s[2:end+2])
			s = s[end+4:]
		default:
			return nil, fmt.Errorf("jsonpath %q: unexpected %q", expr, s[0])
		}
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("jsonpath %q selects the whole document", expr)
	}
	return p, nil
}
