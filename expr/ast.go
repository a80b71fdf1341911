package expr

// Node is one vertex of a compiled statement tree. A single struct with a
// Kind discriminator keeps the JSON artifact round-trippable without custom
// marshalers.
type Node struct {
	Kind  string `json:"kind"`
	Op    string `json:"op,omitempty"`    // kindCmp: comparison operator
	Value any    `json:"value"`           // kindLiteral: the literal value; false/0/'' must round-trip

	Null  bool   `json:"null,omitempty"`  // kindLiteral: distinguishes null from an omitted Value
	Path  string `json:"path,omitempty"`  // kindPath, kindExist: the JSONPath text
	Param string `json:"param,omitempty"` // kindPath, kindExist: derived parameter name
	Left  *Node  `json:"left,omitempty"`
	Right *Node  `json:"right,omitempty"`
	Cond  *Node  `json:"cond,omitempty"`
	Then  *Node  `json:"then,omitempty"`
	Else  *Node  `json:"else,omitempty"`
}

const (
	kindLiteral = "literal"
	kindPath    = "path"
	kindCmp     = "cmp"
	kindAnd     = "and"
	kindOr      = "or"
	kindNot     = "not"
	kindExist   = "exist"
	kindWhen    = "when"
)

// paramName derives the decision-function parameter for a JSONPath by
// stripping the "$." prefix and replacing non-identifier characters with
// underscores: $.user.name -> user_name, $.items[0] -> items_0_.
func paramName(path string) string {
	suffix := path
	if len(suffix) >= 2 && suffix[0] == '$' && suffix[1] == '.' {
		suffix = suffix[2:]
	}

	out := make([]byte, len(suffix))
	for i := 0; i < len(suffix); i++ {
		c := suffix[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}
