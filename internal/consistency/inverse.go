package consistency

import (
	"fmt"

	"github.com/dreamware/taograph/internal/taoerr"
)

// inversePairs is the hand-written, authoritative map from a social
// action's forward association type to its inverse-direction type.
// internal/entity keeps a separate hand-maintained copy of these pairs
// for read-only introspection; the write path never consults it:
// spec.md's design note §9 on inverse associations calls the hand-written
// pairing the source of truth because codegen cannot infer which of two
// plausible inverses a new association type actually wants.
var inversePairs = map[string]string{
	"friend_follow": "followed_by",
	"like":          "liked_by",
	"group_member":  "group_has_member",
}

func inverseOf(atype string) (string, error) {
	inv, ok := inversePairs[atype]
	if !ok {
		return "", taoerr.New("consistency.inverseOf", taoerr.Validation, fmt.Errorf("no registered inverse association for type %q", atype))
	}
	return inv, nil
}
