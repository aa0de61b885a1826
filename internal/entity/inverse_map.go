package entity

// knownInverses mirrors internal/consistency's hand-written inverse
// pairing for introspection purposes only. It is tooling: a generated
// schema registry would walk association definitions to produce a table
// like this one, but nothing here ever writes through it — the
// consistency manager's own map remains the single authoritative source
// for which inverse actually gets written on a social action.
var knownInverses = map[string]string{
	"friend_follow": "followed_by",
	"like":          "liked_by",
	"group_member":  "group_has_member",
}

// InverseOf reports atype's known inverse association type for display/
// documentation purposes (e.g. an admin surface listing registered edge
// types). It is not consulted by any write path.
func InverseOf(atype string) (string, bool) {
	inv, ok := knownInverses[atype]
	return inv, ok
}

// DescribeInverses returns every known forward→inverse association type
// pairing, for admin/introspection output.
func DescribeInverses() map[string]string {
	out := make(map[string]string, len(knownInverses))
	for k, v := range knownInverses {
		out[k] = v
	}
	return out
}
