package srcfacts

// Name is a qualified tag or attribute name split on the first ':'.
// Prefix is empty when the name carries no namespace prefix. The
// slices point into the scanner's window and are only valid until the
// next refill; Name is a transient value used during matching, never
// retained.
type Name struct {
	Prefix []byte
	Local  []byte
}

// nameBytes marks the bytes that may appear in a tag or attribute
// name. ':' is excluded; it is handled separately as the one permitted
// prefix separator.
var nameBytes [256]bool

func init() {
	const nameChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_."
	for i := 0; i < len(nameChars); i++ {
		nameBytes[nameChars[i]] = true
	}
}

// nameLen is the length of the maximal run of name bytes at the start
// of b.
func nameLen(b []byte) int {
	var i int
	for i < len(b) && nameBytes[b[i]] {
		i++
	}
	return i
}

// qnameLen is the length of the maximal qualified name at the start of
// b: a run of name bytes optionally containing one ':' separating a
// prefix from a nonempty local name.
func qnameLen(b []byte) int {
	i := nameLen(b)
	if i > 0 && i < len(b) && b[i] == ':' {
		if j := nameLen(b[i+1:]); j > 0 {
			i += 1 + j
		}
	}
	return i
}
