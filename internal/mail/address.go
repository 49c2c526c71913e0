package mail

import "regexp"

var addressRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether addr matches the accepted address grammar.
func ValidAddress(addr string) bool {
	return addressRe.MatchString(addr)
}

// FilterAddresses returns the addresses that pass ValidAddress, preserving
// order and duplicates.
func FilterAddresses(addrs []string) []string {
	var out []string
	for _, a := range addrs {
		if ValidAddress(a) {
			out = append(out, a)
		}
	}
	return out
}
