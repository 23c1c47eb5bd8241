package snapshot

// ParseLocation exposes location parsing for testing
func ParseLocation(s string) (bucket, object, path string, err error) {
	loc, err := parseLocation(s)
	return loc.bucket, loc.object, loc.path, err
}
