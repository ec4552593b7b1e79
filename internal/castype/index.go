package castype

// Index maps archive-relative file paths, with the archive's root segment
// stripped, to slash-separated store paths relative to the store root.
type Index map[string]string
