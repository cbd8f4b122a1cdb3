package api

// FileRef is a fixture file, given inline or as a content-addressed remote
// object.
type FileRef struct {
	Path string `json:"path" toml:"path"`

	// Sha256 to check if file exists in cache
	Sha256 *string `json:"sha256,omitempty" toml:"sha256"`
	// URL to download file if missing
	Url *string `json:"url,omitempty" toml:"url"`
	// Content directly as an alternative to URL
	Content *string `json:"content,omitempty" toml:"content"`
}

// IsRemote reports whether the file has to be fetched.
func (f *FileRef) IsRemote() bool {
	return f.Content == nil && f.Sha256 != nil
}
