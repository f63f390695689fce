// Package domain holds the value types shared across emomusic packages.
package domain

// Track is an immutable, externally sourced playable item.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	AlbumArtURL string `json:"album_art_url,omitempty"`
	URI         string `json:"uri"`
}

// IsZero reports whether t carries no track at all.
func (t Track) IsZero() bool {
	return t.ID == "" && t.URI == ""
}
