package requests

// MetadataDTO is the JSON payload answered to a "<dir>/<name>?stat" request.
// Every field is optional on the wire.
type MetadataDTO struct {
	Mimetype *string  `json:"mimetype,omitempty"`
	Path     *string  `json:"path,omitempty"`
	Size     *float64 `json:"size,omitempty"` // Bytes; sent as a JSON number
	// ModificationTime is fractional seconds since the Unix epoch
	ModificationTime *float64 `json:"modification_time,omitempty"`
}

// ListingDTO is the JSON payload of a directory listing: child names in
// remote order
type ListingDTO []string
