package webmirror

import "strings"

// Kind is the type of a node. Values are persisted; do not reorder.
type Kind int

const (
	// KindUnset means listed but metadata not yet fetched
	KindUnset Kind = iota
	KindUnknown
	KindDirectory
	KindText
	KindStaticImage
	KindAnimatedImage
	KindAudio
	KindVideo
)

var kindNames = [...]string{
	KindUnset:         "unset",
	KindUnknown:       "unknown",
	KindDirectory:     "directory",
	KindText:          "text",
	KindStaticImage:   "static_image",
	KindAnimatedImage: "animated_image",
	KindAudio:         "audio",
	KindVideo:         "video",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// Valid reports whether k is one of the defined kinds
func (k Kind) Valid() bool {
	return k >= KindUnset && k <= KindVideo
}

// IsDir reports whether the kind can hold children
func (k Kind) IsDir() bool {
	return k == KindDirectory
}

// Cacheable reports whether content of this kind may be pinned as a favorite
func (k Kind) Cacheable() bool {
	switch k {
	case KindText, KindStaticImage, KindAnimatedImage:
		return true
	default:
		return false
	}
}

// KindFromMimetype maps a "major/minor" media type onto a Kind.
// Malformed or unrecognized types map to KindUnknown.
func KindFromMimetype(mimetype string) Kind {
	major, minor, _ := strings.Cut(strings.TrimSpace(mimetype), "/")
	switch major {
	case "inode":
		return KindDirectory
	case "text":
		return KindText
	case "image":
		if minor == "gif" {
			return KindAnimatedImage
		}
		return KindStaticImage
	case "audio":
		return KindAudio
	case "video":
		return KindVideo
	default:
		return KindUnknown
	}
}
