package webmirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindFromMimetype(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mimetype string
		want     Kind
	}{
		{"inode/directory", KindDirectory},
		{"text/plain", KindText},
		{"text/html", KindText},
		{"image/jpeg", KindStaticImage},
		{"image/png", KindStaticImage},
		{"image/gif", KindAnimatedImage},
		{"image", KindStaticImage},
		{"audio/mp3", KindAudio},
		{"video/mp4", KindVideo},
		{"other/type", KindUnknown},
		{"application/octet-stream", KindUnknown},
		{"", KindUnknown},
		{"/gif", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.mimetype, func(t *testing.T) {
			assert.Equal(t, tt.want, KindFromMimetype(tt.mimetype))
		})
	}
}

func TestKind_Cacheable(t *testing.T) {
	t.Parallel()

	cacheable := map[Kind]bool{
		KindText:          true,
		KindStaticImage:   true,
		KindAnimatedImage: true,
	}
	for k := KindUnset; k <= KindVideo; k++ {
		assert.Equal(t, cacheable[k], k.Cacheable(), "kind %s", k)
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "directory", KindDirectory.String())
	assert.Equal(t, "animated_image", KindAnimatedImage.String())
	assert.Equal(t, "invalid", Kind(42).String())
	assert.False(t, Kind(-1).Valid())
}

func TestNode_Initial(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "F", Node{Name: "folder"}.Initial())
	assert.Equal(t, "I", Node{Name: "Image"}.Initial())
	assert.Equal(t, "É", Node{Name: "été"}.Initial())
	assert.Equal(t, "", Node{Name: ""}.Initial())
}

func TestNode_SameModTime(t *testing.T) {
	t.Parallel()

	a := time.Unix(1469711432, 500)
	b := time.Unix(1469711432, 500)
	c := time.Unix(1469711433, 0)

	assert.True(t, Node{ModifiedAt: &a}.SameModTime(&b))
	assert.False(t, Node{ModifiedAt: &a}.SameModTime(&c))
	assert.False(t, Node{}.SameModTime(&a), "missing stored time never matches")
	assert.False(t, Node{ModifiedAt: &a}.SameModTime(nil))
}
