// Package requests decodes remote store payloads into domain values
package requests

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/brettbedarf/webmirror"
)

// UnmarshalListing decodes a directory listing. A JSON null is an empty listing.
func UnmarshalListing(data []byte) ([]string, error) {
	var dto ListingDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if dto == nil {
		return []string{}, nil
	}
	return dto, nil
}

// UnmarshalMetadata decodes the metadata of name inside dirPath, applying
// defaults for missing fields
func UnmarshalMetadata(data []byte, dirPath, name string) (*webmirror.ItemMetadata, error) {
	var dto MetadataDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode metadata of %q: %w", name, err)
	}
	return convertMetadataDTO(dto, dirPath, name), nil
}

func convertMetadataDTO(dto MetadataDTO, dirPath, name string) *webmirror.ItemMetadata {
	md := &webmirror.ItemMetadata{
		Mimetype: valueOrDefault(dto.Mimetype, ""),
		Path:     valueOrDefault(dto.Path, dirPath+"/"+name),
	}
	if dto.Size != nil && *dto.Size >= 0 {
		size := int64(*dto.Size)
		md.Size = &size
	}
	if dto.ModificationTime != nil {
		t := SecondsToTime(*dto.ModificationTime)
		md.ModifiedAt = &t
	}
	return md
}

// SecondsToTime converts fractional Unix seconds to a time with nanosecond
// precision
func SecondsToTime(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9)))
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
