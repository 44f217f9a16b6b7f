package utils

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidImagePayload = errors.New("invalid base64 image payload")

// DecodeBase64Image parses a "data:image/<ext>;base64,<payload>" data URI
// and returns the raw bytes plus the file extension (without dot).
// A bare base64 string without the data URI prefix is accepted as jpeg.
func DecodeBase64Image(data string) ([]byte, string, error) {
	ext := "jpeg"
	payload := data

	if strings.HasPrefix(data, "data:image/") {
		parts := strings.SplitN(data, ";base64,", 2)
		if len(parts) != 2 {
			return nil, "", ErrInvalidImagePayload
		}
		ext = strings.TrimPrefix(parts[0], "data:image/")
		payload = parts[1]
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrInvalidImagePayload
	}
	if len(raw) == 0 {
		return nil, "", ErrInvalidImagePayload
	}
	return raw, ext, nil
}
