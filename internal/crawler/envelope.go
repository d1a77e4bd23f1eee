package crawler

import (
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"strings"
)

const (
	envelopeHTMLField  = "Html"
	envelopeTotalField = "TotalCount"
)

// DecodeEnvelope validates and unwraps a listing response. The content type
// is checked before the body is parsed.
func DecodeEnvelope(body []byte, contentType string) (ListingEnvelope, error) {
	if !isJSONMediaType(contentType) {
		return ListingEnvelope{}, fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)
	}

	// Unmarshal rejects trailing data after the object.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return ListingEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		// "null" decodes into a nil map without error.
		return ListingEnvelope{}, fmt.Errorf("%w: body is not a JSON object", ErrMalformedEnvelope)
	}

	var fragment string
	raw, ok := fields[envelopeHTMLField]
	if !ok || json.Unmarshal(raw, &fragment) != nil || strings.TrimSpace(fragment) == "" {
		return ListingEnvelope{}, fmt.Errorf("%w: no non-empty %s field", ErrMissingHTMLPayload, envelopeHTMLField)
	}

	return ListingEnvelope{
		HTML:       fragment,
		TotalCount: decodeTotalCount(fields[envelopeTotalField]),
	}, nil
}

func isJSONMediaType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeTotalCount never fails: anything but a non-negative number is 0.
// Fractional counts round up so that pageNumber*pageSize < total compares
// the same as against the raw value.
func decodeTotalCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return clampCount(float64(i))
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return clampCount(f)
}

func clampCount(f float64) int {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(f))
}
