package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// shapeMatcher pulls the payload out of one response envelope shape.
type shapeMatcher struct {
	name    string
	extract func(body json.RawMessage) (json.RawMessage, bool)
}

// envelopeShapes lists the tolerated response shapes in the order they are
// tried. The remote API wraps payloads differently across endpoint versions.
var envelopeShapes = []shapeMatcher{
	{name: "responseObject", extract: fieldShape("responseObject")},
	{name: "data", extract: fieldShape("data")},
	{name: "bare", extract: bareShape},
}

func fieldShape(field string) func(json.RawMessage) (json.RawMessage, bool) {
	return func(body json.RawMessage) (json.RawMessage, bool) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, false
		}
		inner, ok := obj[field]
		if !ok || isNull(inner) {
			return nil, false
		}
		return inner, true
	}
}

func bareShape(body json.RawMessage) (json.RawMessage, bool) {
	if len(bytes.TrimSpace(body)) == 0 || isNull(body) {
		return nil, false
	}
	return body, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// extractTokens returns the credentials carried by a renewal response. The
// first shape whose payload has a non-empty accessToken wins.
func extractTokens(body []byte) (domain.TokenPair, bool) {
	for _, shape := range envelopeShapes {
		inner, ok := shape.extract(body)
		if !ok {
			continue
		}
		var pair domain.TokenPair
		if err := json.Unmarshal(inner, &pair); err != nil {
			continue
		}
		if pair.AccessToken != "" {
			return pair, true
		}
	}
	return domain.TokenPair{}, false
}

// decodeEnvelope decodes the payload of the first matching shape into out.
func decodeEnvelope(body []byte, out any) error {
	for _, shape := range envelopeShapes {
		inner, ok := shape.extract(body)
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, out); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", shape.name, err)
		}
		return nil
	}
	return fmt.Errorf("empty response body")
}
