package rating

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// keys that mark a bare body as a rating payload of the given kind
var bareRatingKeys = map[Kind][]string{
	KindProfile: {"overall_score", "overall_rating", "skills", "strengths"},
	KindIntro:   {"overall_score", "overall_rating", "content_rating", "delivery_rating"},
}

// ExtractPayload unwraps the rating from a /rating/{file} response, which
// has been seen in several envelopes.
func ExtractPayload(body []byte, kind Kind) (json.RawMessage, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}
	doc := gjson.ParseBytes(body)

	if v := doc.Get("rating_data"); truthy(v) {
		return json.RawMessage(v.Raw), true
	}
	if doc.Get("success").Bool() && truthy(doc.Get("data")) {
		return json.RawMessage(doc.Get("data").Raw), true
	}
	if v := doc.Get("data.rating_data"); truthy(v) {
		return json.RawMessage(v.Raw), true
	}
	for _, key := range bareRatingKeys[kind] {
		if truthy(doc.Get(key)) {
			return json.RawMessage(doc.Raw), true
		}
	}
	return nil, false
}
