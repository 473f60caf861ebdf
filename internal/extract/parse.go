package extract

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/sells-group/carbon-cli/internal/model"
)

// FailedParseReasoning is the reasoning attached to the empty guess returned
// when the model's reply is not usable JSON.
const FailedParseReasoning = "Failed to parse response"

type rawExtraction struct {
	Origin        string   `json:"origin"`
	Destination   string   `json:"destination"`
	WeightKg      *float64 `json:"weight_kg"`
	TransportMode *string  `json:"transport_mode"`
	Confidence    *float64 `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
}

// Failed returns the empty guess used when a reply cannot be parsed.
func Failed() model.Extraction {
	return model.Extraction{Reasoning: FailedParseReasoning}
}

// Parse reads a model reply into an Extraction. It never fails: anything it
// cannot decode yields Failed(). A fenced ```json block is unwrapped first.
// Unknown modes and non-positive weights are dropped to nil so request
// defaults apply, and confidence is clamped to [0, 1].
func Parse(text string) model.Extraction {
	body := unfence(text)

	var raw rawExtraction
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Failed()
	}

	out := model.Extraction{
		Origin:      strings.TrimSpace(raw.Origin),
		Destination: strings.TrimSpace(raw.Destination),
		Reasoning:   raw.Reasoning,
	}

	if w := raw.WeightKg; w != nil && *w > 0 && !math.IsInf(*w, 0) {
		v := *w
		out.WeightKg = &v
	}

	if m := raw.TransportMode; m != nil {
		mode := model.TransportMode(strings.ToLower(strings.TrimSpace(*m)))
		if mode.Valid() {
			out.TransportMode = &mode
		}
	}

	if c := raw.Confidence; c != nil && !math.IsNaN(*c) {
		out.Confidence = math.Min(1, math.Max(0, *c))
	}

	return out
}

func unfence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
