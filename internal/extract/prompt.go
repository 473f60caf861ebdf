package extract

import "strings"

const promptTemplate = `Extract shipping information from this request. Return JSON only.

Request: "{{query}}"

Extract:
- origin: The starting city (use standard city name like "Shenzhen", "Los Angeles", "NYC")
- destination: The ending city (same format)
- weight_kg: Weight in kg if mentioned, null if not
- transport_mode: "ground", "air", or "sea" if mentioned or implied, null if not
- confidence: 0-1 how confident you are in the extraction
- reasoning: Brief explanation of your interpretation

Return ONLY valid JSON, no markdown, no explanation:
{"origin": "...", "destination": "...", "weight_kg": ..., "transport_mode": "...", "confidence": ..., "reasoning": "..."}`

// BuildPrompt renders the extraction instructions for query.
func BuildPrompt(query string) string {
	return strings.Replace(promptTemplate, "{{query}}", query, 1)
}
