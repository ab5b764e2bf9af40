package generation

// Markers delimit reasoning content in a formatted response.
type Markers struct {
	Start string
	End   string
}

// DefaultMarkers wraps reasoning in <think></think>.
var DefaultMarkers = Markers{Start: "<think>", End: "</think>"}

// FormatResponse combines generated text with optional reasoning content.
//
//	no reasoning        -> text
//	reasoning and text  -> Start + reasoning + End + "\n\n" + text
//	reasoning, no text  -> Start + reasoning (still thinking)
func FormatResponse(text, reasoning string, m Markers) string {
	if reasoning == "" {
		return text
	}
	if text == "" {
		return m.Start + reasoning
	}
	return m.Start + reasoning + m.End + "\n\n" + text
}
