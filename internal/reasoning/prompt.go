package reasoning

import (
	"fmt"
	"strings"

	"github.com/candlelens/candlelens/pkg/models"
)

// BuildSystemPrompt embeds the whole taxonomy and the required answer format.
func BuildSystemPrompt(patterns []models.Pattern) string {
	var b strings.Builder
	b.WriteString("You are an expert candlestick pattern analyst. Given a text description of a candlestick chart, ")
	b.WriteString("identify which pattern it most closely matches from the taxonomy below.\n\n")
	b.WriteString("PATTERN TAXONOMY:\n")

	for _, p := range patterns {
		fmt.Fprintf(&b, "- %s | Category: %s | Direction: %s | %s\n", p.Name, p.Category, p.Direction, p.Description)
	}

	b.WriteString("\nINSTRUCTIONS:\n")
	b.WriteString("1. Carefully analyze the chart description\n")
	fmt.Fprintf(&b, "2. Compare against all %d patterns in the taxonomy\n", len(patterns))
	b.WriteString("3. Identify the best matching pattern\n")
	b.WriteString("4. If no pattern matches well, say \"No Clear Pattern\" with explanation\n\n")
	b.WriteString("Respond with ONLY a JSON object (no markdown, no code fences) in this exact format:\n")
	b.WriteString(`{"pattern": "<pattern name>", "category": "<Single/Two/Three/Multi/Continuation/Special>", `)
	b.WriteString(`"direction": "<Bullish/Bearish/Neutral>", "confidence": "<High/Medium/Low>", `)
	b.WriteString(`"reasoning": "<brief explanation of why this pattern matches>"}` + "\n")

	return b.String()
}

func userPrompt(description string) string {
	return "Analyze this candlestick chart description and identify the pattern:\n\n" + description
}
