package rating

import (
	"fmt"
	"strings"

	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
)

// PromptVersion tags every LLM entry. Bump it whenever any prompt text below changes so
// cached ratings from the old wording can be told apart.
const PromptVersion = "lpwj-rubric-v1"

// rubric is the fixed explanation of each dimension, in canonical order
var rubric = map[types.Dimension]string{
	types.DimensionLove:    "self-giving care, compassion and benevolence toward others",
	types.DimensionPower:   "capacity to act, effect change, sustain and uphold",
	types.DimensionWisdom:  "understanding, insight, truthfulness and sound judgement",
	types.DimensionJustice: "righteousness, fairness, moral order and accountability",
}

func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are a careful rater of concepts. You rate how strongly a concept embodies each of four dimensions.\n\n")
	sb.WriteString("## Dimensions\n\n")
	for _, d := range types.Dimensions() {
		fmt.Fprintf(&sb, "- %s: %s\n", d.Title(), rubric[d])
	}
	sb.WriteString("\n## Scale\n\n")
	sb.WriteString("Use a number from 0.0 to 1.0 for each dimension, where 0.0 means the concept is entirely absent of that quality and 1.0 means it embodies that quality perfectly.\n")
	sb.WriteString("Rate the concept as it is commonly understood. Do not refuse; if unsure, give your best estimate.\n")

	return sb.String()
}

func buildUserPrompt(concept string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Rate the concept %q.\n\n", concept)
	sb.WriteString("Answer with exactly four lines in this format and nothing else:\n")
	for _, d := range types.Dimensions() {
		fmt.Fprintf(&sb, "%s: <number>\n", d.Title())
	}

	return sb.String()
}

// buildStrictPrompt is the reformulated prompt used once after an unparseable answer
func buildStrictPrompt(concept string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Your previous answer for the concept %q could not be read.\n", concept)
	sb.WriteString("Reply ONLY with a JSON object with the keys \"love\", \"power\", \"wisdom\" and \"justice\", ")
	sb.WriteString("each a decimal number between 0.0 and 1.0. No explanation, no markdown.\n")
	sb.WriteString("Example: {\"love\": 0.5, \"power\": 0.5, \"wisdom\": 0.5, \"justice\": 0.5}\n")

	return sb.String()
}
