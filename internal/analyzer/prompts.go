package analyzer

import (
	"fmt"

	"github.com/markoval/stylist-api/internal/domain"
)

const summarizeSystem = `You are a marketing analyst. You extract the essence of a business web page:
what is offered, to whom, what makes it distinctive, and what tone the brand uses.
Answer as a numbered list of short analysis steps. Be factual; do not invent
details that are not on the page.`

const publicationSystem = `You are a professional copywriter. You write a complete, ready-to-post
publication about a business based on a prepared analysis. Write fluently,
without headings like "Introduction" or "Conclusion", and never mention that
you worked from an analysis.`

// styleInstructions maps each publication style to the writing
// instruction appended to the generation prompt.
var styleInstructions = map[domain.Style]string{
	domain.StylePersuasive:     "Write persuasively: build an argument for why the reader should act, back claims with the concrete facts from the analysis, and end with a clear call to action.",
	domain.StyleIronic:         "Write with light irony: playful, a little self-aware, teasing the subject without ever becoming mean or dismissive of it.",
	domain.StyleConversational: "Write conversationally, like telling a friend about a find: contractions, direct address, short sentences.",
	domain.StyleProvocative:    "Write provocatively: open with a claim that challenges a common assumption, then resolve the tension using the facts from the analysis.",
	domain.StyleInformational:  "Write informatively and neutrally: facts first, no sales pressure, the reader should finish knowing exactly what is offered and for whom.",
	domain.StyleFormal:         "Write formally, as for a corporate announcement: measured tone, full sentences, no slang, no exclamation marks.",
	domain.StyleStorytelling:   "Write as a story: a protagonist with a problem, the discovery of the subject, and how things changed, using the facts from the analysis as plot material.",
	domain.StyleSelling:        "Write hard-selling copy: lead with the strongest benefit, stack the offer, handle the main objection, close with urgency and a call to action.",
	domain.StyleMedical:        "Write in a careful, clinical register: precise wording, measured claims, nothing that overpromises, the way a medical communication would.",
}

func stepsPrompt(cleanedText string) string {
	return fmt.Sprintf("Analyze the following web page text and produce your analysis steps.\n\nPage text:\n%s", cleanedText)
}

func publicationPrompt(steps string, style domain.Style, occasion string) string {
	prompt := fmt.Sprintf("Prepared analysis of the business:\n%s\n\n%s", steps, styleInstructions[style])
	if occasion != "" {
		prompt += fmt.Sprintf("\n\nTie the publication to this occasion: %s", occasion)
	}
	return prompt
}
