package plan

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/warden/internal/faults"
)

// ProposalPrompt asks the agent for a proposal in the section layout ParseProposal reads.
func ProposalPrompt(query string) string {
	return fmt.Sprintf(`Propose a plan for the following request. Do not carry it out.

Request: %s

Answer in Markdown with exactly these sections:

## Summary
One or two sentences.

## Analysis
What you found and why the steps are needed.

## Steps
A numbered list. Every step has these sub-fields:
1. Short step name
   - Action: one of read, write, modify, delete, execute-command, network
   - Target: the file path, command or URL the step acts on
   - Purpose: why the step is needed
   - Risk: low, medium or high

## Rollback Strategy
A bulleted list of how to undo the changes.
`, query)
}

// ParseProposal turns an agent's proposal into a pending plan. Headings of
// level one to three are accepted and missing risks default from the action.
func ParseProposal(query, text string) (*Plan, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sections map[string]string
	for _, level := range []int{2, 3, 1} {
		_, s := splitSections(text, level)
		s = normalizeTitles(s)
		if _, ok := s[SectionSteps]; ok {
			sections = s
			break
		}
	}
	if sections == nil {
		return nil, faults.New(faults.KindPlanParseError, "proposal has no %q section", SectionSteps)
	}

	steps, err := parseSteps(sections[SectionSteps], false)
	if err != nil {
		return nil, faults.Wrap(faults.KindPlanParseError, err, "proposal")
	}
	if len(steps) == 0 {
		return nil, faults.New(faults.KindPlanParseError, "proposal lists no steps")
	}
	for i := range steps {
		steps[i].Name = strings.Trim(steps[i].Name, "* ")
	}

	return New(query, sections[SectionSummary], sections[SectionAnalysis], steps, parseBullets(sections[SectionRollback])), nil
}

// normalizeTitles maps heading variants ("summary", "**Rollback strategy**") to canonical titles.
func normalizeTitles(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for title, body := range in {
		key := strings.ToLower(strings.Trim(title, "*: "))
		switch {
		case key == "summary":
			out[SectionSummary] = body
		case key == "analysis":
			out[SectionAnalysis] = body
		case key == "steps" || key == "plan steps":
			out[SectionSteps] = body
		case strings.HasPrefix(key, "rollback"):
			out[SectionRollback] = body
		}
	}
	return out
}
