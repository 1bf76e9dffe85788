package plan

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vinayprograms/warden/internal/faults"
	"github.com/vinayprograms/warden/internal/permission"
)

// Section headers of a plan document.
const (
	SectionSummary  = "Summary"
	SectionAnalysis = "Analysis"
	SectionSteps    = "Steps"
	SectionRollback = "Rollback Strategy"
)

var (
	preambleRe  = regexp.MustCompile(`(?m)^- (ID|Created|Status|Query):[ \t]?(.*)$`)
	stepHeadRe  = regexp.MustCompile(`^(\d+)\.[ \t]?(.*)$`)
	stepFieldRe = regexp.MustCompile(`^\s+[-*] \**(ID|Action|Target|Purpose|Risk|Status)\**:\**[ \t]?(.*)$`)
	headerRe    = regexp.MustCompile(`^(\\*)## (Summary|Analysis|Steps|Rollback Strategy)[ \t]*$`)
	bulletRe    = regexp.MustCompile(`^\s*[-*] (.*)$`)
	slugRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Render produces the document form of p.
func Render(p *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan %s\n\n", p.ID)
	fmt.Fprintf(&b, "- ID: %s\n", p.ID)
	fmt.Fprintf(&b, "- Created: %s\n", p.Created.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "- Status: %s\n", p.Status)
	fmt.Fprintf(&b, "- Query: %s\n", oneLine(p.Query))

	fmt.Fprintf(&b, "\n## %s\n\n%s\n", SectionSummary, escapeHeaders(p.Summary))
	fmt.Fprintf(&b, "\n## %s\n\n%s\n", SectionAnalysis, escapeHeaders(p.Analysis))

	fmt.Fprintf(&b, "\n## %s\n\n", SectionSteps)
	for i, s := range p.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, oneLine(s.Name))
		if id := oneLine(s.ID); id != "" {
			fmt.Fprintf(&b, "   - ID: %s\n", id)
		}
		fmt.Fprintf(&b, "   - Action: %s\n", s.Action)
		fmt.Fprintf(&b, "   - Target: %s\n", oneLine(s.Target))
		fmt.Fprintf(&b, "   - Purpose: %s\n", oneLine(s.Purpose))
		fmt.Fprintf(&b, "   - Risk: %s\n", s.Risk)
		fmt.Fprintf(&b, "   - Status: %s\n", s.Status)
	}

	fmt.Fprintf(&b, "\n## %s\n\n", SectionRollback)
	for _, r := range p.Rollback {
		fmt.Fprintf(&b, "- %s\n", oneLine(r))
	}
	return b.String()
}

// Parse reads a document produced by Render.
func Parse(doc string) (*Plan, error) {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	preamble, sections := splitFixedSections(doc)

	p := &Plan{}
	for _, m := range preambleRe.FindAllStringSubmatch(preamble, -1) {
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "ID":
			p.ID = value
		case "Created":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, faults.Wrap(faults.KindPlanParseError, err, "bad created timestamp")
			}
			p.Created = t
		case "Status":
			p.Status = Status(value)
		case "Query":
			p.Query = value
		}
	}
	if p.ID == "" {
		return nil, faults.New(faults.KindPlanParseError, "missing plan id")
	}
	if !p.Status.Valid() {
		return nil, faults.New(faults.KindPlanParseError, "plan %s: unknown status %q", p.ID, p.Status)
	}
	for _, name := range []string{SectionSummary, SectionAnalysis, SectionSteps, SectionRollback} {
		if _, ok := sections[name]; !ok {
			return nil, faults.New(faults.KindPlanParseError, "plan %s: missing section %q", p.ID, name)
		}
	}

	p.Summary = unescapeHeaders(strings.Trim(sections[SectionSummary], "\n"))
	p.Analysis = unescapeHeaders(strings.Trim(sections[SectionAnalysis], "\n"))

	steps, err := parseSteps(sections[SectionSteps], true)
	if err != nil {
		return nil, faults.Wrap(faults.KindPlanParseError, err, "plan %s", p.ID)
	}
	p.Steps = steps
	p.Rollback = parseBullets(sections[SectionRollback])
	return p, nil
}

// splitFixedSections splits a rendered document on the four section headers,
// taken only in their rendered order. Any other heading stays in the body of
// the section it appears in.
func splitFixedSections(doc string) (string, map[string]string) {
	order := []string{SectionSummary, SectionAnalysis, SectionSteps, SectionRollback}
	sections := make(map[string]string)
	var (
		preamble strings.Builder
		body     strings.Builder
		next     int
	)
	flush := func() {
		if next > 0 {
			sections[order[next-1]] = body.String()
		}
		body.Reset()
	}
	for _, line := range strings.SplitAfter(doc, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		if next < len(order) {
			if m := headerRe.FindStringSubmatch(trimmed); m != nil && m[1] == "" && m[2] == order[next] {
				flush()
				next++
				continue
			}
		}
		if next == 0 {
			preamble.WriteString(line)
		} else {
			body.WriteString(line)
		}
	}
	flush()
	return preamble.String(), sections
}

// escapeHeaders prefixes a backslash to free-text lines that would read as a
// section header, so Parse keeps them as text. Already escaped lines gain one more.
func escapeHeaders(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if headerRe.MatchString(line) {
			lines[i] = `\` + line
		}
	}
	return strings.Join(lines, "\n")
}

// unescapeHeaders reverses escapeHeaders.
func unescapeHeaders(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if m := headerRe.FindStringSubmatch(line); m != nil && m[1] != "" {
			lines[i] = line[1:]
		}
	}
	return strings.Join(lines, "\n")
}

// splitSections splits doc on headings of the given level and returns the
// text before the first heading plus each section's body keyed by title.
func splitSections(doc string, level int) (string, map[string]string) {
	prefix := strings.Repeat("#", level) + " "
	sections := make(map[string]string)
	var (
		preamble strings.Builder
		current  string
		body     strings.Builder
		inBody   bool
	)
	flush := func() {
		if inBody {
			sections[current] = body.String()
		}
		body.Reset()
	}
	for _, line := range strings.SplitAfter(doc, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		if strings.HasPrefix(trimmed, prefix) {
			flush()
			current = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
			inBody = true
			continue
		}
		if inBody {
			body.WriteString(line)
		} else {
			preamble.WriteString(line)
		}
	}
	flush()
	return preamble.String(), sections
}

// parseSteps reads a numbered step list. Strict mode requires every field to
// be valid; otherwise unknown actions are an error but missing fields default.
func parseSteps(section string, strict bool) ([]Step, error) {
	var (
		steps []Step
		cur   *Step
	)
	for _, line := range strings.Split(section, "\n") {
		if m := stepHeadRe.FindStringSubmatch(line); m != nil {
			steps = append(steps, Step{ID: m[1], Name: strings.TrimSpace(m[2])})
			cur = &steps[len(steps)-1]
			continue
		}
		m := stepFieldRe.FindStringSubmatch(line)
		if m == nil || cur == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "ID":
			if value != "" {
				cur.ID = value
			}
		case "Action":
			if strict {
				cur.Action = permission.Action(value)
			} else if a, err := permission.ParseAction(value); err == nil {
				cur.Action = a
			} else {
				return nil, fmt.Errorf("step %s: %w", cur.ID, err)
			}
		case "Target":
			cur.Target = value
		case "Purpose":
			cur.Purpose = value
		case "Risk":
			cur.Risk = permission.Risk(strings.ToLower(value))
		case "Status":
			cur.Status = StepStatus(strings.ToLower(value))
		}
	}

	seen := make(map[string]bool, len(steps))
	for i := range steps {
		s := &steps[i]
		if strict {
			if seen[s.ID] {
				return nil, fmt.Errorf("duplicate step id %q", s.ID)
			}
			seen[s.ID] = true
			if _, err := permission.ParseAction(string(s.Action)); err != nil {
				return nil, fmt.Errorf("step %s: %w", s.ID, err)
			}
			if !s.Status.Valid() {
				return nil, fmt.Errorf("step %s: unknown status %q", s.ID, s.Status)
			}
			if !validRisk(s.Risk) {
				return nil, fmt.Errorf("step %s: unknown risk %q", s.ID, s.Risk)
			}
			continue
		}
		if s.Action == "" {
			return nil, fmt.Errorf("step %s: missing action", s.ID)
		}
		if !validRisk(s.Risk) {
			s.Risk = s.Action.Risk()
		}
		s.Status = StepPending
	}
	return steps, nil
}

func validRisk(r permission.Risk) bool {
	return r == permission.RiskLow || r == permission.RiskMedium || r == permission.RiskHigh
}

// parseBullets returns the text of each "- " line.
func parseBullets(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			if text := strings.TrimSpace(m[1]); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

// Filename is the document name for p: its id and a slug of its summary.
func Filename(p *Plan) string {
	first, _, _ := strings.Cut(p.Summary, "\n")
	slug := Slug(first)
	if slug == "" {
		return p.ID + ".md"
	}
	return p.ID + "-" + slug + ".md"
}

// Slug lowercases s and joins its alphanumeric runs with dashes, capped at 40 bytes.
func Slug(s string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	return slug
}
