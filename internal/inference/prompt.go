package inference

import (
	"fmt"
	"strings"
)

const extractionSystem = "You extract structured research, internship and funding opportunities from university web pages. Respond with JSON only."

const extractionTemplate = `Extract every distinct opportunity listed on the page below.

Source URL: %s
Department: %s

Return a JSON array. Each element must have exactly these fields:
- "title": the specific program or position name (not a page heading, navigation label or generic phrase)
- "description": one to three sentences describing the opportunity
- "department": the department, school or lab offering it
- "opportunity_type": one of "research", "internship", "funding", "fellowship", "leadership"
- "eligibility_requirements": who may apply, or ""
- "deadline": the application deadline as written on the page, or ""
- "funding_amount": stipend or award amount as written on the page, or ""
- "application_url": absolute URL where one applies, or ""
- "contact_email": contact address, or ""
- "tags": array of short lowercase topic keywords

Rules:
- Do not invent opportunities, dates, amounts or URLs that are not on the page.
- Titles must be specific; skip "Apply Now", "Application Deadline", "Overview" and similar.
- If the page lists no opportunities, return [].
- Output the JSON array only, without markdown fences or commentary.

Page content:
%s`

func extractionPrompt(sourceURL, department, content string) string {
	if department == "" {
		department = "unknown"
	}
	return fmt.Sprintf(extractionTemplate, sourceURL, department, content)
}

const summarySystem = "You help students find research opportunities. Answer in plain prose."

const maxSummaryTitles = 10

func summaryPrompt(query string, titles []string) string {
	if len(titles) > maxSummaryTitles {
		titles = titles[:maxSummaryTitles]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "A student searched for %q. These opportunities matched:\n", query)
	for _, t := range titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\nIn 2-3 sentences, explain why these results match the search and which look most relevant.")
	return b.String()
}
