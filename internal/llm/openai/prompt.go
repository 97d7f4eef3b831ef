package openai

import (
	"fmt"
	"regexp"
	"strings"
)

// Message represents an OpenAI chat message.
type Message struct {
	Role    string
	Content string
}

const reportTemplate = `Format your response as a clean, professional report without visible markdown formatting. Use proper spacing, indentation, and structure for optimal human readability.

**TITLE EXAMINER'S REPORT**

**PROPERTY IDENTIFICATION**
Parcel Number (APN or PID):
Subdivision / Plat:
Legal Description:
Property Address:
Recording Information:
County / Jurisdiction:
Land Use / Zoning:

**LEGAL DESCRIPTION ANALYSIS**
Provide the legal description found in the document and note any inconsistencies or issues.

**CURRENT OWNERSHIP**
Owner(s) of Record:
Ownership Type:
Grantor(s):
Deed Type:
Date of Transfer:
Source Document(s):

**CHAIN OF TITLE**
List prior transfers or ownership changes mentioned in the document. If none found, state "No prior transfers identified."

**LIENS AND ENCUMBRANCES**
Mortgage or Deed of Trust:
Lienholders or Secured Parties:
Judgment or Tax Liens:
UCC Filings:
Release or Satisfaction Documents:

**EASEMENTS & RIGHTS-OF-WAY**
Beneficiary:
Burdened Property:
Purpose:
Recorded Location:
Duration / Conditions:
If none found, state "No easements identified."

**COVENANTS, CONDITIONS & RESTRICTIONS**
List any CC&Rs, declarations, HOA rules, or use limitations. If none found, state "No CC&Rs identified."

**TAXES & ASSESSMENTS**
Assessor's Parcel Number:
Current Assessed Owner:
Tax Status:
Special Assessments:

**EXCEPTIONS & OBSERVATIONS**
List any exceptions to title or relevant observations:
- Gaps or inconsistencies in ownership chain
- Missing releases or partial reconveyances
- Ambiguous legal descriptions
- Potential survey or boundary issues
- Any red flags requiring follow-up research

**SUMMARY OPINION**
Current Owner:
Title Status:
Key Issues:
Recommendations:

IMPORTANT INSTRUCTIONS:
1. Use context clues to correct obvious OCR errors (e.g., "amsurit" = "amount", "Scoerads" = "State of")
2. Format for clean human reading - no visible markdown symbols
3. Use proper spacing and indentation
4. If information is not found, state "Not Available" rather than guessing
5. Extract specific information from the text provided`

// BuildPrompt creates the chat messages for one document's title report.
// text is cut to maxChars runes when maxChars > 0.
func BuildPrompt(documentName, text string, maxChars int) []Message {
	text = truncateRunes(text, maxChars)
	name := strings.TrimSpace(documentName)
	if name == "" {
		name = "Unnamed document"
	}
	var b strings.Builder
	b.WriteString("Create a professional Title Examiner's Report based on the following document text. ")
	b.WriteString(`Use context clues to correct obvious OCR errors (e.g., "amsurit" should be "amount", "Scoerads" should be "State of").`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "SOURCE DOCUMENT: %s\n\n", name)
	b.WriteString("DOCUMENT TEXT TO ANALYZE:\n")
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(reportTemplate)

	return []Message{{Role: "user", Content: b.String()}}
}

var horizontalSpace = regexp.MustCompile(`[ \t]+`)

// CleanResponse strips double underscores, collapses horizontal whitespace and
// trims every line.
func CleanResponse(raw string) string {
	s := strings.ReplaceAll(raw, "__", "")
	s = horizontalSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
