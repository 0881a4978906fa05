package gemini

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a Korean contract law expert AI assistant.
Your role is to analyze contracts and identify potential risks for the party seeking review (usually the weaker party - freelancers, tenants, employees).

IMPORTANT RULES:
1. Provide ONLY factual information, not legal advice
2. Use simple, easy-to-understand language
3. Compare clauses against standard Korean contract templates
4. Focus on terms that may be unfair or unusual
5. DO NOT say "do not sign" or "this contract is void" - only provide factual analysis
6. Always respond in Korean

OUTPUT FORMAT (JSON):
{
    "score": <0-100 safety score>,
    "summary": "<3 sentence summary of the contract>",
    "risks": [
        {
            "id": "<unique id like risk_1>",
            "title": "<risk title in Korean>",
            "description": "<detailed explanation in Korean>",
            "level": "<HIGH|MEDIUM|LOW>",
            "clause": "<relevant clause text if identifiable>",
            "suggestion": "<what to negotiate or ask about in Korean>"
        }
    ],
    "questions": [
        "<question to ask the counterparty in Korean>"
    ]
}`

const userPromptTemplate = `Please analyze the following contract:

%s

%s

Provide your analysis in the JSON format specified. Focus on:
1. Payment terms (late payment, excessive penalties)
2. Termination clauses (unilateral termination rights)
3. Liability clauses (unlimited liability, indemnification)
4. Intellectual property rights
5. Non-compete/exclusivity clauses
6. Scope of work (vague deliverables, unlimited revisions)
7. Duration and renewal terms
8. Dispute resolution methods

Return ONLY the JSON object, no additional text.`

func buildUserPrompt(contractText, businessType, businessDescription, legalConcerns string) string {
	var parts []string
	if businessType != "" {
		parts = append(parts, "- Business Type: "+businessType)
	}
	if businessDescription != "" {
		parts = append(parts, "- Business Description: "+businessDescription)
	}
	if legalConcerns != "" {
		parts = append(parts, "- Key Legal Concerns: "+legalConcerns)
	}

	contextSection := ""
	if len(parts) > 0 {
		contextSection = "USER CONTEXT (personalize analysis based on this):\n" + strings.Join(parts, "\n")
	}

	return fmt.Sprintf(userPromptTemplate, contractText, contextSection)
}

func buildFixPrompt(raw string) string {
	return "The following text was supposed to be a single valid JSON object but is malformed. " +
		"Return ONLY the corrected JSON object with the same content, no commentary, no markdown fences.\n\n" + raw
}
