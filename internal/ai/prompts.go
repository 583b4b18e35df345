package ai

import (
	"strings"

	"OpenMCP-Salesforce/internal/knowledge"
	"OpenMCP-Salesforce/internal/registry"
)

const (
	classifyHeader = "Given the following user request and the list of available tools, " +
		"decide which tool (by name) is best suited to resolve the request. " +
		"If none are suitable, answer " + Failback + ".\n"

	queryPrompt = "Convert the following user request into a Salesforce SOQL query. " +
		"Only return the SOQL query, nothing else. Remove all decorators\nRequest: "

	objectNamePrompt = "Get from the following user request the Salesforce object that the user wants to know the details of. " +
		"Only return the Object Name, nothing else.\nRequest: "

	summaryPrompt = "Please read the following JSON response and provide a natural language summary of its contents. " +
		"Make the summary as clear and human-friendly as possible. If the response include a query please maintain it\nJSON:\n"
)

func buildClassifyPrompt(prompt string, ops []registry.Descriptor) string {
	var b strings.Builder
	b.WriteString(classifyHeader)
	b.WriteString("User request: ")
	b.WriteString(prompt)
	b.WriteString("\nAvailable tools:\n")
	for _, op := range ops {
		b.WriteString("- ")
		b.WriteString(op.Name)
		b.WriteString(": ")
		b.WriteString(op.Description)
		b.WriteString("\n")
	}
	b.WriteString("Respond with only the tool name (e.g., '")
	b.WriteString(ops[0].Name)
	b.WriteString("') or '" + Failback + "'.")
	return b.String()
}

func buildNotes(snippets []knowledge.Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Notes about this Salesforce org:\n")
	for _, s := range snippets {
		b.WriteString("- ")
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString(": ")
		}
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
