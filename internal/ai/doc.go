// Package ai holds the language-model backed collaborators of the workflow:
// the action classifier, the parameter extractor and the response
// summarizer. All of them talk to an llm.Client and never return errors to
// the graph; failures degrade to failback, best-effort text or a plain
// rendering of the payload.
package ai
