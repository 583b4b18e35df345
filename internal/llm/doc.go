// Package llm defines the text-in/text-out contract used for every language
// model call. Providers live in subpackages.
package llm
