// Package generation defines the boundary between the task pipeline and
// external text-generation services used to translate or rewrite
// extracted captions.
package generation

import "context"

// Request describes one translation/rewrite job.
type Request struct {
	// Text is the extracted caption payload to transform.
	Text string

	// TargetLang is the BCP-47 tag of the requested output language.
	TargetLang string

	// SourceLang is the detected source language, when known. Empty lets
	// the model infer it.
	SourceLang string

	// Style optionally names a rewrite style (e.g. "concise", "formal").
	Style string

	// Instruction is an optional free-form user instruction appended to
	// the prompt.
	Instruction string
}

// Translator transforms caption text through an external generation
// service. Implementations stream chunks internally and return the final
// concatenation; the pipeline persists one string.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}
