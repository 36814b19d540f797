package llm

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/tailor_v1.txt
	tailorPromptV1 string
	//go:embed prompts/evaluate_v1.txt
	evaluatePromptV1 string
	//go:embed prompts/optimize_v1.txt
	optimizePromptV1 string
)

// TailorPrompt builds the first-round generation prompt from the base
// resume and the target job description.
func TailorPrompt(baseResume, jobDescription string) string {
	return strings.NewReplacer(
		"{{RESUME}}", baseResume,
		"{{JOB_DESCRIPTION}}", jobDescription,
	).Replace(tailorPromptV1)
}

// EvaluatePrompt builds the scoring prompt for a candidate resume.
func EvaluatePrompt(resume, jobDescription string) string {
	return strings.NewReplacer(
		"{{RESUME}}", resume,
		"{{JOB_DESCRIPTION}}", jobDescription,
	).Replace(evaluatePromptV1)
}

// OptimizePrompt builds the feedback-directed revision prompt. The
// feedback block is mandatory input; revision is directed by the prior
// round's evaluation, not blind regeneration.
func OptimizePrompt(resume, jobDescription, feedback string) string {
	return strings.NewReplacer(
		"{{RESUME}}", resume,
		"{{JOB_DESCRIPTION}}", jobDescription,
		"{{FEEDBACK}}", feedback,
	).Replace(optimizePromptV1)
}
