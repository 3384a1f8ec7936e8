// File: internal/usecase/prompts.go
package usecase

import (
	"fmt"
	"strings"
)

const visionSystemPrompt = `You are an expert image analyst. Your job is to analyze images and provide detailed, structured descriptions.

When analyzing an image:
1. Describe what type of image it is (chart, graph, screenshot, photo, etc.)
2. Identify key elements, labels, and data points
3. Extract any text visible in the image
4. Note any patterns, trends, or important observations
5. Summarize the main purpose or message of the image

Be thorough but concise. Focus on extractable data and actionable insights.
Format your response clearly with sections if needed.`

const reasoningSystemPrompt = `You are a Python programming expert and data analyst. Your job is to plan how to write Python code based on image analysis.

Given an analysis of an image, determine:
1. What data needs to be extracted or processed
2. What Python libraries would be most appropriate
3. What kind of output the user likely wants
4. Step-by-step approach for the code

Think methodically and create a clear plan that a code generator can follow.
Keep your plan concise and actionable.`

const codegenSystemPrompt = `You are an expert Python programmer. Generate clean, efficient, and well-documented Python code.

Guidelines:
1. Use only standard library and common data science packages (pandas, numpy, matplotlib, seaborn)
2. Include clear comments explaining the code
3. Handle potential errors gracefully
4. Write code that is self-contained and executable
5. If generating visualizations, save to a file inside the output/ directory (not display)
6. Print results to stdout for capture

IMPORTANT SECURITY RULES:
- Do NOT make network requests (no urllib, requests, http, socket)
- Do NOT access the filesystem except for the designated output directory
- Do NOT use subprocess, os.system, or eval/exec
- Do NOT import dangerous modules (pickle with untrusted data, etc.)

Your code will run in a restricted sandbox environment.`

func visionUserPrompt(userPrompt string) string {
	return fmt.Sprintf(`Analyze this image and provide a detailed description.

Focus on:
- What type of visualization or content is shown
- Any data, numbers, labels, or text visible
- Patterns, trends, or key insights
- Information that would be useful for generating Python code to process or analyze this data

Additional context from user: %s`, userPrompt)
}

func reasoningUserPrompt(analysis, userPrompt string) string {
	return fmt.Sprintf(`Based on this image analysis, plan what Python code should be written.

IMAGE ANALYSIS:
%s

USER REQUEST:
%s

Provide a clear plan for the Python code:
1. What libraries to use
2. What data to extract/process
3. What calculations or transformations to perform
4. What output to generate (chart, CSV, summary, etc.)`, analysis, userPrompt)
}

func codegenUserPrompt(analysis, plan, userPrompt, feedback string) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, `Generate Python code based on this plan.

IMAGE ANALYSIS:
%s

PLAN:
%s

USER REQUEST:
%s
`, analysis, plan, userPrompt)
	if feedback != "" {
		fmt.Fprintf(b, `
A previous attempt was rejected by static analysis. Do not repeat these issues:
%s
`, feedback)
	}
	b.WriteString(`
Requirements:
1. The code should be complete and runnable
2. Save any generated files to the output/ directory
3. Print a summary of results to stdout
4. Include error handling

Generate ONLY the Python code, wrapped in ` + "```python```" + ` code blocks.`)
	return b.String()
}

// extractCode pulls the python source out of a fenced model response. A
// response with no fence is taken verbatim, trimmed.
func extractCode(response string) string {
	const open = "```python"
	start := strings.Index(response, open)
	if start < 0 {
		if start = strings.Index(response, "```"); start < 0 {
			return strings.TrimSpace(response)
		}
		start += len("```")
	} else {
		start += len(open)
	}
	rest := response[start:]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
