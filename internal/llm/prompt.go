package llm

import (
	"strings"
)

// NoTextPlaceholder stands in for a transcription an engine failed to produce.
const NoTextPlaceholder = "No text extracted"

const (
	VisionSystemPrompt = "You are an expert OCR system specialized in extracting text from restaurant menu images. " +
		"Extract all text accurately while preserving structure and formatting."

	ArbiterSystemPrompt = "You are an expert OCR comparison system. Always respond with valid JSON only."

	ValidatorSystemPrompt = "You are a helpful assistant that analyzes text to determine if it represents a restaurant menu. " +
		"Always respond with valid JSON only."
)

// BuildVisionPrompt is the user instruction sent alongside the menu image.
func BuildVisionPrompt() string {
	parts := []string{
		"Please extract all text from this image accurately.",
		"",
		"Requirements:",
		"1. Extract ALL visible text, including menu items, prices, descriptions, and section headers.",
		"2. Preserve the structure and formatting as much as possible.",
		"3. Keep every price on the same line as its menu item.",
		"4. Maintain line breaks and sections to preserve readability.",
		"5. Keep currency symbols (₹, $, Rs, €, £) with their prices.",
		"6. Include numbers and quantities exactly as printed.",
		"",
		"Return only the extracted text in a clean, readable format that preserves the menu structure.",
	}
	return strings.Join(parts, "\n")
}

// BuildArbitrationPrompt asks the reasoning model to pick or merge two transcriptions.
// An empty side is shown as NoTextPlaceholder so the model knows that engine produced nothing.
func BuildArbitrationPrompt(structuredText, visionText string) string {
	var b strings.Builder
	b.WriteString("You compare OCR results of restaurant menus.\n\n")
	b.WriteString("Compare the following two OCR results and determine which one is more accurate and complete.\n\n")
	writeBlock(&b, "Structured OCR result", structuredText)
	writeBlock(&b, "Vision model result", visionText)
	b.WriteString(strings.Join([]string{
		"Instructions:",
		"1. Evaluate both results for accuracy, completeness and readability.",
		"2. Look for complete menu items with prices, clear section headers, proper structure, minimal garbled text.",
		"3. If one result is clearly better, use that one verbatim.",
		"4. If both have strengths, create a hybrid result combining the best parts.",
		"5. If both are poor, choose the less problematic one.",
		"6. If one result says \"" + NoTextPlaceholder + "\", clean up and return the other one.",
		"",
		"Return a JSON object with the following structure:",
		`{"finalText": "the best OCR result, cleaned and formatted", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`,
		"",
		"Return valid JSON only, no additional text.",
	}, "\n"))
	return b.String()
}

// BuildValidationPrompt asks the reasoning model whether text is a restaurant menu.
func BuildValidationPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Analyze the following text and determine if it represents a restaurant menu.\n\n")
	writeBlock(&b, "Text to analyze", text)
	b.WriteString(strings.Join([]string{
		"Return a JSON object with the following structure:",
		`{"isMenu": true/false, "confidence": 0.0-1.0, "reason": "brief explanation of why it is or isn't a menu"}`,
		"",
		"Consider these factors:",
		"1. Presence of food items with prices",
		"2. Menu sections (e.g., appetizers, main courses, beverages)",
		"3. Restaurant-specific formatting",
		"4. Food preparation descriptions",
		"5. Currency symbols or price formats",
		"",
		"Return valid JSON only, no additional text.",
	}, "\n"))
	return b.String()
}

func writeBlock(b *strings.Builder, label, text string) {
	if strings.TrimSpace(text) == "" {
		text = NoTextPlaceholder
	}
	b.WriteString(label)
	b.WriteString(":\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n\n")
}
