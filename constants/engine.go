package constants

// Engine identifiers stamped on RawOCRResult.EngineID.
const (
	EngineOCRSpace = "ocrspace"
	EngineMaverick = "maverick"
)

// Provider defaults.
const (
	DefaultOCRSpaceURL    = "https://api.ocr.space/parse/image"
	DefaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	DefaultVisionModel    = "meta-llama/llama-4-maverick-17b-128e-instruct"
	DefaultReasoningModel = "openai/gpt-oss-120b"
)
