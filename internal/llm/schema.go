package llm

// ArbitrationJSONSchema describes {finalText, confidence, reasoning}.
// Used locally to validate the arbiter's answer.
func ArbitrationJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"finalText":  map[string]any{"type": "string", "minLength": 1},
			"confidence": probabilityProp(),
			"reasoning":  map[string]any{"type": "string"},
		},
		"required": []string{"finalText", "confidence"},
	}
}

// MenuVerdictJSONSchema describes {isMenu, confidence, reason}.
func MenuVerdictJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"isMenu":     map[string]any{"type": "boolean"},
			"confidence": probabilityProp(),
			"reason":     map[string]any{"type": "string"},
		},
		"required": []string{"isMenu", "confidence"},
	}
}

func probabilityProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}
}
