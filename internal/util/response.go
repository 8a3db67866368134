package util

type Envelope map[string]any

func Error(message string) Envelope {
	return Envelope{"error": message}
}

// OK is the body shared by every endpoint that only acknowledges a request.
func OK() Envelope {
	return Envelope{"ok": true}
}
