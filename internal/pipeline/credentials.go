package pipeline

// Credentials carries the classification service key for the duration of a
// run. It is never persisted and formats as redacted.
type Credentials struct {
	APIKey string
}

func (c Credentials) Empty() bool {
	return c.APIKey == ""
}

func (c Credentials) String() string {
	if c.Empty() {
		return "Credentials{}"
	}
	return "Credentials{APIKey:[REDACTED]}"
}

func (c Credentials) GoString() string { return c.String() }
