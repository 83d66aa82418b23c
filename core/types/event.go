package types

// Event is the archived form of a module event: a type tag plus string
// attributes. Amounts are rendered as base-unit decimal strings.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
