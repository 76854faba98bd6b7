package domain

// Flash severity levels, mirrored into template CSS classes.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot status message shown to the user on the next
// rendered page and then discarded.
type Flash struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}
