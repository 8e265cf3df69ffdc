package domain

// Category is a fixed catalog entry contributions are recorded against.
// Catalog storage lives outside this service; only the lookup contract is
// consumed here.
type Category struct {
	Code string `json:"code"` // e.g. "TITHE", "OFFERING"
	Name string `json:"name"`
}
