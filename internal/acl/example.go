package acl

import _ "embed"

// exampleDataset ships with the binary so an operator can bring the
// service up before wiring a real dataset. It grants the public role
// the first-contact routes including /user (anonymous callers get the
// not-logged-in message there, not a denial), and binds user 1 to an
// admin role holding the standing wildcard permission.
//
//go:embed example_dataset.json
var exampleDataset []byte

// ExampleDataset returns the raw built-in dataset.
func ExampleDataset() []byte {
	return exampleDataset
}
