package main

import (
	"encoding/json"
	"io"
)

// jsonEncoder returns a two-space-indented encoder, the same shape every
// subcommand's --json output uses.
func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
