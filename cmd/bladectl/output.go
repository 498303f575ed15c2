// cmd/bladectl/output.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// renderer writes one result document.
type renderer func(w io.Writer, v any) error

func newRenderer(format string) (renderer, error) {
	switch format {
	case "json":
		return renderJSON, nil
	case "yaml":
		return renderYAML, nil
	case "cbor":
		return renderCBOR, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// renderCBOR uses the canonical (sorted key) encoding.
func renderCBOR(w io.Writer, v any) error {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return err
	}
	b, err := em.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (s *session) print(v any) error {
	return s.out(os.Stdout, v)
}
