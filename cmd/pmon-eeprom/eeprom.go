package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/netplatform/pmon-go/pkg/onie"
)

// readImage decodes the image at path. A checksum mismatch returns the
// decoded content together with the error.
func readImage(path string) (*onie.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := onie.ReadFrom(f)
	if err != nil {
		if info != nil && errors.Is(err, onie.ErrBadCRC) {
			return info, err
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

func writeDecoded(w io.Writer, info *onie.Info, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Version  uint8        `json:"version"`
			CRCValid bool         `json:"crc_valid"`
			Fields   []onie.Field `json:"fields"`
		}{info.Version, info.CRCValid, info.Fields()})
	}

	fmt.Fprintf(w, "TlvInfo Header:\n   Id String:    %s\n   Version:      %d\n\n", "TlvInfo", info.Version)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TLV Name\tCode\tLen\tValue")
	fmt.Fprintln(tw, "--------\t----\t---\t-----")
	for _, f := range info.Fields() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Name, f.Code, f.Len, f.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !info.CRCValid {
		fmt.Fprintln(w, "\nChecksum is invalid.")
	}
	return nil
}

// encodeYAML builds an image from a YAML mapping of field names to values.
// A sequence value writes one record per element.
func encodeYAML(src []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("parse fields: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("no fields")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: fields must be a mapping", root.Line)
	}

	info := &onie.Info{Version: onie.Version}
	for n := 0; n+1 < len(root.Content); n += 2 {
		key, val := root.Content[n], root.Content[n+1]
		code, ok := onie.CodeByName(key.Value)
		if !ok {
			return nil, fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}

		values := []*yaml.Node{val}
		if val.Kind == yaml.SequenceNode {
			values = val.Content
		}
		for _, v := range values {
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: %s: value must be a scalar", v.Line, key.Value)
			}
			raw, err := onie.ParseValue(code, v.Value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", v.Line, err)
			}
			info.TLVs = append(info.TLVs, onie.TLV{Code: code, Value: raw})
		}
	}
	return onie.Encode(info)
}
