// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
)

// JSONExporter writes the transcript as indented JSON, failed turns included.
type JSONExporter struct{}

// Export implements Exporter.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(t, "", "  ")
}

// FileExtension implements Exporter.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
