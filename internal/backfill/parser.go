package backfill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ParseExportFile parses a transcript export into calls. Two layouts are
// accepted: .jsonl with one call object per line, and .json holding either a
// single call object or an array of them. Malformed JSONL lines are skipped;
// calls without a call_id or segments are dropped.
func ParseExportFile(path string) ([]ExportedCall, error) {
	switch filepath.Ext(path) {
	case ".jsonl":
		return parseJSONLines(path)
	case ".json":
		return parseJSON(path)
	default:
		return nil, fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}

func parseJSONLines(path string) ([]ExportedCall, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	var calls []ExportedCall
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var call ExportedCall
		if err := json.Unmarshal(scanner.Bytes(), &call); err != nil {
			continue // skip malformed lines
		}
		if usable(call) {
			calls = append(calls, call)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return calls, nil
}

func parseJSON(path string) ([]ExportedCall, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var batch []ExportedCall
	if err := json.Unmarshal(data, &batch); err == nil {
		var calls []ExportedCall
		for _, call := range batch {
			if usable(call) {
				calls = append(calls, call)
			}
		}
		return calls, nil
	}

	var single ExportedCall
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if !usable(single) {
		return nil, nil
	}
	return []ExportedCall{single}, nil
}

func usable(call ExportedCall) bool {
	return call.CallID != "" && len(call.Segments) > 0
}
