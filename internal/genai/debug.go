package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// writeDebugLog records one provider interaction as a JSON file under stateDir/debug.
// Failures are logged and otherwise ignored.
func writeDebugLog(stateDir, method, model string, params, response any) {
	if stateDir == "" {
		return
	}
	dir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("genai debug log: create directory failed", "dir", dir, "error", err)
		return
	}
	now := time.Now().UTC()
	entry := map[string]any{
		"timestamp": now.Format(time.RFC3339Nano),
		"method":    method,
		"model":     model,
		"params":    params,
		"response":  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai debug log: marshal failed", "error", err)
		return
	}
	name := filepath.Join(dir, fmt.Sprintf("genai_%s_%d.json", now.Format("20060102T150405"), now.UnixNano()))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		slog.Warn("genai debug log: write failed", "file", name, "error", err)
	}
}
