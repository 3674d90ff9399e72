package auditor

import (
	"strings"

	"guardian/internal/config"
	"guardian/internal/types"
)

// ClampChunkLines forces size into the supported range; 0 means default.
func ClampChunkLines(size int) int {
	switch {
	case size == 0:
		return config.DefaultChunkLines
	case size < config.MinChunkLines:
		return config.MinChunkLines
	case size > config.MaxChunkLines:
		return config.MaxChunkLines
	}
	return size
}

// SplitLines cuts content into consecutive chunks of size lines. The
// chunks cover lines 1..L exactly once; the last one may be shorter.
// A trailing newline does not start an extra line.
func SplitLines(content, path string, size int) []types.Chunk {
	size = ClampChunkLines(size)
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	var out []types.Chunk
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, types.Chunk{
			Content:   strings.Join(lines[start:end], "\n"),
			FilePath:  path,
			StartLine: start + 1,
			EndLine:   end,
		})
	}
	return out
}
