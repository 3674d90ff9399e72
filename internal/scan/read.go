package scan

import (
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"guardian/internal/safeio"
)

// ReadRepoText reads rel (slash-separated) from the checkout at root as
// UTF-8, honouring a BOM if present. Links that leave the checkout are
// refused.
func ReadRepoText(root, rel string) (string, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return "", err
	}
	raw, err := fsys.SafeReadFile(filepath.FromSlash(rel))
	if err != nil {
		return "", err
	}
	return DecodeText(raw), nil
}

// DecodeText turns invalid byte sequences into U+FFFD.
func DecodeText(raw []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}
