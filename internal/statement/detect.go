package statement

import (
	"path/filepath"
	"strings"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
)

// DetectFileType resolves the statement format from the uploaded file name.
// The extension is matched case-insensitively. Plaid is a synthetic file type
// and is never returned here.
func DetectFileType(fileName string) (domain.FileType, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return "", errs.InvalidInput("file name is required")
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "", errs.InvalidInput("file %q has no extension; expected .csv, .ofx or .qfx", name)
	}

	switch ext {
	case ".csv":
		return domain.FileTypeCSV, nil
	case ".ofx":
		return domain.FileTypeOFX, nil
	case ".qfx":
		return domain.FileTypeQFX, nil
	default:
		return "", errs.InvalidInput("unsupported file extension %q; expected .csv, .ofx or .qfx", ext)
	}
}
