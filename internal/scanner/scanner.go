// Package scanner walks a directory tree and finds statement files that the
// import pipeline can process.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scanner walks a directory tree and finds statement files.
type Scanner struct {
	rootDir string
}

// New creates a scanner rooted at rootDir.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is a found statement file with hints derived from its location.
// Path structure: {root}/{account}/{period?}/file.ext
type ScanResult struct {
	Path        string
	AccountHint string
	Period      string
}

// Scan walks the directory tree and returns all statement files.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir := s.expandHome(s.rootDir)

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !s.isStatementFile(path) {
			return nil
		}

		results = append(results, s.describe(path, rootDir))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isStatementFile checks if file is a known statement format
func (s *Scanner) isStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".qfx" || ext == ".ofx" || ext == ".csv"
}

// describe derives account and period hints from the file's directory
// placement under the scan root.
func (s *Scanner) describe(filePath, rootDir string) ScanResult {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")

	result := ScanResult{Path: filePath}

	// First directory names the account.
	if len(parts) >= 2 {
		result.AccountHint = s.normalizeAccountName(parts[0])
	}

	// Second directory, when it looks like YYYY-MM, names the period.
	if len(parts) >= 3 && s.looksLikePeriod(parts[1]) {
		result.Period = parts[1]
	}

	return result
}

// normalizeAccountName converts a directory name to a readable name:
// "everyday_checking" -> "Everyday Checking".
func (s *Scanner) normalizeAccountName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")

	words := strings.Split(name, " ")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}

	return strings.Join(words, " ")
}

// looksLikePeriod checks if string looks like a date period (YYYY-MM)
func (s *Scanner) looksLikePeriod(str string) bool {
	return len(str) >= 7 && str[4] == '-'
}

// expandHome expands ~ to home directory
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
