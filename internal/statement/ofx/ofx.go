// Package ofx parses OFX and QFX statement downloads into normalized rows.
//
// Bank OFX exports are frequently SGML with unclosed tags, so this is a
// lenient tag scraper rather than a schema-validating parser: transaction
// blocks are located by regex and individual tags are read up to the next
// angle bracket or line break. Malformed blocks produce row-level issues
// instead of failing the whole file.
package ofx

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/statement"
)

var (
	stmtTrnPattern = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)

	dtPostedPattern = tagPattern("DTPOSTED")
	trnAmtPattern   = tagPattern("TRNAMT")
	namePattern     = tagPattern("NAME")
	memoPattern     = tagPattern("MEMO")
	payeePattern    = tagPattern("PAYEE")
	fitIDPattern    = tagPattern("FITID")

	nonDigits = regexp.MustCompile(`[^0-9]`)
)

// tagPattern matches an SGML tag value: everything after <TAG> up to the next
// tag or end of line, so unclosed OFX v1 tags work.
func tagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<` + tag + `>([^<\r\n]+)`)
}

// Parse scrapes all STMTTRN blocks from the content. The error return covers
// unreadable input only; malformed blocks become issues on the result.
func Parse(r io.Reader) (*statement.ParseResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}

	result := &statement.ParseResult{}
	rowNumber := 0
	for _, match := range stmtTrnPattern.FindAllStringSubmatch(string(content), -1) {
		rowNumber++
		block := match[1]
		row := rowNumber

		date := parseDate(extractTag(block, dtPostedPattern))
		if date == nil {
			result.Issues = append(result.Issues, statement.Issue{
				Severity:  domain.SeverityError,
				RowNumber: &row,
				Message:   "Invalid or missing DTPOSTED",
			})
			continue
		}

		signedAmount := parseAmount(extractTag(block, trnAmtPattern))
		if signedAmount == nil {
			result.Issues = append(result.Issues, statement.Issue{
				Severity:  domain.SeverityError,
				RowNumber: &row,
				Message:   "Invalid or missing TRNAMT",
			})
			continue
		}

		description := firstNonBlank(
			extractTag(block, namePattern),
			extractTag(block, memoPattern),
			extractTag(block, payeePattern),
		)
		if description == "" {
			description = statement.DefaultDescription
			result.Issues = append(result.Issues, statement.Issue{
				Severity:  domain.SeverityWarning,
				RowNumber: &row,
				Message:   "Missing NAME/MEMO. Defaulted to " + statement.DefaultDescription,
			})
		}

		result.Rows = append(result.Rows, statement.NormalizedRow{
			RowNumber:    &row,
			Date:         date,
			SignedAmount: signedAmount,
			Description:  description,
			ExternalID:   extractTag(block, fitIDPattern),
		})
	}

	if rowNumber == 0 {
		result.Issues = append(result.Issues, statement.Issue{
			Severity: domain.SeverityError,
			Message:  "No STMTTRN entries were found",
		})
	}

	return result, nil
}

func extractTag(block string, pattern *regexp.Regexp) string {
	match := pattern.FindStringSubmatch(block)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// parseDate reads an OFX timestamp. Only the date part matters, so all
// non-digits are stripped and the first eight digits are read as yyyyMMdd.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	digits := nonDigits.ReplaceAllString(value, "")
	if len(digits) < 8 {
		return nil
	}
	t, err := time.Parse("20060102", digits[:8])
	if err != nil {
		return nil
	}
	return &t
}

func parseAmount(raw string) *decimal.Decimal {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	cleaned := strings.NewReplacer(",", "", "$", "").Replace(value)
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &parsed
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
