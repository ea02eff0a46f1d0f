package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/statement"
)

const maxUploadBytes = 32 << 20

// statusCompleted and statusMappingRequired discriminate the two outcomes
// of a statement upload.
const (
	statusCompleted       = "COMPLETED"
	statusMappingRequired = "HEADER_MAPPING_REQUIRED"
)

type importResponse struct {
	Status              string                   `json:"status"`
	Summary             *importer.Summary        `json:"summary,omitempty"`
	HeaderMappingPrompt *statement.MappingPrompt `json:"headerMappingPrompt,omitempty"`
}

// ImportStatement handles POST /api/accounts/{accountId}/statement-imports.
// The statement comes as a multipart upload; optional form fields carry a
// CSV column mapping for header-less files.
func (h *Handler) ImportStatement(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, r, errs.InvalidInput("invalid multipart request"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, errs.InvalidInput("file is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	mapping, err := mappingFromForm(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	accountID := r.PathValue("accountId")
	outcome, err := h.importer.ImportStatement(r.Context(), importer.StatementRequest{
		AccountID:   &accountID,
		FileName:    header.Filename,
		Content:     content,
		Mapping:     mapping,
		SaveMapping: r.FormValue("saveHeaderMapping") == "true",
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if outcome.HeaderMappingPrompt != nil {
		writeJSON(w, http.StatusCreated, importResponse{
			Status:              statusMappingRequired,
			HeaderMappingPrompt: outcome.HeaderMappingPrompt,
		})
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{
		Status:  statusCompleted,
		Summary: outcome.Summary,
	})
}

// mappingFromForm builds the CSV column mapping from the upload's form
// fields. Providing any index requires at least date, amount and
// description.
func mappingFromForm(r *http.Request) (*statement.ColumnMapping, error) {
	date, err := formIndex(r, "dateColumnIndex")
	if err != nil {
		return nil, err
	}
	amount, err := formIndex(r, "amountColumnIndex")
	if err != nil {
		return nil, err
	}
	description, err := formIndex(r, "descriptionColumnIndex")
	if err != nil {
		return nil, err
	}
	category, err := formIndex(r, "categoryColumnIndex")
	if err != nil {
		return nil, err
	}
	externalID, err := formIndex(r, "externalIdColumnIndex")
	if err != nil {
		return nil, err
	}

	if date == nil && amount == nil && description == nil && category == nil && externalID == nil {
		return nil, nil
	}
	if date == nil || amount == nil || description == nil {
		return nil, errs.InvalidInput("dateColumnIndex, amountColumnIndex, and descriptionColumnIndex are required when providing CSV mapping")
	}

	return &statement.ColumnMapping{
		DateColumnIndex:        *date,
		AmountColumnIndex:      *amount,
		DescriptionColumnIndex: *description,
		CategoryColumnIndex:    category,
		ExternalIDColumnIndex:  externalID,
	}, nil
}

func formIndex(r *http.Request, field string) (*int, error) {
	value := r.FormValue(field)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil, errs.InvalidInput("%s must be an integer", field)
	}
	if parsed < 0 {
		return nil, errs.InvalidInput("%s must be >= 0", field)
	}
	return &parsed, nil
}
