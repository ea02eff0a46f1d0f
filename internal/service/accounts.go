package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/importer"
	"github.com/rumor-ml/homeledger/internal/store"
)

const maxAccountNameLength = 120

var last4Pattern = regexp.MustCompile(`^\d{4}$`)

// Accounts manages the bank accounts transactions belong to.
type Accounts struct {
	store *store.Store
	log   zerolog.Logger
}

func NewAccounts(st *store.Store, log zerolog.Logger) *Accounts {
	return &Accounts{store: st, log: log.With().Str("component", "accounts").Logger()}
}

// AccountDTO is the API shape of an account.
type AccountDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	InstitutionName string `json:"institutionName"`
	Last4           string `json:"last4"`
	Active          bool   `json:"active"`
}

// CreateAccountRequest carries a new account.
type CreateAccountRequest struct {
	Name            string `json:"name"`
	InstitutionName string `json:"institutionName"`
	Last4           string `json:"last4"`
}

// List returns accounts ordered by name, active only unless asked otherwise.
func (s *Accounts) List(ctx context.Context, includeInactive bool) ([]AccountDTO, error) {
	accounts, err := s.store.Accounts.List(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	out := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountDTO(a))
	}
	return out, nil
}

// Create adds an account. Names are unique ignoring case.
func (s *Accounts) Create(ctx context.Context, req CreateAccountRequest) (*AccountDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.InvalidInput("name is required")
	}
	if len(name) > maxAccountNameLength {
		return nil, errs.InvalidInput("name must be at most %d characters", maxAccountNameLength)
	}
	last4 := strings.TrimSpace(req.Last4)
	if last4 != "" && !last4Pattern.MatchString(last4) {
		return nil, errs.InvalidInput("last4 must be empty or 4 digits")
	}

	var created domain.Account
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.Accounts.FindByName(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.InvalidInput("account already exists: %s", name)
		}
		created = domain.Account{
			ID:              store.NewID(),
			Name:            name,
			InstitutionName: strings.TrimSpace(req.InstitutionName),
			Last4:           last4,
			Active:          true,
		}
		return tx.Accounts.Insert(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", created.ID).Str("name", created.Name).Msg("account created")
	dto := accountDTO(created)
	return &dto, nil
}

// Resolve loads the active account by id, or the default account when no id
// is given.
func (s *Accounts) Resolve(ctx context.Context, accountID *string) (*domain.Account, error) {
	if accountID != nil {
		account, err := s.store.Accounts.GetByID(ctx, *accountID)
		if err != nil {
			return nil, err
		}
		if account == nil || !account.Active {
			return nil, errs.NotFound("account %s not found", *accountID)
		}
		return account, nil
	}
	return s.GetOrCreateDefault(ctx)
}

// GetOrCreateDefault returns the default account, creating it on first use.
func (s *Accounts) GetOrCreateDefault(ctx context.Context) (*domain.Account, error) {
	var account *domain.Account
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.Accounts.FindByName(ctx, importer.DefaultAccountName)
		if err != nil {
			return err
		}
		if existing != nil {
			account = existing
			return nil
		}
		created := domain.Account{ID: store.NewID(), Name: importer.DefaultAccountName, Active: true}
		account = &created
		return tx.Accounts.Insert(ctx, created)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// BackfillUnassigned attaches transactions without an account to the default
// account. Runs at startup; data imported before accounts existed has no
// account reference.
func (s *Accounts) BackfillUnassigned(ctx context.Context) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.Accounts.FindByName(ctx, importer.DefaultAccountName)
		if err != nil {
			return err
		}
		if existing == nil {
			created := domain.Account{ID: store.NewID(), Name: importer.DefaultAccountName, Active: true}
			if err := tx.Accounts.Insert(ctx, created); err != nil {
				return err
			}
			existing = &created
		}

		assigned, err := tx.Transactions.AssignAccountToUnassigned(ctx, existing.ID)
		if err != nil {
			return err
		}
		if assigned > 0 {
			s.log.Info().Int64("transactions", assigned).Msg("assigned legacy transactions to default account")
		}
		return nil
	})
}

func accountDTO(a domain.Account) AccountDTO {
	return AccountDTO{
		ID:              a.ID,
		Name:            a.Name,
		InstitutionName: a.InstitutionName,
		Last4:           a.Last4,
		Active:          a.Active,
	}
}
