package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/outreach-engine/internal/domain"
	"github.com/kursadbilgin/outreach-engine/internal/repository"
)

type AccountService struct {
	accounts repository.AccountRepository
	tasks    TaskEnqueuer
}

func NewAccountService(accounts repository.AccountRepository, tasks TaskEnqueuer) *AccountService {
	return &AccountService{accounts: accounts, tasks: tasks}
}

func (s *AccountService) Create(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account is required", domain.ErrValidation)
	}
	account.Name = strings.TrimSpace(account.Name)
	account.Website = strings.TrimSpace(account.Website)
	if strings.TrimSpace(account.Email) != "" {
		email, err := domain.NormalizeAddress(account.Email)
		if err != nil {
			return err
		}
		account.Email = email
	}
	if err := account.Validate(); err != nil {
		return err
	}
	return s.accounts.Create(ctx, account)
}

func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// RequestAudit queues a refresh of the account's website audit.
func (s *AccountService) RequestAudit(ctx context.Context, id string) (*domain.AutomationTask, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Website == "" {
		return nil, fmt.Errorf("%w: account %s has no website", domain.ErrValidation, account.ID)
	}

	return s.tasks.Enqueue(ctx, domain.RefreshAuditPayload{AccountID: account.ID}, EnqueueOptions{
		Priority: domain.PriorityLow,
	})
}
