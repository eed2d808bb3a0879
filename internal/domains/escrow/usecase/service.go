package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"

	"github.com/google/uuid"
)

const (
	contractIDPrefix      = "ctr_"
	maxInsertAttempts     = 3
	maxContractTextBytes  = 64 << 10
	maxWalletAddressBytes = 256
)

// CreatedContract is returned once, at creation. It is the only place the
// secret leaves the service.
type CreatedContract struct {
	ContractID string
	Secret     string
	View       domain.ContractView
}

// Service exposes the escrow operations consumed by transports.
type Service struct {
	store       ports.ContractStore
	provisioner ports.SubaddressProvisioner
	gate        *BalanceGate
	coordinator *ReleaseCoordinator
	secrets     ports.SecretPolicy
	metrics     ports.Metrics
	logger      *slog.Logger
	newID       func() string
}

func NewService(
	store ports.ContractStore,
	provisioner ports.SubaddressProvisioner,
	balances ports.BalanceSource,
	sweeper ports.Sweeper,
	secrets ports.SecretPolicy,
	metrics ports.Metrics,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	gate := NewBalanceGate(balances, logger)
	return &Service{
		store:       store,
		provisioner: provisioner,
		gate:        gate,
		coordinator: NewReleaseCoordinator(store, gate, sweeper, metrics, logger),
		secrets:     secrets,
		metrics:     metrics,
		logger:      logger,
		newID:       func() string { return contractIDPrefix + uuid.NewString() },
	}
}

// CreateContract provisions a subaddress and persists a new contract bound
// to it. Nothing is stored when provisioning fails.
func (s *Service) CreateContract(ctx context.Context, contractText, recipientWallet string) (CreatedContract, error) {
	recipientWallet = strings.TrimSpace(recipientWallet)
	if recipientWallet == "" || len(recipientWallet) > maxWalletAddressBytes {
		return CreatedContract{}, domain.ErrInvalidRecord("recipient wallet is required")
	}
	if len(contractText) > maxContractTextBytes {
		return CreatedContract{}, domain.ErrInvalidRecord("contract text is too long")
	}

	secret, err := s.secrets.NewSecret()
	if err != nil {
		return CreatedContract{}, fmt.Errorf("generate secret: %w", err)
	}

	sub, err := s.provisioner.Provision(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrProvision) {
			err = fmt.Errorf("%w: %w", domain.ErrProvision, err)
		}
		s.metrics.RecordError(domain.ErrorCategoryWallet)
		s.logger.Error("service error", "component", escrowComponentName, "operation", "create.provision", "category", domain.ErrorCategoryWallet, "error", err.Error())
		return CreatedContract{}, domain.WrapCategorizedError(domain.ErrorCategoryWallet, err)
	}

	rec := domain.ContractRecord{
		Secret:          secret,
		RecipientWallet: recipientWallet,
		ContractWallet:  sub.Address,
		AddressIndex:    sub.Index,
		ContractText:    contractText,
	}
	for attempt := 1; ; attempt++ {
		rec.ContractID = s.newID()
		if err := rec.Validate(); err != nil {
			return CreatedContract{}, err
		}
		err = s.store.Insert(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicateID) || attempt >= maxInsertAttempts {
			s.metrics.RecordError(domain.ErrorCategoryStorage)
			s.logger.Error("service error", "component", escrowComponentName, "operation", "create.insert", "category", domain.ErrorCategoryStorage, "address_index", sub.Index, "error", err.Error())
			return CreatedContract{}, domain.WrapCategorizedError(domain.ErrorCategoryStorage, err)
		}
		s.logger.Warn("contract id collision, retrying", "component", escrowComponentName, "operation", "create.insert", "attempt", attempt)
	}

	s.metrics.ContractCreated()
	s.logger.Info("contract created", "component", escrowComponentName, "operation", "create", "contract_id", rec.ContractID, "address_index", rec.AddressIndex, "secret_policy", s.secrets.Name())
	return CreatedContract{
		ContractID: rec.ContractID,
		Secret:     rec.Secret,
		View:       domain.BuildView(rec, s.gate.Snapshot(ctx, rec.AddressIndex), "", true),
	}, nil
}

// GetContract returns the contract view with a live, display-only balance.
func (s *Service) GetContract(ctx context.Context, contractID string) (domain.ContractView, error) {
	return s.ContractView(ctx, contractID, "")
}

// ContractView is GetContract with the banner for a previous release outcome.
func (s *Service) ContractView(ctx context.Context, contractID string, outcome domain.Outcome) (domain.ContractView, error) {
	rec, err := s.store.Get(ctx, strings.TrimSpace(contractID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ContractView{}, err
		}
		return domain.ContractView{}, domain.WrapCategorizedError(domain.ErrorCategoryStorage, err)
	}
	snap := s.gate.Snapshot(ctx, rec.AddressIndex)
	return domain.BuildView(rec, snap, outcome, false), nil
}

// Drain stops accepting releases and waits for in-flight ones to commit.
func (s *Service) Drain(ctx context.Context) error {
	return s.coordinator.Drain(ctx)
}

// ReleaseFunds runs the release state machine for a contract.
func (s *Service) ReleaseFunds(ctx context.Context, contractID, secret string) (domain.Outcome, error) {
	return s.coordinator.Release(ctx, contractID, secret)
}
