package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/credits"
	"github.com/ManuelReschke/ArtFox/internal/pkg/guard"
)

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrProviderFailed = errors.New("artwork generation failed")
)

// CreditLedger is the part of the ledger a generation needs.
type CreditLedger interface {
	GetBalance(userID string) (models.CreditBalance, bool)
	CanConsume(userID string) bool
	Consume(userID, referenceID string) (models.CreditTransaction, error)
}

// Request is one generation request from a user.
type Request struct {
	UserID    string
	ProjectID string
	Style     string
	Filename  string
	Image     []byte
}

// Result is returned after a successful, paid generation.
type Result struct {
	ProjectID        string                   `json:"projectId"`
	ImageURL         string                   `json:"imageUrl"`
	PreviewURL       string                   `json:"previewUrl,omitempty"`
	CreditsRemaining int                      `json:"creditsRemaining"`
	Transaction      models.CreditTransaction `json:"transaction"`
}

// Service runs check, generate, consume for one user at a time.
type Service struct {
	ledger       CreditLedger
	guard        guard.Guard
	provider     Provider
	maxDimension int
}

func NewService(ledger CreditLedger, g guard.Guard, provider Provider, maxDimension int) *Service {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Service{ledger: ledger, guard: g, provider: provider, maxDimension: maxDimension}
}

// Generate charges one credit only after the provider succeeded. The guard
// keeps a user from overspending with parallel requests.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	if req.UserID == "" || req.ProjectID == "" || len(req.Image) == 0 {
		return nil, ErrInvalidRequest
	}

	release, err := s.guard.Acquire(ctx, "generate:"+req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, ok := s.ledger.GetBalance(req.UserID); !ok {
		return nil, credits.ErrNoCreditBalance
	}
	if !s.ledger.CanConsume(req.UserID) {
		return nil, credits.ErrInsufficientCredits
	}

	prepared, err := PrepareImage(req.Filename, req.Image, s.maxDimension)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}

	out, err := s.provider.Generate(ctx, ProviderRequest{
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Style:     req.Style,
		Image:     prepared,
	})
	if err != nil {
		log.Errorf("[Generation] Provider failed for user %s project %s: %v", req.UserID, req.ProjectID, err)
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	tx, err := s.ledger.Consume(req.UserID, req.ProjectID)
	if err != nil {
		// Balance was checked under the guard, so this only happens if the
		// ledger was changed outside of it.
		log.Errorf("[Generation] Failed to charge user %s for project %s: %v", req.UserID, req.ProjectID, err)
		return nil, err
	}

	log.Infof("[Generation] User %s generated project %s (%dx%d)", req.UserID, req.ProjectID, prepared.Width, prepared.Height)
	return &Result{
		ProjectID:        req.ProjectID,
		ImageURL:         out.ImageURL,
		PreviewURL:       out.Preview,
		CreditsRemaining: tx.BalanceAfterFree + tx.BalanceAfterPaid,
		Transaction:      tx,
	}, nil
}
