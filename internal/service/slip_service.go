package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/equiloan-api/internal/models"
	appErrors "github.com/noah-isme/equiloan-api/pkg/errors"
	"github.com/noah-isme/equiloan-api/pkg/export"
	"github.com/noah-isme/equiloan-api/pkg/storage"
)

type slipRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
	ListItems(ctx context.Context, requestID string) ([]models.RequestItem, error)
	SetSlip(ctx context.Context, id, slipPath string) error
	MarkEmailSent(ctx context.Context, id string, sent bool) error
}

type completionNotifier interface {
	RequestCompleted(request *models.Request, applicant *models.User, slipToken string)
}

// SlipService renders the borrow slip for a completed request, stores it,
// and mails the applicant a signed download link that works without a
// session.
type SlipService struct {
	requests    slipRequestStore
	allocations allocationLister
	users       directoryReader
	renderer    *export.SlipRenderer
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	notifier    completionNotifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewSlipService constructs a SlipService.
func NewSlipService(requests slipRequestStore, allocations allocationLister, users directoryReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, notifier completionNotifier, logger *zap.Logger) *SlipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlipService{
		requests:    requests,
		allocations: allocations,
		users:       users,
		renderer:    export.NewSlipRenderer(),
		store:       store,
		signer:      signer,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Publish renders and stores the slip for a freshly completed request, then
// sends the completion e-mail. Called by the allocation commit path.
func (s *SlipService) Publish(ctx context.Context, requestID string) error {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if _, err := s.ensureSlip(ctx, request); err != nil {
		return err
	}
	return s.sendCompletionEmail(ctx, request)
}

// Stream returns the slip file path for the authed download endpoint. Only
// the owning applicant and staff may fetch it, and only once completed.
func (s *SlipService) Stream(ctx context.Context, requestID string, actor *models.JWTClaims) (string, string, error) {
	if actor == nil {
		return "", "", appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return "", "", err
	}
	if !actor.Role.IsStaff() && request.ApplicantID != actor.UserID {
		return "", "", appErrors.ErrForbidden
	}
	if request.Status != models.StatusCompleted {
		return "", "", appErrors.Clone(appErrors.ErrInvalidTransition, "borrow slips exist only for completed requests")
	}

	relPath, err := s.ensureSlip(ctx, request)
	if err != nil {
		return "", "", err
	}
	return s.store.Path(relPath), slipFilename(request.ID), nil
}

// StreamSigned resolves a signed download token from the completion e-mail.
func (s *SlipService) StreamSigned(ctx context.Context, token string) (string, string, error) {
	requestID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrTokenExpired, "download link is invalid or has expired")
	}
	if _, err := s.store.Open(relPath); err != nil {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "borrow slip not found")
	}
	return s.store.Path(relPath), slipFilename(requestID), nil
}

// Resend re-sends the completion e-mail for a completed request.
func (s *SlipService) Resend(ctx context.Context, requestID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsStaff() {
		return appErrors.ErrForbidden
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != models.StatusCompleted {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "completion e-mail exists only for completed requests")
	}
	if _, err := s.ensureSlip(ctx, request); err != nil {
		return err
	}
	return s.sendCompletionEmail(ctx, request)
}

// ensureSlip renders and stores the slip when no stored copy exists yet.
func (s *SlipService) ensureSlip(ctx context.Context, request *models.Request) (string, error) {
	if request.SlipPath != nil && *request.SlipPath != "" {
		if _, err := s.store.Open(*request.SlipPath); err == nil {
			return *request.SlipPath, nil
		}
	}

	items, err := s.requests.ListItems(ctx, request.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request items")
	}
	allocations, err := s.allocations.ListByRequest(ctx, request.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}

	applicantName := request.ApplicantID
	if applicant := s.lookupApplicant(ctx, request.ApplicantID); applicant != nil {
		applicantName = applicant.FullName
	}

	lines := make([]export.SlipLine, 0, len(allocations))
	for _, allocation := range allocations {
		if allocation.AllocatedQuantity == 0 {
			continue
		}
		lines = append(lines, export.SlipLine{
			Equipment: allocation.EquipmentName,
			Building:  allocation.BuildingName,
			Quantity:  allocation.AllocatedQuantity,
		})
	}
	totals := make([]export.SlipTotal, 0, len(items))
	for _, item := range items {
		approved := 0
		if item.ApprovedQuantity != nil {
			approved = *item.ApprovedQuantity
		}
		totals = append(totals, export.SlipTotal{
			Equipment: item.EquipmentName,
			Requested: item.RequestedQuantity,
			Approved:  approved,
		})
	}

	data, err := s.renderer.Render(export.SlipData{
		RequestID:     request.ID,
		ApplicantName: applicantName,
		StartDate:     request.StartDate.Format("2006-01-02"),
		EndDate:       request.EndDate.Format("2006-01-02"),
		Venue:         request.Venue,
		Purpose:       request.Purpose,
		CompletedAt:   s.now().UTC().Format("2006-01-02 15:04"),
		Lines:         lines,
		Totals:        totals,
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render borrow slip")
	}

	relPath := slipFilename(request.ID)
	if _, err := s.store.Save(relPath, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store borrow slip")
	}
	if err := s.requests.SetSlip(ctx, request.ID, relPath); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record slip path")
	}
	request.SlipPath = &relPath
	return relPath, nil
}

func (s *SlipService) sendCompletionEmail(ctx context.Context, request *models.Request) error {
	if s.notifier == nil {
		return nil
	}
	relPath := ""
	if request.SlipPath != nil {
		relPath = *request.SlipPath
	}
	token, _, err := s.signer.Generate(request.ID, relPath)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign slip download link")
	}

	applicant := s.lookupApplicant(ctx, request.ApplicantID)
	s.notifier.RequestCompleted(request, applicant, token)

	if err := s.requests.MarkEmailSent(ctx, request.ID, true); err != nil {
		s.logger.Warn("failed to flag completion email", zap.String("request_id", request.ID), zap.Error(err))
	}
	return nil
}

func (s *SlipService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *SlipService) lookupApplicant(ctx context.Context, id string) *models.User {
	if s.users == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to resolve applicant", zap.String("user_id", id), zap.Error(err))
		return nil
	}
	return user
}

func slipFilename(requestID string) string {
	return fmt.Sprintf("borrow-slip-%s.pdf", requestID)
}
