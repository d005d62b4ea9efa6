package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/artwork"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OwnArtworkDisclaimer is recorded when the client supplies print-ready artwork.
const OwnArtworkDisclaimer = "Client supplied artwork. The shop is not liable for content, resolution or spelling."

// DesignService runs the artwork approval loop.
type DesignService struct {
	*core
}

type ProposalRequest struct {
	ImagePath string `json:"image_path" binding:"required"`
	Comments  string `json:"comments"`
}

// ApprovalResult is the order after approval together with the tasks it spawned.
type ApprovalResult struct {
	Order *entity.SalesOrder      `json:"order"`
	Tasks []entity.ProductionTask `json:"tasks"`
}

// Upload is a client file to be stored as production artwork.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SubmitProposal sends a new artwork proposal to the client. Past the free revision allowance
// without authorized billing the client is asked to authorize payment, but still gets the
// proposal.
func (s *DesignService) SubmitProposal(ctx context.Context, orderID string, req ProposalRequest, operatorID string) (*entity.SalesOrder, error) {
	if strings.TrimSpace(req.ImagePath) == "" {
		return nil, fmt.Errorf("%w: proposal image is required", ErrValidationFailed)
	}

	eff := &effects{}
	var order *entity.SalesOrder
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		order, err = r.Order.LockByID(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if !order.DesignStatus.CanTransition(entity.DesignStatusSent) || !order.Status.CanTransition(entity.OrderStatusInDesign) {
			return fmt.Errorf("%w: cannot send a proposal for %s while design is %s and order is %s",
				ErrInvalidTransition, order.SOCode, order.DesignStatus, order.Status)
		}
		rate, err := s.billingRate(ctx, r)
		if err != nil {
			return err
		}
		// The running design time produced this revision, so it is billed against the new count.
		order.DesignRevisions++
		if _, _, err := s.closeDesignTimer(ctx, r, order, rate, eff); err != nil {
			return err
		}

		revision := &entity.DesignRevision{
			ID:            uuid.New().String(),
			SOID:          order.ID,
			Attempt:       order.DesignRevisions,
			ImagePath:     req.ImagePath,
			StaffComments: req.Comments,
			Outcome:       entity.RevisionSent,
			CreatedBy:     operatorID,
		}
		if err := r.Design.CreateRevision(ctx, revision); err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		if err := s.setDesignStatus(ctx, r, order, entity.DesignStatusSent, entity.OrderStatusInDesign, operatorID); err != nil {
			return err
		}

		needsPayment := rate.RequiresAuthorization(order.DesignRevisions) && !order.BillingAuthorized
		text := s.printer.Sprintf("Design proposal #%d for order %s is ready for review", order.DesignRevisions, order.SOCode)
		if needsPayment {
			text = s.printer.Sprintf("%s. Revision %d exceeds the %d free revisions: further design time is billed at %s for the first hour and %s per additional hour",
				text, order.DesignRevisions, rate.FreeRevisions,
				s.money(rate.FirstHourPrice), s.money(rate.AdditionalHourPrice))
		}
		eff.notify(notify.OrderChannel(order.TrackingToken), "design_sent", text, map[string]interface{}{
			"so_code":                        order.SOCode,
			"attempt":                        order.DesignRevisions,
			"image_path":                     req.ImagePath,
			"requires_payment_authorization": needsPayment,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("design proposal sent",
		zap.String("so_code", order.SOCode),
		zap.Int("attempt", order.DesignRevisions),
		zap.String("operator", operatorID))
	return order, nil
}

// ClientApprove accepts the proposal on review and releases the order to pre-press.
// Approving twice reports ErrConflictAlreadyApplied and creates no tasks.
func (s *DesignService) ClientApprove(ctx context.Context, orderID, comments, actor string) (*ApprovalResult, error) {
	return s.approve(ctx, orderID, actor, func(order *entity.SalesOrder) (*entity.DesignRevision, error) {
		if order.DesignStatus != entity.DesignStatusSent {
			return nil, fmt.Errorf("%w: design of %s is %s, not under review", ErrInvalidTransition, order.SOCode, order.DesignStatus)
		}
		return &entity.DesignRevision{ClientComments: comments}, nil
	})
}

// ClientSubmitOwnArtwork stores client artwork and approves the design without a staff proposal.
func (s *DesignService) ClientSubmitOwnArtwork(ctx context.Context, orderID string, file Upload, actor string) (*ApprovalResult, error) {
	if file.Body == nil || file.FileName == "" {
		return nil, fmt.Errorf("%w: artwork file is required", ErrValidationFailed)
	}
	if s.store == nil {
		return nil, fmt.Errorf("artwork storage is not configured")
	}
	order, err := s.repos.Order.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound("order", orderID, err)
	}
	if order.DesignStatus == entity.DesignStatusApproved {
		return nil, fmt.Errorf("%w: design of %s is already approved", ErrConflictAlreadyApplied, order.SOCode)
	}
	if !order.Status.CanTransition(entity.OrderStatusPrePress) || !order.DesignStatus.CanTransition(entity.DesignStatusApproved) {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.SOCode, order.Status)
	}

	path, err := s.store.Put(ctx, artwork.ObjectKey(order.SOCode, file.FileName), file.Body, file.Size, file.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store artwork: %w", err)
	}
	s.logger.Info("client artwork stored", zap.String("so_code", order.SOCode), zap.String("path", path))

	return s.approve(ctx, orderID, actor, func(order *entity.SalesOrder) (*entity.DesignRevision, error) {
		order.ArtworkPath = path
		return &entity.DesignRevision{ImagePath: path, ClientComments: OwnArtworkDisclaimer}, nil
	})
}

// approve applies a client approval. check validates the order state and returns the
// revision to append.
func (s *DesignService) approve(ctx context.Context, orderID, actor string, check func(*entity.SalesOrder) (*entity.DesignRevision, error)) (*ApprovalResult, error) {
	eff := &effects{}
	result := &ApprovalResult{}
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		order, err := r.Order.LockByID(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.DesignStatus == entity.DesignStatusApproved {
			return fmt.Errorf("%w: design of %s is already approved", ErrConflictAlreadyApplied, order.SOCode)
		}
		if !order.Status.CanTransition(entity.OrderStatusPrePress) {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.SOCode, order.Status)
		}
		revision, err := check(order)
		if err != nil {
			return err
		}
		if !order.DesignStatus.CanTransition(entity.DesignStatusApproved) {
			return fmt.Errorf("%w: design of %s is %s", ErrInvalidTransition, order.SOCode, order.DesignStatus)
		}

		rate, err := s.billingRate(ctx, r)
		if err != nil {
			return err
		}
		if _, _, err := s.closeDesignTimer(ctx, r, order, rate, eff); err != nil {
			return err
		}

		revision.ID = uuid.New().String()
		revision.SOID = order.ID
		revision.Attempt = order.DesignRevisions
		revision.Outcome = entity.RevisionApproved
		revision.CreatedBy = actor
		if err := r.Design.CreateRevision(ctx, revision); err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		if err := s.setDesignStatus(ctx, r, order, entity.DesignStatusApproved, entity.OrderStatusPrePress, actor); err != nil {
			return err
		}

		tasks, err := s.createTasks(ctx, r, order, actor)
		if err != nil {
			return err
		}
		result.Order, result.Tasks = order, tasks

		eff.notify(notify.OrderChannel(order.TrackingToken), "design_approved",
			s.printer.Sprintf("Design for order %s approved, %d production tasks scheduled", order.SOCode, len(tasks)),
			map[string]interface{}{"so_code": order.SOCode, "tasks": len(tasks)})
		for _, t := range tasks {
			eff.notify(notify.WorkCenterChannel(t.WorkCenterID), "task_created",
				s.printer.Sprintf("Task %s: %d x %s pending nesting", t.TaskCode, t.Quantity, t.ProductName),
				map[string]interface{}{"task_id": t.ID, "due_date": t.DueDate})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("design approved",
		zap.String("so_code", result.Order.SOCode),
		zap.Int("tasks", len(result.Tasks)),
		zap.String("actor", actor))
	return result, nil
}

// ClientReject sends the design back to the designer. A comment is mandatory.
func (s *DesignService) ClientReject(ctx context.Context, orderID, comments, actor string) (*entity.SalesOrder, error) {
	if strings.TrimSpace(comments) == "" {
		return nil, fmt.Errorf("%w: rejection comments are required", ErrValidationFailed)
	}

	eff := &effects{}
	var order *entity.SalesOrder
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		order, err = r.Order.LockByID(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.DesignStatus != entity.DesignStatusSent || !order.Status.CanTransition(entity.OrderStatusInDesign) {
			return fmt.Errorf("%w: design of %s is %s, not under review", ErrInvalidTransition, order.SOCode, order.DesignStatus)
		}
		revision := &entity.DesignRevision{
			ID:             uuid.New().String(),
			SOID:           order.ID,
			Attempt:        order.DesignRevisions,
			ClientComments: comments,
			Outcome:        entity.RevisionRejected,
			CreatedBy:      actor,
		}
		if err := r.Design.CreateRevision(ctx, revision); err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		if err := s.setDesignStatus(ctx, r, order, entity.DesignStatusRejected, entity.OrderStatusInDesign, actor); err != nil {
			return err
		}
		eff.notify(notify.OrderChannel(order.TrackingToken), "design_rejected",
			s.printer.Sprintf("Changes requested on proposal #%d for order %s", order.DesignRevisions, order.SOCode),
			map[string]interface{}{"so_code": order.SOCode, "comments": comments})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("design rejected", zap.String("so_code", order.SOCode), zap.Int("attempt", order.DesignRevisions))
	return order, nil
}

// ApproveBilling authorizes paid design revisions. It can be granted once.
func (s *DesignService) ApproveBilling(ctx context.Context, orderID, actor string) (*entity.SalesOrder, error) {
	eff := &effects{}
	var order *entity.SalesOrder
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		order, err = r.Order.LockByID(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.BillingAuthorized {
			return fmt.Errorf("%w: billing of %s is already authorized", ErrConflictAlreadyApplied, order.SOCode)
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.SOCode, order.Status)
		}
		order.BillingAuthorized = true
		if err := r.Order.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if err := s.audit(ctx, r, entity.AuditDesign, order.ID, "", "BILLING_AUTHORIZED", actor, nil); err != nil {
			return err
		}
		eff.notify(notify.OrderChannel(order.TrackingToken), "billing_authorized",
			s.printer.Sprintf("Design billing authorized for order %s", order.SOCode), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("design billing authorized", zap.String("so_code", order.SOCode), zap.String("actor", actor))
	return order, nil
}

// ListRevisions returns the design history of an order, oldest first.
func (s *DesignService) ListRevisions(ctx context.Context, orderID string) ([]entity.DesignRevision, error) {
	if _, err := s.repos.Order.FindByID(ctx, orderID); err != nil {
		return nil, notFound("order", orderID, err)
	}
	return s.repos.Design.ListRevisions(ctx, orderID)
}

// OrderIDByToken resolves the public tracking token used by client routes.
func (s *DesignService) OrderIDByToken(ctx context.Context, token string) (string, error) {
	order, err := s.repos.Order.FindByTrackingToken(ctx, token)
	if err != nil {
		return "", notFound("order with token", token, err)
	}
	return order.ID, nil
}

func (c *core) setDesignStatus(ctx context.Context, r *repository.Repositories, order *entity.SalesOrder, design entity.DesignStatus, status entity.OrderStatus, operatorID string) error {
	fromDesign, fromStatus := order.DesignStatus, order.Status
	order.DesignStatus = design
	order.Status = status
	if err := r.Order.Save(ctx, order); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	meta := map[string]interface{}{"attempt": order.DesignRevisions}
	if err := c.audit(ctx, r, entity.AuditDesign, order.ID, string(fromDesign), string(design), operatorID, meta); err != nil {
		return err
	}
	if fromStatus != status {
		return c.audit(ctx, r, entity.AuditOrder, order.ID, string(fromStatus), string(status), operatorID, nil)
	}
	return nil
}
