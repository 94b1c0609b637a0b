package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountCodes names the control accounts the business operations post to.
type AccountCodes struct {
	Cash       string
	Receivable string
	Inventory  string
	GRNAccrual string
	Revenue    string
	COGS       string
}

// DefaultAccountCodes returns the standard chart mapping.
func DefaultAccountCodes() AccountCodes {
	return AccountCodes{
		Cash:       "1101",
		Receivable: "1102",
		Inventory:  "1103",
		GRNAccrual: "2101",
		Revenue:    "4101",
		COGS:       "5101",
	}
}

// AlertSink receives valuation alerts raised when a shipment finds the FIFO
// layers inconsistent with the balance. Alerts are dispatched after the
// transaction rolled back.
type AlertSink interface {
	NotifyValuationExhausted(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, detail string) error
}

// Service implements the composed business operations. Each operation runs
// number generation, stock movements and journal posting inside a single
// transaction; a failure in any step leaves no trace of the others.
type Service struct {
	runner  TxRunner
	codes   AccountCodes
	alerts  AlertSink
	logger  *slog.Logger
	metrics *observability.Metrics
	audit   *shared.AuditLogger
}

// NewService constructs a Service. alerts and metrics may be nil.
func NewService(runner TxRunner, codes AccountCodes, alerts AlertSink, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, codes: codes, alerts: alerts, logger: logger, metrics: metrics}
}

// WithAudit enables audit trail writes after successful operations.
func (s *Service) WithAudit(audit *shared.AuditLogger) {
	s.audit = audit
}

func (s *Service) recordAudit(ctx context.Context, tenantID uuid.UUID, action, refNo string, journalID int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		Action:   action,
		Entity:   "journal",
		EntityID: refNo,
		Meta:     map[string]any{"journal_id": journalID},
	})
	if err != nil {
		s.logger.Warn("audit write", slog.Any("error", err))
	}
}

// ReceiveGoods records a goods receipt: a GRN number, one stock receipt per
// item at its declared cost, and a journal debiting inventory against the
// GRN accrual account.
func (s *Service) ReceiveGoods(ctx context.Context, in ReceiptInput) (ReceiptResult, error) {
	if err := validateReceipt(in); err != nil {
		return ReceiptResult{}, err
	}
	var result ReceiptResult
	err := s.runner.RunInTx(ctx, func(uow UnitOfWork) error {
		refNo, err := uow.Sequences.Next(ctx, in.TenantID, "GRN", "GRN")
		if err != nil {
			return err
		}
		receiptID := uuid.New()

		total := decimal.Zero
		for _, item := range in.Items {
			res, err := uow.Stock.RecordMovement(ctx, inventory.MovementInput{
				TenantID:         in.TenantID,
				ProductID:        item.ProductID,
				WarehouseID:      item.WarehouseID,
				Qty:              item.Qty,
				DeclaredUnitCost: item.UnitCost,
				ReferenceType:    inventory.ReferenceTypeGRN,
				ReferenceID:      receiptID,
			})
			if err != nil {
				return err
			}
			total = total.Add(res.TotalValue)
			if s.metrics != nil {
				s.metrics.StockMovements.WithLabelValues("in").Inc()
			}
		}

		result = ReceiptResult{RefNo: refNo, TotalValue: total}
		if total.IsZero() {
			// Free-of-charge receipt: stock moves, no accounting entry.
			return nil
		}
		journal, err := uow.Ledger.Post(ctx, journals.PostingInput{
			TenantID:        in.TenantID,
			Date:            in.Date,
			RefNo:           refNo,
			Description:     fmt.Sprintf("Goods receipt %s", refNo),
			SourceType:      journals.SourceTypeGoodsReceipt,
			SourceID:        &receiptID,
			PostImmediately: true,
			Lines: []journals.LineInput{
				{AccountCode: s.codes.Inventory, Debit: total},
				{AccountCode: s.codes.GRNAccrual, Credit: total},
			},
		})
		if err != nil {
			return err
		}
		result.JournalID = journal.ID
		return nil
	})
	if err != nil {
		return ReceiptResult{}, err
	}
	s.logger.Info("goods received",
		slog.String("tenant_id", in.TenantID.String()),
		slog.String("ref_no", result.RefNo),
		slog.Int64("journal_id", result.JournalID))
	s.recordAudit(ctx, in.TenantID, "goods.receive", result.RefNo, result.JournalID)
	return result, nil
}

// ShipGoods records a shipment: an SO number, one stock issue per item
// costed by the valuation engine, a COGS journal leg pair at that cost and a
// revenue leg pair at the sale price. The declared sale price never leaks
// into cost of goods sold.
func (s *Service) ShipGoods(ctx context.Context, in ShipmentInput) (ShipmentResult, error) {
	if err := validateShipment(in); err != nil {
		return ShipmentResult{}, err
	}
	var (
		result  ShipmentResult
		alerted *inventory.MovementInput
	)
	err := s.runner.RunInTx(ctx, func(uow UnitOfWork) error {
		refNo, err := uow.Sequences.Next(ctx, in.TenantID, "SO", "SO")
		if err != nil {
			return err
		}
		shipmentID := uuid.New()

		revenue, cogs := decimal.Zero, decimal.Zero
		for _, item := range in.Items {
			movement := inventory.MovementInput{
				TenantID:      in.TenantID,
				ProductID:     item.ProductID,
				WarehouseID:   item.WarehouseID,
				Qty:           item.Qty.Neg(),
				ReferenceType: inventory.ReferenceTypeSO,
				ReferenceID:   shipmentID,
			}
			res, err := uow.Stock.RecordMovement(ctx, movement)
			if err != nil {
				if errors.Is(err, inventory.ErrLayerExhausted) {
					alerted = &movement
				}
				return err
			}
			revenue = revenue.Add(item.Qty.Mul(item.UnitPrice))
			cogs = cogs.Add(res.TotalValue)
			if s.metrics != nil {
				s.metrics.StockMovements.WithLabelValues("out").Inc()
			}
		}

		// Every journal line carries exactly one side, so a zero-amount leg
		// pair is omitted rather than posted as 0/0. A shipment that is both
		// free of charge and zero cost records stock only.
		var lines []journals.LineInput
		if cogs.IsPositive() {
			lines = append(lines,
				journals.LineInput{AccountCode: s.codes.COGS, Debit: cogs},
				journals.LineInput{AccountCode: s.codes.Inventory, Credit: cogs})
		}
		if revenue.IsPositive() {
			lines = append(lines,
				journals.LineInput{AccountCode: s.codes.Receivable, Debit: revenue, PartnerID: in.CustomerID},
				journals.LineInput{AccountCode: s.codes.Revenue, Credit: revenue})
		}
		result = ShipmentResult{RefNo: refNo, TotalRevenue: revenue, TotalCOGS: cogs}
		if len(lines) == 0 {
			return nil
		}
		journal, err := uow.Ledger.Post(ctx, journals.PostingInput{
			TenantID:        in.TenantID,
			Date:            in.Date,
			RefNo:           refNo,
			Description:     fmt.Sprintf("Shipment %s", refNo),
			SourceType:      journals.SourceTypeShipment,
			SourceID:        &shipmentID,
			PostImmediately: true,
			Lines:           lines,
		})
		if err != nil {
			return err
		}
		result.JournalID = journal.ID
		return nil
	})
	if err != nil {
		if alerted != nil {
			s.raiseValuationAlert(ctx, *alerted, err)
		}
		return ShipmentResult{}, err
	}
	s.logger.Info("goods shipped",
		slog.String("tenant_id", in.TenantID.String()),
		slog.String("ref_no", result.RefNo),
		slog.Int64("journal_id", result.JournalID))
	s.recordAudit(ctx, in.TenantID, "goods.ship", result.RefNo, result.JournalID)
	return result, nil
}

// RecordCash records a cash receipt or payment: a CASH number plus a
// two-line journal between the cash account and the counter account.
func (s *Service) RecordCash(ctx context.Context, in CashInput) (CashResult, error) {
	if !in.Amount.IsPositive() {
		return CashResult{}, fmt.Errorf("operations: amount must be positive")
	}
	if in.Direction != CashDirectionIn && in.Direction != CashDirectionOut {
		return CashResult{}, fmt.Errorf("operations: direction must be in or out")
	}
	var result CashResult
	err := s.runner.RunInTx(ctx, func(uow UnitOfWork) error {
		refNo, err := uow.Sequences.Next(ctx, in.TenantID, "CASH", "CASH")
		if err != nil {
			return err
		}

		var lines []journals.LineInput
		if in.Direction == CashDirectionIn {
			lines = []journals.LineInput{
				{AccountCode: s.codes.Cash, Debit: in.Amount},
				{AccountCode: in.CounterAccountCode, Credit: in.Amount, PartnerID: in.PartnerID},
			}
		} else {
			lines = []journals.LineInput{
				{AccountCode: in.CounterAccountCode, Debit: in.Amount, PartnerID: in.PartnerID},
				{AccountCode: s.codes.Cash, Credit: in.Amount},
			}
		}
		journal, err := uow.Ledger.Post(ctx, journals.PostingInput{
			TenantID:        in.TenantID,
			Date:            in.Date,
			RefNo:           refNo,
			Description:     in.Description,
			SourceType:      journals.SourceTypeCash,
			PostImmediately: true,
			Lines:           lines,
		})
		if err != nil {
			return err
		}
		result = CashResult{RefNo: refNo, JournalID: journal.ID}
		return nil
	})
	if err != nil {
		return CashResult{}, err
	}
	s.logger.Info("cash recorded",
		slog.String("tenant_id", in.TenantID.String()),
		slog.String("ref_no", result.RefNo),
		slog.String("direction", in.Direction))
	s.recordAudit(ctx, in.TenantID, "cash.record", result.RefNo, result.JournalID)
	return result, nil
}

func (s *Service) raiseValuationAlert(ctx context.Context, movement inventory.MovementInput, cause error) {
	if s.metrics != nil {
		s.metrics.ValuationAlerts.Inc()
	}
	s.logger.Error("valuation layers exhausted",
		slog.String("tenant_id", movement.TenantID.String()),
		slog.String("product_id", movement.ProductID.String()),
		slog.String("warehouse_id", movement.WarehouseID.String()),
		slog.Any("error", cause))
	if s.alerts == nil {
		return
	}
	if err := s.alerts.NotifyValuationExhausted(ctx, movement.TenantID, movement.ProductID, movement.WarehouseID, cause.Error()); err != nil {
		s.logger.Error("valuation alert dispatch", slog.Any("error", err))
	}
}

func validateReceipt(in ReceiptInput) error {
	if len(in.Items) == 0 {
		return fmt.Errorf("operations: receipt requires at least one item")
	}
	for i, item := range in.Items {
		if !item.Qty.IsPositive() {
			return fmt.Errorf("operations: item %d quantity must be positive", i+1)
		}
		if item.UnitCost.IsNegative() {
			return fmt.Errorf("operations: item %d unit cost must be >= 0", i+1)
		}
	}
	return nil
}

func validateShipment(in ShipmentInput) error {
	if len(in.Items) == 0 {
		return fmt.Errorf("operations: shipment requires at least one item")
	}
	for i, item := range in.Items {
		if !item.Qty.IsPositive() {
			return fmt.Errorf("operations: item %d quantity must be positive", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("operations: item %d unit price must be >= 0", i+1)
		}
	}
	return nil
}
