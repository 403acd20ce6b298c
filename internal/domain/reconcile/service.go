package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	appctx "boigordo/internal/core/context"
	"boigordo/internal/core/apperror"
	"boigordo/internal/core/id"
	"boigordo/internal/core/tx"
	"boigordo/internal/domain/category"
	"boigordo/internal/domain/ledger"
	"boigordo/pkg/logger"
)

// Ledger is the part of the ledger service the reconciler uses.
type Ledger interface {
	ListUnpaged(ctx context.Context, f ledger.Filter) ([]ledger.Record, error)
	SoftDelete(ctx context.Context, records []ledger.Record, by string) error
	Reconcile(ctx context.Context, recordID id.ID) (*ledger.ReconcileResult, error)
}

// MappingSource provides the current category table.
type MappingSource interface {
	Table(ctx context.Context) (*category.Table, error)
}

// Auditor writes one audit entry per changed entity.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// Service scans and cleans up the ledger.
type Service struct {
	ledger   Ledger
	mappings MappingSource
	auditor  Auditor
	tx       tx.Manager
	now      func() time.Time
}

// NewService creates a reconciliation service.
func NewService(l Ledger, mappings MappingSource, auditor Auditor, txm tx.Manager) *Service {
	return &Service{
		ledger:   l,
		mappings: mappings,
		auditor:  auditor,
		tx:       txm,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scan reports duplicates and orphans over every live record.
func (s *Service) Scan(ctx context.Context) (*Report, error) {
	rep, _, err := s.scan(ctx)
	return rep, err
}

func (s *Service) scan(ctx context.Context) (*Report, map[id.ID]ledger.Record, error) {
	records, err := s.ledger.ListUnpaged(ctx, ledger.Filter{})
	if err != nil {
		return nil, nil, fmt.Errorf("list records: %w", err)
	}
	table, err := s.mappings.Table(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load category mappings: %w", err)
	}
	byID := make(map[id.ID]ledger.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	rep := Scan(records, table, s.now())
	logger.Info(ctx, "reconciliation scan",
		"scanned", rep.Scanned,
		"duplicate_groups", len(rep.Duplicates),
		"orphans", len(rep.Orphans),
		"warnings", len(rep.Warnings),
	)
	return rep, byID, nil
}

// CleanupResult lists what a cleanup removed and the lots recomputed after it.
type CleanupResult struct {
	Deleted    []id.ID   `json:"deleted"`
	Recomputed []id.ID   `json:"recomputed,omitempty"`
	Operator   string    `json:"operator"`
	Reason     string    `json:"reason"`
	CleanedAt  time.Time `json:"cleanedAt"`
}

// Cleanup soft-deletes records the current scan flags for removal. Ids the
// scan does not flag are refused and nothing is deleted. Each deletion is
// audited with the operator taken from the request identity. Once committed,
// the lots the deleted records reached are recomputed.
func (s *Service) Cleanup(ctx context.Context, ids []id.ID, reason string) (*CleanupResult, error) {
	user := appctx.GetUser(ctx)
	if user == nil || user.UserID == "" {
		return nil, apperror.NewUnauthorized("operator identity required for cleanup")
	}
	if len(ids) == 0 {
		return nil, apperror.NewValidation("no records selected")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.NewValidation("reason is required")
	}

	rep, byID, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	flagged := rep.Candidates()

	var (
		refused []string
		targets []ledger.Record
		seen    = make(map[id.ID]struct{}, len(ids))
	)
	for _, rid := range ids {
		if _, dup := seen[rid]; dup {
			continue
		}
		seen[rid] = struct{}{}
		if _, ok := flagged[rid]; !ok {
			refused = append(refused, rid.String())
			continue
		}
		targets = append(targets, byID[rid])
	}
	if len(refused) > 0 {
		sort.Strings(refused)
		return nil, apperror.NewValidation("records are not flagged by the current scan").
			WithDetail("refused", refused)
	}

	res := &CleanupResult{Operator: user.UserID, Reason: reason, CleanedAt: s.now()}
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.ledger.SoftDelete(ctx, targets, user.UserID); err != nil {
			return err
		}
		for _, r := range targets {
			err := s.auditor.LogChange(ctx, "monetary_record", r.ID, "delete", map[string]any{
				"reason":         reason,
				"number":         r.Number,
				"category":       r.Category,
				"description":    r.Description,
				"amount":         r.Amount.String(),
				"competenceDate": r.CompetenceDate.Format(time.DateOnly),
				"operator":       user.UserID,
				"operatorEmail":  user.Email,
			})
			if err != nil {
				return fmt.Errorf("audit record %s: %w", r.ID, err)
			}
			res.Deleted = append(res.Deleted, r.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen = make(map[id.ID]struct{})
	for _, rid := range res.Deleted {
		rr, err := s.ledger.Reconcile(ctx, rid)
		if err != nil {
			logger.Warn(ctx, "lot recompute after cleanup failed", "record_id", rid, "error", err)
			continue
		}
		for _, lotID := range rr.Lots {
			if _, ok := seen[lotID]; !ok {
				seen[lotID] = struct{}{}
				res.Recomputed = append(res.Recomputed, lotID)
			}
		}
	}

	logger.Info(ctx, "reconciliation cleanup",
		"operator", user.UserID,
		"deleted", len(res.Deleted),
		"recomputed", len(res.Recomputed),
		"reason", reason,
	)
	return res, nil
}
