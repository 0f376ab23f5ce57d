package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/opsgate/gatehouse/pkg/async"
	"github.com/opsgate/gatehouse/pkg/audit"
	"github.com/opsgate/gatehouse/pkg/observability"
)

// Service is the policy lifecycle manager. Each operation runs in its own
// read-committed transaction; there are no cross-operation transactions and
// no automatic retries. Audit records are emitted after commit and never
// block or fail the operation.
type Service struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
	audit   audit.Logger
}

// NewService creates a lifecycle manager. The audit logger may be nil, in
// which case no audit records are emitted.
func NewService(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Service{db: db, logger: logger, metrics: metrics, audit: auditLogger}
}

// CreatePolicy validates and inserts a new policy definition.
func (s *Service) CreatePolicy(ctx context.Context, actor string, req *CreatePolicyRequest) (*Policy, error) {
	ctx, span := tracer.Start(ctx, "Service.CreatePolicy")
	defer span.End()

	if req.Type != TypePlatformPredefined && req.Type != TypeTenantCustom {
		return nil, &ValidationError{Field: "type", Reason: "unrecognized value " + string(req.Type)}
	}
	switch req.GrantStage {
	case GrantStageSignup, GrantStageAppOpen, GrantStageManual:
	default:
		return nil, &ValidationError{Field: "grant_stage", Reason: "unrecognized value " + string(req.GrantStage)}
	}
	if req.Type == TypePlatformPredefined && req.TenantID != PlatformTenantID {
		return nil, &ValidationError{Field: "tenant_id", Reason: "platform policies must be owned by " + PlatformTenantID}
	}
	if req.Type == TypeTenantCustom && req.TenantID == PlatformTenantID {
		return nil, &ValidationError{Field: "tenant_id", Reason: "tenant policies cannot be owned by " + PlatformTenantID}
	}

	p := &Policy{
		Name:        req.Name,
		Code:        req.Code,
		Type:        req.Type,
		IsDefault:   req.IsDefault,
		GrantStage:  req.GrantStage,
		Description: req.Description,
		AppID:       req.AppID,
		ClientID:    req.ClientID,
		Enabled:     req.Enabled,
		TenantID:    req.TenantID,
		CreatedBy:   actor,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return NewStore(tx).Add(ctx, p)
	})
	s.recordOp("create", err)
	if err != nil {
		return nil, err
	}

	s.auditMutation(ctx, actor, audit.ActionCreate, p.TenantID, p.ID, map[string]interface{}{
		"code": p.Code, "app_id": p.AppID, "type": string(p.Type),
	})
	return p, nil
}

// GetPolicy fetches a single policy definition by id.
func (s *Service) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	return NewStore(s.db).GetPolicy(ctx, id)
}

// UpdatePolicy patches a policy. Classified policies keep their stored
// classification fields no matter what the payload carries.
func (s *Service) UpdatePolicy(ctx context.Context, id, actor string, req *UpdatePolicyRequest) (*Policy, error) {
	ctx, span := tracer.Start(ctx, "Service.UpdatePolicy")
	defer span.End()

	var updated *Policy
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		updated, txErr = NewStore(tx).Update(ctx, id, actor, req)
		return txErr
	})
	s.recordOp("update", err)
	if err != nil {
		return nil, err
	}

	s.auditMutation(ctx, actor, audit.ActionUpdate, updated.TenantID, updated.ID, nil)
	return updated, nil
}

// ReplacePolicy overwrites a policy wholesale, or creates it when the id is
// absent. Stored classification fields survive the replace.
func (s *Service) ReplacePolicy(ctx context.Context, actor string, p *Policy) (*Policy, error) {
	ctx, span := tracer.Start(ctx, "Service.ReplacePolicy")
	defer span.End()

	p.UpdatedBy = actor
	if p.ID == "" {
		p.CreatedBy = actor
	}

	var replaced *Policy
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		replaced, txErr = NewStore(tx).Replace(ctx, p)
		return txErr
	})
	s.recordOp("replace", err)
	if err != nil {
		return nil, err
	}

	s.auditMutation(ctx, actor, audit.ActionUpdate, replaced.TenantID, replaced.ID, nil)
	return replaced, nil
}

// DeletePolicies hard-deletes policies by id. Bindings referencing them stay
// behind as orphans; they stop matching any query immediately and are reaped
// by the sweeper.
func (s *Service) DeletePolicies(ctx context.Context, actor string, ids []string) error {
	ctx, span := tracer.Start(ctx, "Service.DeletePolicies")
	defer span.End()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return NewStore(tx).Delete(ctx, ids)
	})
	s.recordOp("delete", err)
	if err != nil {
		return err
	}

	for _, id := range ids {
		s.auditMutation(ctx, actor, audit.ActionDelete, "", id, nil)
	}
	return nil
}

// SetEnabled flips the enabled flag of the given policies. This is the only
// path that changes enabled on a classified policy; the update and replace
// paths preserve the stored value.
func (s *Service) SetEnabled(ctx context.Context, actor string, ids []string, enabled bool) error {
	ctx, span := tracer.Start(ctx, "Service.SetEnabled")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE policies SET enabled = $1, updated_by = $2, updated_at = $3 WHERE id = ANY($4)`
		_, txErr := tx.ExecContext(ctx, query, enabled, nullString(actor), time.Now().UTC(), pq.Array(ids))
		if txErr != nil {
			return fmt.Errorf("failed to set enabled: %w", txErr)
		}
		return nil
	})
	s.recordOp("set_enabled", err)
	if err != nil {
		return err
	}

	for _, id := range ids {
		s.auditMutation(ctx, actor, audit.ActionUpdate, "", id, map[string]interface{}{"enabled": enabled})
	}
	return nil
}

// GrantPolicy grants a policy to an org unit. The grant is idempotent; a
// repeat grant refreshes the grant metadata in place.
func (s *Service) GrantPolicy(ctx context.Context, actor string, req *GrantRequest) (*Binding, error) {
	ctx, span := tracer.Start(ctx, "Service.GrantPolicy")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	binding := &Binding{
		OrgID:      req.OrgID,
		OrgType:    req.OrgType,
		PolicyID:   req.PolicyID,
		AppID:      req.AppID,
		GrantedBy:  actor,
		IsDefault:  req.IsDefault,
		OpenAuth:   req.OpenAuth,
		GrantScope: req.GrantScope,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		store := NewStore(tx)
		p, txErr := store.GetPolicy(ctx, req.PolicyID)
		if txErr != nil {
			return txErr
		}
		if binding.AppID == "" {
			binding.AppID = p.AppID
		}
		return NewBindingStore(tx).Grant(ctx, binding)
	})
	s.recordOp("grant", err)
	if err != nil {
		return nil, err
	}

	s.auditMutation(ctx, actor, audit.ActionGrant, "", req.PolicyID, map[string]interface{}{
		"org_id": req.OrgID, "org_type": string(req.OrgType),
	})
	return binding, nil
}

// RevokePolicy removes a grant keyed by (org_id, org_type, policy_id).
func (s *Service) RevokePolicy(ctx context.Context, actor, orgID string, orgType OrgType, policyID string) error {
	ctx, span := tracer.Start(ctx, "Service.RevokePolicy")
	defer span.End()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return NewBindingStore(tx).Revoke(ctx, orgID, orgType, policyID)
	})
	s.recordOp("revoke", err)
	if err != nil {
		return err
	}

	s.auditMutation(ctx, actor, audit.ActionRevoke, "", policyID, map[string]interface{}{
		"org_id": orgID, "org_type": string(orgType),
	})
	return nil
}

// ApplyStageGrants grants every enabled policy of the given stage and app to
// the tenant, as tenant-level bindings. Called when a tenant signs up (stage
// signup) and when it opens an app (stage app_open). Idempotent by virtue of
// the grant upsert, so replaying an app-open event is harmless.
func (s *Service) ApplyStageGrants(ctx context.Context, actor, tenantID, appID string, stage GrantStage) (int, error) {
	ctx, span := tracer.Start(ctx, "Service.ApplyStageGrants")
	defer span.End()

	granted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			SELECT ` + policyColumns + ` FROM policies
			WHERE grant_stage = $1 AND app_id = $2 AND enabled = TRUE
			  AND (tenant_id = $3 OR type = $4)
		`
		rows, txErr := tx.QueryContext(ctx, query, stage, appID, tenantID, TypePlatformPredefined)
		if txErr != nil {
			return fmt.Errorf("failed to list stage policies: %w", txErr)
		}
		defer rows.Close()

		var policies []Policy
		for rows.Next() {
			p, scanErr := scanPolicy(rows)
			if scanErr != nil {
				return fmt.Errorf("failed to scan policy: %w", scanErr)
			}
			policies = append(policies, *p)
		}
		if txErr := rows.Err(); txErr != nil {
			return txErr
		}

		bindings := NewBindingStore(tx)
		for i := range policies {
			p := &policies[i]
			scope := GrantScopeNone
			if !p.IsDefault {
				scope = GrantScopeTenantAllUser
			}
			b := &Binding{
				OrgID:      tenantID,
				OrgType:    OrgTypeTenant,
				PolicyID:   p.ID,
				AppID:      p.AppID,
				GrantedBy:  actor,
				IsDefault:  p.IsDefault,
				OpenAuth:   !p.IsDefault,
				GrantScope: scope,
			}
			if txErr := bindings.Grant(ctx, b); txErr != nil {
				return txErr
			}
			granted++
		}
		return nil
	})
	s.recordOp("stage_grants", err)
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"app_id":    appID,
		"stage":     string(stage),
		"granted":   granted,
	}).Info("applied stage grants")
	return granted, nil
}

// withTx runs fn in one read-committed transaction. Failures roll back and
// surface as-is; there is no retry.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) recordOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.PolicyOperationsTotal.WithLabelValues(op, status).Inc()
}

// auditMutation emits an audit record without blocking the caller. The
// operation has already committed; an audit failure is logged and dropped.
func (s *Service) auditMutation(ctx context.Context, actor string, action audit.Action, tenantID, policyID string, detail map[string]interface{}) {
	event := &audit.Event{
		Actor:        actor,
		Action:       action,
		ResourceType: audit.ResourcePolicy,
		ResourceID:   policyID,
		TenantID:     tenantID,
		Detail:       detail,
		RequestID:    observability.GetRequestID(ctx),
	}
	async.SafeGo(ctx, s.logger, 5*time.Second, "audit record", func(logCtx context.Context) error {
		return s.audit.Log(logCtx, event)
	})
}
