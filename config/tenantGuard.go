package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/stockledger/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tenantColumn = "tenant_id"

// TenantGuardPlugin scopes queries, updates and deletes to the tenant carried in the
// context whenever the model has a tenant_id column.
//
// NOTE:
// - Raw SQL is not rewritten; it must filter tenant_id itself.
// - Repair tools bypass the guard with appctx.ContextKeySkipTenantScope.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("tenant_guard:query", tenantGuardCallback); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant_guard:row", tenantGuardCallback); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant_guard:update", tenantGuardCallback); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", tenantGuardCallback)
}

func tenantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return
	}
	ctx := db.Statement.Context
	if skipTenantScope(ctx) {
		return
	}
	tenantId := tenantIdFromContext(ctx)
	if tenantId == "" {
		return
	}
	if db.Statement.Schema.LookUpField(tenantColumn) == nil {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && mentionsTenant(where.Exprs) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn}, Value: tenantId},
		},
	})
}

func tenantIdFromContext(ctx context.Context) string {
	v, _ := appctx.GetString(ctx, appctx.ContextKeyTenantId)
	return v
}

func skipTenantScope(ctx context.Context) bool {
	v, _ := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope)
	return v
}

func mentionsTenant(exprs []clause.Expression) bool {
	for _, e := range exprs {
		switch v := e.(type) {
		case clause.Eq:
			if isTenantColumn(v.Column) {
				return true
			}
		case clause.IN:
			if isTenantColumn(v.Column) {
				return true
			}
		case clause.AndConditions:
			if mentionsTenant(v.Exprs) {
				return true
			}
		case clause.OrConditions:
			if mentionsTenant(v.Exprs) {
				return true
			}
		case clause.Expr:
			// best effort for raw fragments such as "tenant_id = ?"
			if strings.Contains(strings.ToLower(v.SQL), tenantColumn) {
				return true
			}
		}
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, tenantColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, tenantColumn)
	}
	return false
}
