package store

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/stockledger/models"
	"gorm.io/gorm"
)

// RunExclusive holds the MySQL advisory lock name for the duration of fn so that only one
// process at a time runs a tenant-wide job such as a ledger rebuild.
// GET_LOCK is connection-scoped, so the lock is taken on a dedicated pooled connection.
func (s *GormStore) RunExclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var ok int
		secs := int(s.lockTimeout.Seconds())
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", name, secs).Scan(&ok).Error; err != nil {
			return err
		}
		if ok != 1 {
			return &models.ContentionError{Resource: name, Err: fmt.Errorf("advisory lock not acquired within %ds", secs)}
		}
		defer func() {
			var released int
			_ = conn.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&released).Error
		}()
		return fn(ctx)
	})
}

func RebuildLockName(tenantId string) string {
	return "stock-rebuild:" + tenantId
}
