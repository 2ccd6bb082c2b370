package testutil

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/data/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

// InjectedTxRunner is a TxRunner with failure injection. With DB set it runs
// fn inside a real transaction and rolls it back on any injected failure;
// without DB the callback gets a context with no Tx.
type InjectedTxRunner struct {
	mu sync.Mutex

	DB *gorm.DB

	FailBegin      error
	FailBeforeBody error
	FailCommit     error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) count(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	failBeforeBody := r.FailBeforeBody
	failCommit := r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	if failBeforeBody != nil {
		r.count(&r.RollbackCalls)
		return failBeforeBody
	}
	if fn == nil {
		r.count(&r.CommitCalls)
		return nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	var tx *gorm.DB
	if r.DB != nil {
		tx = r.DB.WithContext(ctx).Begin()
		if tx.Error != nil {
			return tx.Error
		}
		dbc.Tx = tx
	}
	rollback := func() {
		if tx != nil {
			_ = tx.Rollback().Error
		}
		r.count(&r.RollbackCalls)
	}

	if err := fn(dbc); err != nil {
		rollback()
		return err
	}
	if failCommit != nil {
		rollback()
		return failCommit
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			r.count(&r.RollbackCalls)
			return err
		}
	}
	r.count(&r.CommitCalls)
	return nil
}
