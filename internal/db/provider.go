package db

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/hivemind-app/hivemind-back/internal/config"
)

// ErrUnavailable is returned when the database connection could not be
// established within the bounded wait. Callers map it to 503.
var ErrUnavailable = errors.New("database unavailable")

type EstablishFunc func(ctx context.Context) (*gorm.DB, error)

// Provider owns the process-wide database handle. The connection is
// established lazily by the first caller; concurrent callers during
// establishment all await the same in-flight attempt instead of racing
// to open their own. A successful handle is reused for the rest of the
// process lifetime; a failed attempt is not cached, so the next request
// retries.
type Provider struct {
	establish EstablishFunc
	timeout   time.Duration

	group singleflight.Group

	mu sync.RWMutex
	db *gorm.DB
}

func NewProvider(establish EstablishFunc, timeout time.Duration) *Provider {
	return &Provider{
		establish: establish,
		timeout:   timeout,
	}
}

// NewLazyProvider wires the provider into the fx lifecycle. Establishment
// is deliberately not forced on startup: a cold process accepts requests
// immediately and the first request pays for the connection.
func NewLazyProvider(lc fx.Lifecycle, cfg *config.Config, logger *zap.SugaredLogger) *Provider {
	p := NewProvider(func(ctx context.Context) (*gorm.DB, error) {
		return NewGormClient(cfg)
	}, cfg.DBConnectTimeout)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("Closing database connection.")
			return p.Close()
		},
	})

	return p
}

// Get returns the shared handle, establishing it if needed. The wait is
// bounded by the provider timeout (or the caller's context, whichever
// ends first); on expiry the caller gets ErrUnavailable while the
// establishment attempt keeps running for the benefit of later requests.
func (p *Provider) Get(ctx context.Context) (*gorm.DB, error) {
	p.mu.RLock()
	db := p.db
	p.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := p.group.DoChan("establish", func() (interface{}, error) {
		// Detached from any single caller's deadline: one slow waiter
		// giving up must not cancel establishment for everyone else.
		db, err := p.establish(context.Background())
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.db = db
		p.mu.Unlock()
		return db, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			p.group.Forget("establish")
			return nil, errors.Wrap(ErrUnavailable, res.Err.Error())
		}
		return res.Val.(*gorm.DB), nil
	case <-ctx.Done():
		return nil, errors.Wrap(ErrUnavailable, ctx.Err().Error())
	}
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return errors.Wrap(err, "unwrap sql db")
	}
	p.db = nil
	return sqlDB.Close()
}
