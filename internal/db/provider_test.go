package db

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	g, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	return g
}

func TestProviderSingleEstablishment(t *testing.T) {
	g := openTestDB(t)

	var calls int32
	p := NewProvider(func(ctx context.Context) (*gorm.DB, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return g, nil
	}, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.Get(context.Background())
			assert.NoError(t, err)
			assert.Same(t, g, got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Established handle is reused without re-entering establish.
	got, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProviderBoundedWait(t *testing.T) {
	p := NewProvider(func(ctx context.Context) (*gorm.DB, error) {
		time.Sleep(5 * time.Second)
		return nil, errors.New("never reached in time")
	}, 50*time.Millisecond)

	_, err := p.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestProviderFailureNotCached(t *testing.T) {
	g := openTestDB(t)

	var calls int32
	p := NewProvider(func(ctx context.Context) (*gorm.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection refused")
		}
		return g, nil
	}, time.Second)

	_, err := p.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	got, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, got)
}

func TestProviderCloseWithoutEstablish(t *testing.T) {
	p := NewProvider(func(ctx context.Context) (*gorm.DB, error) {
		return nil, errors.New("unused")
	}, time.Second)

	assert.NoError(t, p.Close())
}
