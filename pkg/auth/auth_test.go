package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	name string
	res  *Result
	err  error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Authenticate(_ context.Context, _ []byte) (*Result, error) {
	return m.res, m.err
}

func TestNoneProviderAlwaysAnonymous(t *testing.T) {
	var p Provider = NoneProvider{}
	res, err := p.Authenticate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Identity.Anonymous)
	assert.Equal(t, "none", res.Provider)
}

func TestProviderPropagatesAuthFailed(t *testing.T) {
	p := &mockProvider{name: "munge", err: ErrAuthFailed}
	_, err := p.Authenticate(context.Background(), []byte("bad-blob"))
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestProviderPropagatesInvalidCredentials(t *testing.T) {
	p := &mockProvider{name: "munge", err: ErrInvalidCredentials}
	_, err := p.Authenticate(context.Background(), []byte("truncated"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProviderConcurrentUse(t *testing.T) {
	p := &mockProvider{name: "munge", res: &Result{Identity: Identity{UID: 1000, GID: 1000}, Provider: "munge"}}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Authenticate(context.Background(), []byte("blob"))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if res.Identity.UID != 1000 {
				t.Errorf("UID = %d, want 1000", res.Identity.UID)
			}
		}()
	}
	wg.Wait()
}

func TestErrorsAreDistinctSentinels(t *testing.T) {
	assert.False(t, errors.Is(ErrAuthFailed, ErrInvalidCredentials))
	assert.False(t, errors.Is(ErrUnsupportedMechanism, ErrAuthFailed))
}
