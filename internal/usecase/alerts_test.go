package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

func TestAlertCreate_ValidatesAndActivates(t *testing.T) {
	svc := usecase.NewAlertService(newMemAlertRepo())
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.PriceAlert{
		UserID:      "u1",
		Ticker:      "aapl",
		Condition:   domain.AlertAbove,
		TargetPrice: 200,
		Channels:    []string{domain.ChannelInApp, domain.ChannelEmail},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "AAPL", a.Ticker)
	assert.True(t, a.IsActive)
	assert.Nil(t, a.TriggeredAt)
}

func TestAlertCreate_Rejections(t *testing.T) {
	svc := usecase.NewAlertService(newMemAlertRepo())
	ctx := context.Background()
	base := domain.PriceAlert{
		UserID: "u1", Ticker: "AAPL", Condition: domain.AlertAbove,
		TargetPrice: 200, Channels: []string{domain.ChannelInApp},
	}

	a := base
	a.Condition = "sideways"
	_, err := svc.Create(ctx, a)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	a = base
	a.TargetPrice = 0
	_, err = svc.Create(ctx, a)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	a = base
	a.Channels = nil
	_, err = svc.Create(ctx, a)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	a = base
	a.Channels = []string{"fax"}
	_, err = svc.Create(ctx, a)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAlertUpdate_EnforcesOwnership(t *testing.T) {
	svc := usecase.NewAlertService(newMemAlertRepo())
	ctx := context.Background()
	a, err := svc.Create(ctx, domain.PriceAlert{
		UserID: "u1", Ticker: "AAPL", Condition: domain.AlertAbove,
		TargetPrice: 200, Channels: []string{domain.ChannelInApp},
	})
	require.NoError(t, err)

	a.TargetPrice = 250
	a.Condition = domain.AlertBelow
	updated, err := svc.Update(ctx, "u1", a)
	require.NoError(t, err)
	assert.Equal(t, 250.0, updated.TargetPrice)
	assert.Equal(t, domain.AlertBelow, updated.Condition)

	_, err = svc.Update(ctx, "u2", a)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAlertUpdate_CanDeactivate(t *testing.T) {
	svc := usecase.NewAlertService(newMemAlertRepo())
	ctx := context.Background()
	a, err := svc.Create(ctx, domain.PriceAlert{
		UserID: "u1", Ticker: "AAPL", Condition: domain.AlertAbove,
		TargetPrice: 200, Channels: []string{domain.ChannelInApp},
	})
	require.NoError(t, err)

	a.IsActive = false
	updated, err := svc.Update(ctx, "u1", a)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := svc.List(ctx, "u1", true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := svc.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAlertDelete_ScopedToOwner(t *testing.T) {
	repo := newMemAlertRepo()
	svc := usecase.NewAlertService(repo)
	ctx := context.Background()
	a, err := svc.Create(ctx, domain.PriceAlert{
		UserID: "u1", Ticker: "AAPL", Condition: domain.AlertAbove,
		TargetPrice: 200, Channels: []string{domain.ChannelInApp},
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, "u2", a.ID), domain.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "u1", a.ID))
}
