package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/concierge-platform/internal/cache"
	"github.com/capitalize-ai/concierge-platform/internal/model"
	"github.com/capitalize-ai/concierge-platform/internal/store"
)

func TestCloseEvictsCacheAndPublishes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.turn(t, "sess-1", "hello")
	conv := h.activeConversations(t)[0]

	closed, err := h.convs.Close(ctx, h.tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, closed.Status)

	_, ok, err := h.cache.Get(ctx, cache.ConversationKey(h.tenant.ID, "sess-1"))
	require.NoError(t, err)
	assert.False(t, ok)

	evs := h.events.named(model.EventConversationClosed)
	require.Len(t, evs, 1)
	assert.Equal(t, conv.ID, evs[0].(model.ConversationEvent).ConversationID)

	h.turn(t, "sess-1", "back again")
	convs := h.activeConversations(t)
	require.Len(t, convs, 1)
	assert.NotEqual(t, conv.ID, convs[0].ID)
}

func TestHandoffPublishes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.turn(t, "sess-1", "hello")
	conv := h.activeConversations(t)[0]

	got, err := h.convs.Handoff(ctx, h.tenant.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingHandoff, got.Status)
	assert.Len(t, h.events.named(model.EventConversationHandoff), 1)

	// handed-off conversations still show in the operator list
	list, err := h.convs.List(ctx, h.tenant.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

func TestConversationAccessIsTenantScoped(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.turn(t, "sess-1", "hello")
	conv := h.activeConversations(t)[0]

	_, err := h.convs.Get(ctx, "other-tenant", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.convs.Messages(ctx, "other-tenant", conv.ID, 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.convs.Close(ctx, "other-tenant", conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	msgs, err := h.convs.Messages(ctx, h.tenant.ID, conv.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs.Messages, 2)
}

func TestListEmpty(t *testing.T) {
	h := newHarness(t, nil)
	list, err := h.convs.List(context.Background(), h.tenant.ID, 500)
	require.NoError(t, err)
	assert.NotNil(t, list.Conversations)
	assert.Equal(t, 0, list.Total)
}

func TestUpdateTenantSettings(t *testing.T) {
	h := newHarness(t, nil)

	tenant, err := h.convs.UpdateTenantSettings(context.Background(), h.tenant.ID, map[string]any{"booking_slots": []any{"10:00"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"10:00"}, tenant.Setting("booking_slots"))

	_, err = h.convs.UpdateTenantSettings(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, k.size())
}
