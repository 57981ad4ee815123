package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftpad/draftpad/pkg/models"
)

func strPtr(s string) *string { return &s }

func newPage(t *testing.T, s *Store, ws models.WorkspaceID, title string) *models.Page {
	t.Helper()
	page := &models.Page{WorkspaceID: ws, Title: title, Content: "hello"}
	require.NoError(t, s.CreatePage(context.Background(), page))
	return page
}

func TestVersionCountsUpFromZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	page := newPage(t, s, models.NewWorkspaceID(), "Draft")
	assert.Equal(t, int64(0), page.Version)

	const updates = 5
	for i := 0; i < updates; i++ {
		updated, matched, err := s.UpdatePageAtVersion(ctx, page.ID, strPtr("Draft"), nil, int64(i))
		require.NoError(t, err)
		require.True(t, matched)
		assert.Equal(t, int64(i+1), updated.Version)
	}

	final, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(updates), final.Version)
}

func TestStaleVersionNeverMutates(t *testing.T) {
	ctx := context.Background()
	s := New()
	page := newPage(t, s, models.NewWorkspaceID(), "Draft")

	_, matched, err := s.UpdatePageAtVersion(ctx, page.ID, strPtr("Draft v2"), nil, 7)
	require.NoError(t, err)
	assert.False(t, matched)

	current, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", current.Title, "a predicate miss must not mutate")
	assert.Equal(t, int64(0), current.Version)
}

func TestConcurrentUpdatersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	page := newPage(t, s, models.NewWorkspaceID(), "Draft")

	const racers = 50
	var wg sync.WaitGroup
	wins := make(chan *models.Page, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "racer"
			updated, matched, err := s.UpdatePageAtVersion(ctx, page.ID, &title, nil, 0)
			assert.NoError(t, err)
			if matched {
				wins <- updated
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	winners := 0
	for w := range wins {
		winners++
		assert.Equal(t, int64(1), w.Version)
	}
	assert.Equal(t, 1, winners, "exactly one racer must win")
}

func TestUpdateMissingPage(t *testing.T) {
	s := New()
	_, matched, err := s.UpdatePageAtVersion(context.Background(), models.NewPageID(), strPtr("x"), nil, 0)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestDeleteWorkspaceCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	ws := &models.Workspace{Title: "Team"}
	require.NoError(t, s.CreateWorkspace(ctx, ws))
	other := &models.Workspace{Title: "Other"}
	require.NoError(t, s.CreateWorkspace(ctx, other))

	var pages []*models.Page
	for _, title := range []string{"a", "b", "c"} {
		pages = append(pages, newPage(t, s, ws.ID, title))
	}
	kept := newPage(t, s, other.ID, "kept")

	require.NoError(t, s.DeleteWorkspace(ctx, ws.ID))

	gone, err := s.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	for _, p := range pages {
		got, err := s.GetPage(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, got, "cascade must remove page %s", p.Title)
	}

	// Pages in other workspaces are untouched.
	still, err := s.GetPage(ctx, kept.ID)
	require.NoError(t, err)
	require.NotNil(t, still)

	// Deleting an empty (or absent) workspace succeeds trivially.
	require.NoError(t, s.DeleteWorkspace(ctx, ws.ID))
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	page := newPage(t, s, models.NewWorkspaceID(), "Draft")

	got, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	got.Title = "mutated locally"

	again, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", again.Title)
}
