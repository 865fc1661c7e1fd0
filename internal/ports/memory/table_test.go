package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"domino/internal/domain"
	"domino/internal/scoring"
)

func seat(n int) []domain.Player {
	players := make([]domain.Player, n)
	for i := range players {
		players[i] = domain.Player{ID: fmt.Sprintf("p%d", i)}
	}
	return domain.AssignTeams(players)
}

// stacked deals front first, in the given order, then the rest of the catalog.
func stacked(front ...domain.Tile) func([]domain.Tile) []domain.Tile {
	return func(catalog []domain.Tile) []domain.Tile {
		out := append([]domain.Tile(nil), front...)
		for _, tile := range catalog {
			if !domain.ContainsTile(front, tile) {
				out = append(out, tile)
			}
		}
		return out
	}
}

func identity(tiles []domain.Tile) []domain.Tile { return tiles }

func TestDealConservation(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{2, 3, 4} {
		t.Run(fmt.Sprintf("%d players", n), func(t *testing.T) {
			table := NewTable(nil, rand.New(rand.NewSource(int64(n))))
			catalog := domain.NewCatalog(domain.StandardMaxPip)

			deal, err := table.Deal(ctx, "r1", seat(n), catalog)
			require.NoError(t, err)

			wantPile := len(catalog) - n*domain.HandSize
			assert.Equal(t, wantPile, deal.DrawPile)

			census, err := table.Census("r1")
			require.NoError(t, err)
			assert.Equal(t, n*domain.HandSize, census[domain.InHand])
			assert.Equal(t, wantPile, census[domain.InDrawPile])
			assert.Equal(t, 0, census[domain.Placed])

			seen := map[domain.Tile]bool{}
			for _, hand := range deal.Hands {
				assert.Len(t, hand, domain.HandSize)
				for _, tile := range hand {
					assert.False(t, seen[tile], "tile %s dealt twice", tile)
					seen[tile] = true
				}
			}
		})
	}
}

func TestDealRejects(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, nil)
	catalog := domain.NewCatalog(domain.StandardMaxPip)

	_, err := table.Deal(ctx, "r1", seat(1), catalog)
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)

	_, err = table.Deal(ctx, "r1", seat(4), catalog[:20])
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)

	_, err = table.Deal(ctx, "r1", seat(2), catalog)
	require.NoError(t, err)
	_, err = table.Deal(ctx, "r1", seat(2), catalog)
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
}

func TestAttemptMove(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, nil)
	table.Shuffle = identity
	players := seat(4)

	_, err := table.Deal(ctx, "r1", players, domain.NewCatalog(domain.StandardMaxPip))
	require.NoError(t, err)

	// p3 holds 3-6 .. 6-6 with the identity deal.
	err = table.AttemptMove(ctx, "r1", "p0", domain.NewTile(6, 6))
	assert.ErrorIs(t, err, domain.ErrIllegalMove)

	require.NoError(t, table.AttemptMove(ctx, "r1", "p3", domain.NewTile(6, 6)))
	layout, err := table.Layout(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.Layout{Set: true, Left: 6, Right: 6}, layout)

	require.NoError(t, table.AttemptMove(ctx, "r1", "p0", domain.NewTile(0, 6)))
	layout, _ = table.Layout(ctx, "r1")
	assert.Equal(t, domain.Layout{Set: true, Left: 0, Right: 6}, layout)

	err = table.AttemptMove(ctx, "r1", "p1", domain.NewTile(1, 1))
	assert.ErrorIs(t, err, domain.ErrIllegalMove)
	after, _ := table.Layout(ctx, "r1")
	assert.Equal(t, layout, after, "a rejected move must not change the layout")

	owner, loc, err := table.Holder(ctx, "r1", domain.NewTile(0, 6))
	require.NoError(t, err)
	assert.Equal(t, "p0", owner)
	assert.Equal(t, domain.Placed, loc)

	status, err := table.RoundStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundActive, status.Phase)

	census, _ := table.Census("r1")
	assert.Equal(t, 2, census[domain.Placed])
	assert.Equal(t, 26, census[domain.InHand])
}

func TestForceBlockScores(t *testing.T) {
	ctx := context.Background()
	table := NewTable(scoring.Standard{}, nil)
	table.Shuffle = identity

	_, err := table.Deal(ctx, "r1", seat(4), domain.NewCatalog(domain.StandardMaxPip))
	require.NoError(t, err)
	require.NoError(t, table.AttemptMove(ctx, "r1", "p3", domain.NewTile(6, 6)))

	status, err := table.ForceBlock(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundBlocked, status.Phase)
	assert.Equal(t, map[string]int{"A": 68, "B": 88}, status.TeamPips)
	assert.Equal(t, map[string]int{"A": 20, "B": 0}, status.Deltas)

	again, err := table.ForceBlock(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, status, again)

	err = table.AttemptMove(ctx, "r1", "p0", domain.NewTile(0, 6))
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
}

func TestCompletion(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, nil)
	chain := []domain.Tile{
		domain.NewTile(0, 0), domain.NewTile(0, 1), domain.NewTile(1, 1), domain.NewTile(1, 2),
		domain.NewTile(2, 2), domain.NewTile(2, 3), domain.NewTile(3, 3),
	}
	table.Shuffle = stacked(chain...)

	deal, err := table.Deal(ctx, "r1", seat(2), domain.NewCatalog(domain.StandardMaxPip))
	require.NoError(t, err)
	assert.Equal(t, 14, deal.DrawPile)

	for _, tile := range chain {
		require.NoError(t, table.AttemptMove(ctx, "r1", "p0", tile))
	}

	status, err := table.RoundStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundCompleted, status.Phase)
	assert.Equal(t, "p0", status.WinnerPlayer)
	assert.Equal(t, "A", status.WinnerTeam)
	// p1 holds 0-2 0-3 0-4 0-5 0-6 1-3 1-4.
	assert.Equal(t, map[string]int{"A": 29, "B": 0}, status.Deltas)

	blocked, err := table.IsBlocked(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestFailedScoringKeepsLastTile(t *testing.T) {
	ctx := context.Background()
	rule, err := scoring.NewScript(`function score() error("boom") end`)
	require.NoError(t, err)
	defer rule.Close()

	table := NewTable(rule, nil)
	chain := []domain.Tile{
		domain.NewTile(0, 0), domain.NewTile(0, 1), domain.NewTile(1, 1), domain.NewTile(1, 2),
		domain.NewTile(2, 2), domain.NewTile(2, 3), domain.NewTile(3, 3),
	}
	table.Shuffle = stacked(chain...)
	_, err = table.Deal(ctx, "r1", seat(2), domain.NewCatalog(domain.StandardMaxPip))
	require.NoError(t, err)

	last := chain[len(chain)-1]
	for _, tile := range chain[:len(chain)-1] {
		require.NoError(t, table.AttemptMove(ctx, "r1", "p0", tile))
	}
	before, err := table.Layout(ctx, "r1")
	require.NoError(t, err)

	err = table.AttemptMove(ctx, "r1", "p0", last)
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)

	after, err := table.Layout(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	owner, loc, err := table.Holder(ctx, "r1", last)
	require.NoError(t, err)
	assert.Equal(t, "p0", owner)
	assert.Equal(t, domain.InHand, loc)

	status, err := table.RoundStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundActive, status.Phase)

	census, _ := table.Census("r1")
	assert.Equal(t, len(chain)-1, census[domain.Placed])
}

func TestIsBlocked(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, nil)
	catalog := []domain.Tile{
		domain.NewTile(6, 6), domain.NewTile(0, 0), domain.NewTile(0, 1), domain.NewTile(0, 2),
		domain.NewTile(0, 3), domain.NewTile(0, 4), domain.NewTile(0, 5),
		domain.NewTile(1, 1), domain.NewTile(1, 2), domain.NewTile(1, 3), domain.NewTile(1, 4),
		domain.NewTile(1, 5), domain.NewTile(2, 2), domain.NewTile(2, 3),
	}
	table.Shuffle = identity

	deal, err := table.Deal(ctx, "r1", seat(2), catalog)
	require.NoError(t, err)
	assert.Equal(t, 0, deal.DrawPile)

	blocked, err := table.IsBlocked(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, blocked, "an empty layout accepts any tile")

	require.NoError(t, table.AttemptMove(ctx, "r1", "p0", domain.NewTile(6, 6)))
	blocked, err = table.IsBlocked(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, blocked)

	status, err := table.ForceBlock(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 15, "B": 29}, status.TeamPips)
	assert.Equal(t, map[string]int{"A": 14, "B": 0}, status.Deltas)
}

func TestDraw(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, nil)
	table.Shuffle = identity

	_, err := table.Deal(ctx, "r1", seat(2), domain.NewCatalog(domain.StandardMaxPip))
	require.NoError(t, err)

	tile, err := table.Draw(ctx, "r1", "p1")
	require.NoError(t, err)
	// The identity deal leaves 2-3 on top of the pile.
	assert.Equal(t, domain.NewTile(2, 3), tile)

	owner, loc, err := table.Holder(ctx, "r1", tile)
	require.NoError(t, err)
	assert.Equal(t, "p1", owner)
	assert.Equal(t, domain.InHand, loc)

	size, err := table.DrawPileSize(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 13, size)

	hand, err := table.Hand(ctx, "r1", "p1")
	require.NoError(t, err)
	assert.Len(t, hand, 8)

	for i := 0; i < 13; i++ {
		_, err = table.Draw(ctx, "r1", "p0")
		require.NoError(t, err)
	}
	_, err = table.Draw(ctx, "r1", "p0")
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
}

func TestUnknownRoundAndPlayer(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, nil)

	_, err := table.Layout(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
	_, err = table.RoundStatus(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)

	_, err = table.Deal(ctx, "r1", seat(2), domain.NewCatalog(domain.StandardMaxPip))
	require.NoError(t, err)
	_, err = table.Hand(ctx, "r1", "ghost")
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
	_, _, err = table.Holder(ctx, "r1", domain.Tile{A: 7, B: 9})
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)

	table.Forget("r1")
	_, err = table.Layout(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrProtocolViolation)
}

func TestConcurrentRounds(t *testing.T) {
	ctx := context.Background()
	table := NewTable(nil, rand.New(rand.NewSource(1)))
	catalog := domain.NewCatalog(domain.StandardMaxPip)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i)
			_, err := table.Deal(ctx, id, seat(2), catalog)
			assert.NoError(t, err)
			_, err = table.Draw(ctx, id, "p0")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 16; i++ {
		size, err := table.DrawPileSize(ctx, fmt.Sprintf("r%d", i))
		require.NoError(t, err)
		assert.Equal(t, 13, size)
	}
}
