package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryWindow(t *testing.T) {
	history := NewHistory()
	for i := 0; i < 20; i++ {
		history.Append(RoleUser, fmt.Sprintf("turn %d", i))
	}

	window := history.Window(15)
	require.Len(t, window, 15)
	require.Equal(t, "turn 5", window[0].Text)
	require.Equal(t, "turn 19", window[14].Text)

	require.Len(t, history.Window(100), 20)
	require.Empty(t, history.Window(0))
}

func TestHistoryAppendAssignsIDs(t *testing.T) {
	history := NewHistory()
	a := history.Append(RoleUser, "one")
	b := history.Append(RoleAssistant, "two")

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.False(t, a.At.IsZero())
	require.Equal(t, 2, history.Len())
}

func TestHistoryConcurrentAppend(t *testing.T) {
	history := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			history.Append(RoleUser, "x")
		}()
	}
	wg.Wait()

	require.Equal(t, 50, history.Len())
}
