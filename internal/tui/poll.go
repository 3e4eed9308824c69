package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lei/runwatch/internal/poller"
)

// keepLatest forwards poll results into a one-slot channel without blocking
// the poller. When the view has not consumed the previous result yet, the
// newer one replaces it.
func keepLatest[T any](ch chan poller.Result[T]) func(poller.Result[T]) {
	return func(r poller.Result[T]) {
		for {
			select {
			case ch <- r:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}
}

// waitForResult turns the next poll result into a bubbletea message
func waitForResult[T any](ch <-chan poller.Result[T], wrap func(poller.Result[T]) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return wrap(<-ch)
	}
}
