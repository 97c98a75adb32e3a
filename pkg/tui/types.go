package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/evanschultz/memprof-client/pkg/session"
)

// Messages
type snapshotMsg struct {
	snap session.Snapshot
}

type connectedMsg struct {
	sessionID string
	addr      string
}

type disconnectedMsg struct {
	sessionID string
	cause     error
}

type connectResultMsg struct {
	addr string
	err  error
}

type detailRenderedMsg struct {
	content string
}

type errMsg struct {
	err error
}

// Hooks returns driver hooks that forward every event to send, usually
// (*tea.Program).Send.
func Hooks(send func(tea.Msg)) session.Hooks {
	return session.Hooks{
		OnConnect: func(id, addr string) {
			send(connectedMsg{sessionID: id, addr: addr})
		},
		OnSnapshot: func(s session.Snapshot) {
			send(snapshotMsg{snap: s})
		},
		OnError: func(err error) {
			send(errMsg{err})
		},
		OnDisconnect: func(id string, cause error) {
			send(disconnectedMsg{sessionID: id, cause: cause})
		},
	}
}
