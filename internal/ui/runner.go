package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warpcall/internal/call"
)

// CallUI runs the call view next to the session.
type CallUI struct {
	program *tea.Program
	model   *CallModel
	wg      sync.WaitGroup
	err     error
}

// NewCallUI wraps model in a bubbletea program. The default is inline mode,
// which keeps earlier terminal output visible.
func NewCallUI(model *CallModel, opts ...tea.ProgramOption) *CallUI {
	return &CallUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

func (u *CallUI) Start() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		if _, err := u.program.Run(); err != nil {
			u.err = err
		}
	}()
}

// Forward sends session events to the view until events is closed or done
// fires.
func (u *CallUI) Forward(events <-chan call.Event, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			u.program.Send(EventMsg{Event: ev})
		case <-done:
			return
		}
	}
}

// Finish closes the view and waits for the program to exit.
func (u *CallUI) Finish(err error) error {
	u.program.Send(FinishedMsg{Err: err})
	u.wg.Wait()
	return u.err
}
