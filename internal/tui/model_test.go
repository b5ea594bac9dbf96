package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/newsqa/internal/app"
	"github.com/xhad/newsqa/internal/models"
)

type fakePort struct {
	urls      []string
	questions []string
	process   app.Outcome
	ask       app.Outcome
}

func (f *fakePort) ProcessURLs(_ context.Context, urls []string) app.Outcome {
	f.urls = urls
	return f.process
}

func (f *fakePort) Ask(_ context.Context, q string) app.Outcome {
	f.questions = append(f.questions, q)
	return f.ask
}

// drain runs cmd and everything it batches, returning the outcome message.
func drain(t *testing.T, cmd tea.Cmd) outcomeMsg {
	t.Helper()
	require.NotNil(t, cmd)
	var found *outcomeMsg
	var run func(tea.Cmd)
	run = func(c tea.Cmd) {
		if c == nil {
			return
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			for _, sub := range msg {
				run(sub)
			}
		case outcomeMsg:
			found = &msg
		}
	}
	run(cmd)
	require.NotNil(t, found, "no outcome produced")
	return *found
}

func TestProcessURLs(t *testing.T) {
	port := &fakePort{process: app.Outcome{State: app.StateBuilt, Level: app.LevelSuccess, Message: app.MsgProcessed}}
	m := New(context.Background(), port, 3)
	m.urls[0].SetValue("http://example.com/a")
	m.urls[2].SetValue("http://example.com/b")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlP})
	m = next.(Model)
	assert.Contains(t, m.View(), "Loading and Processing URLs")

	next, _ = m.Update(drain(t, cmd))
	m = next.(Model)
	assert.Equal(t, []string{"http://example.com/a", "", "http://example.com/b"}, port.urls)
	assert.Contains(t, m.View(), app.MsgProcessed)
	assert.NotContains(t, m.View(), "Loading and Processing URLs")
}

func TestButtonTriggersProcess(t *testing.T) {
	port := &fakePort{process: app.Outcome{State: app.StateRejectedEmpty, Level: app.LevelWarning, Message: app.MsgNoDocuments}}
	m := New(context.Background(), port, 2)
	m = m.setFocus(m.buttonPos())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, _ = next.(Model).Update(drain(t, cmd))
	assert.Contains(t, next.(Model).View(), "No valid URLs or documents found")
	assert.Len(t, port.urls, 2)
}

func TestAskRendersAnswerAndSources(t *testing.T) {
	answer := models.Answer{Answer: "Stocks rallied.", Sources: "http://example.com/a\nhttp://example.com/b"}
	port := &fakePort{ask: app.Outcome{State: app.StateAnswered, Level: app.LevelSuccess, Message: answer.Answer, Answer: &answer}}
	m := New(context.Background(), port, 3)
	m = m.setFocus(m.questionPos())
	m.question.SetValue("What happened?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Contains(t, m.View(), "Thinking...")

	next, _ = m.Update(drain(t, cmd))
	view := next.(Model).View()
	assert.Equal(t, []string{"What happened?"}, port.questions)
	assert.Contains(t, view, "Answer")
	assert.Contains(t, view, "Stocks rallied.")
	assert.Contains(t, view, "Sources")
	assert.Contains(t, view, "http://example.com/a")
	assert.Contains(t, view, "http://example.com/b")
}

func TestBlankQuestionDoesNothing(t *testing.T) {
	port := &fakePort{}
	m := New(context.Background(), port, 3)
	m = m.setFocus(m.questionPos())
	m.question.SetValue("   ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, port.questions)
}

func TestNoIndexWarning(t *testing.T) {
	port := &fakePort{ask: app.Outcome{State: app.StateRejectedNoIndex, Level: app.LevelWarning, Message: app.MsgNoIndex}}
	m := New(context.Background(), port, 3)
	m = m.setFocus(m.questionPos())
	m.question.SetValue("What happened?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next, _ = next.(Model).Update(drain(t, cmd))
	assert.Contains(t, next.(Model).View(), app.MsgNoIndex)
}

func TestFocusCycles(t *testing.T) {
	m := New(context.Background(), &fakePort{}, 2)
	assert.Equal(t, 0, m.focus)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, m.buttonPos(), next.(Model).focus)

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyTab})
	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 0, next.(Model).focus)

	next, _ = next.(Model).Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, m.questionPos(), next.(Model).focus)
}
