package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"screen-ocr-clip/src/history"
	"screen-ocr-clip/src/singleinstance"
)

// ErrDeferred is handed to Target.OnFailure when another process took the job.
var ErrDeferred = errors.New("handed off to external OCR watcher")

// Target receives the result of a run.
type Target interface {
	OnSuccess(text string) error
	OnFailure(err error) error
}

// ClipboardTarget copies through the history so the copy is recorded.
type ClipboardTarget struct {
	History *history.History
}

func (t ClipboardTarget) OnSuccess(text string) error {
	if t.History == nil {
		return errors.New("clipboard target missing history")
	}
	return t.History.CopyText(text, true)
}

func (ClipboardTarget) OnFailure(error) error { return nil }

// StdoutTarget prints the text instead of copying it.
type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(text string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func (StdoutTarget) OnFailure(error) error { return nil }

// DelegatedTarget answers a client that asked the resident instance to run.
type DelegatedTarget struct {
	Conn    singleinstance.Conn
	History *history.History
}

func (t DelegatedTarget) OnSuccess(text string) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	if t.Conn.Request().OutputToStdout {
		return t.Conn.RespondSuccess(text)
	}
	if err := (ClipboardTarget{History: t.History}).OnSuccess(text); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	return t.Conn.RespondSuccess("")
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if errors.Is(err, ErrDeferred) {
		return t.Conn.RespondDeferred()
	}
	if err == nil {
		return t.Conn.RespondError("unknown pipeline error")
	}
	return t.Conn.RespondError(err.Error())
}
