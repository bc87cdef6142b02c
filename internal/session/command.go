package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/editor"
	"github.com/dgallion1/tategaki/internal/surface"
)

// ErrUnknownOp reports a command the session does not understand.
var ErrUnknownOp = errors.New("session: unknown command")

// Command operations.
const (
	OpSelect            = "select"
	OpInsertText        = "insertText"
	OpDeleteRange       = "deleteRange"
	OpFormatText        = "formatText"
	OpSetBlockType      = "setBlockType"
	OpInsertRuby        = "insertRuby"
	OpSetRubyText       = "setRubyText"
	OpToggleTateChuYoko = "toggleTateChuYoko"
	OpInsertAuthor      = "insertAuthor"
	OpInsertParagraph   = "insertParagraph"
	OpInsertLineBreak   = "insertLineBreak"
	OpUndo              = "undo"
	OpRedo              = "redo"
	OpSetTitle          = "setTitle"
	OpLoad              = "load"
	OpResize            = "resize"
	OpPaginate          = "paginate"
	OpShowPageBreak     = "showPageBreak"
)

// Command is one client request. Selection, when present, is applied
// before the operation.
type Command struct {
	Op        string             `json:"op"`
	Text      string             `json:"text,omitempty"`
	Tag       string             `json:"tag,omitempty"`
	Format    content.TextFormat `json:"format,omitempty"`
	Selection *editor.Selection  `json:"selection,omitempty"`
	Viewport  *surface.Viewport  `json:"viewport,omitempty"`
	Content   json.RawMessage    `json:"content,omitempty"`
	Show      *bool              `json:"show,omitempty"`
}

// Apply runs cmd against the session.
func (s *Session) Apply(cmd Command) error {
	s.touch()
	if cmd.Selection != nil {
		if err := s.ed.Select(*cmd.Selection); err != nil {
			return err
		}
	}

	var edit func(tx *editor.Tx) error
	switch cmd.Op {
	case OpSelect:
		if cmd.Selection == nil {
			return fmt.Errorf("%s: %w", cmd.Op, editor.ErrNoSelection)
		}
		return nil
	case OpInsertText:
		edit = func(tx *editor.Tx) error { return tx.InsertText(cmd.Text) }
	case OpDeleteRange:
		edit = (*editor.Tx).DeleteRange
	case OpFormatText:
		edit = func(tx *editor.Tx) error { return tx.FormatText(cmd.Format) }
	case OpSetBlockType:
		edit = func(tx *editor.Tx) error { return tx.SetBlockType(cmd.Tag) }
	case OpInsertRuby:
		edit = func(tx *editor.Tx) error { return tx.InsertRuby(cmd.Text) }
	case OpSetRubyText:
		edit = func(tx *editor.Tx) error { return tx.SetRubyText(cmd.Text) }
	case OpToggleTateChuYoko:
		edit = (*editor.Tx).ToggleTateChuYoko
	case OpInsertAuthor:
		edit = func(tx *editor.Tx) error { return tx.InsertAuthor(cmd.Text) }
	case OpInsertParagraph:
		edit = (*editor.Tx).InsertParagraph
	case OpInsertLineBreak:
		edit = (*editor.Tx).InsertLineBreak
	case OpUndo:
		return s.ed.Undo()
	case OpRedo:
		return s.ed.Redo()
	case OpSetTitle:
		s.SetTitle(cmd.Text)
		return nil
	case OpLoad:
		return s.ed.Load(cmd.Content, editor.TagImport)
	case OpResize:
		if cmd.Viewport == nil {
			return fmt.Errorf("%s: viewport required", cmd.Op)
		}
		s.Resize(*cmd.Viewport)
		return nil
	case OpPaginate:
		s.Paginate()
		return nil
	case OpShowPageBreak:
		if cmd.Show == nil {
			return fmt.Errorf("%s: show required", cmd.Op)
		}
		s.SetShowPageBreak(*cmd.Show)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
	return s.ed.Update(edit)
}
