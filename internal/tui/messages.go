package tui

import (
	"github.com/VladFo01/chatlink/chatlink/session"
	"github.com/VladFo01/chatlink/chatlink/upload"
)

type (
	sessionUpdateMsg struct{ update session.Update }
	sessionClosedMsg struct{}
	startedMsg       struct{ err error }
	sentMsg          struct{ err error }
	uploadDoneMsg    struct {
		job upload.Job
		err error
	}
)
