package tui

import "strings"

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSend
	cmdUpload
	cmdHelp
	cmdQuit
	cmdUnknown
)

type command struct {
	kind commandKind
	arg  string
}

// parseInput splits a submitted line into a command. Lines that do not
// start with a slash are chat messages.
func parseInput(line string) command {
	text := strings.TrimSpace(line)
	if text == "" {
		return command{kind: cmdNone}
	}
	if !strings.HasPrefix(text, "/") {
		return command{kind: cmdSend, arg: text}
	}
	// A doubled slash escapes a message that starts with one.
	if strings.HasPrefix(text, "//") {
		return command{kind: cmdSend, arg: text[1:]}
	}

	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/upload":
		if arg == "" {
			return command{kind: cmdUnknown, arg: "usage: /upload <path>"}
		}
		return command{kind: cmdUpload, arg: arg}
	case "/help":
		return command{kind: cmdHelp}
	case "/quit", "/exit":
		return command{kind: cmdQuit}
	default:
		return command{kind: cmdUnknown, arg: "unknown command " + name}
	}
}
