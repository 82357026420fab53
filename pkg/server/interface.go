/*
Package server implements msgpack IPC between an editor plugin and the suggestion engine.

The plugin forwards document events over stdin and applies the commands it gets back on stdout.
The server keeps a mirror of every open document, runs one session controller per document and
turns whatever the controller asks of the host into commands.

# IPC

Every message is a msgpack map. A request names an action and, for most actions, a document:

	{"id": "1", "a": "open", "doc": "Main.java", "lines": ["", ""], "ts": 4, "sp": true}
	{"id": "2", "a": "change", "doc": "Main.java", "ch": [{"sl": 0, "sc": 0, "el": 0, "ec": 0, "t": "while"}]}
	{"id": "3", "a": "accept", "doc": "Main.java"}

Changes use 0-based lines and columns, columns counted in runes, like editor content change events.

The server answers each request with the commands to apply, in order:

	{"id": "2", "status": "ok", "cmds": [{"k": "edit", "sl": 1, "t": "\n\n\n"}, {"k": "overlay", "ov": [...]}]}

Edits in commands were already applied to the mirror. The plugin must apply them without
reporting them back as changes, otherwise the mirror drifts.

Work that finishes after the response, such as formatting after an accept, is pushed with an
empty id:

	{"id": "", "doc": "Main.java", "cmds": [{"k": "format", "sl": 0, "el": 3}]}

# Actions

open, change, accept, dismiss, blur, hover and close act on a document. rules lists rule keys
under a prefix and health reports the number of open documents.

# Commands

edit, overlay, clear, cursor, format, notify and settings. settings asks the host to change an
editor setting; it is used to turn off auto-closing brackets while a document is open.
*/
package server

// Actions understood by the server.
const (
	ActionOpen    = "open"
	ActionChange  = "change"
	ActionAccept  = "accept"
	ActionDismiss = "dismiss"
	ActionBlur    = "blur"
	ActionHover   = "hover"
	ActionClose   = "close"
	ActionRules   = "rules"
	ActionHealth  = "health"
)

// Command kinds sent to the client.
const (
	CmdEdit     = "edit"
	CmdOverlay  = "overlay"
	CmdClear    = "clear"
	CmdCursor   = "cursor"
	CmdFormat   = "format"
	CmdNotify   = "notify"
	CmdSettings = "settings"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusReady = "ready"
)

// Request is a client message.
type Request struct {
	ID     string `msgpack:"id"`
	Action string `msgpack:"a"`
	Doc    string `msgpack:"doc,omitempty"`
	// Lines is the full document on open.
	Lines        []string        `msgpack:"lines,omitempty"`
	TabSize      int             `msgpack:"ts,omitempty"`
	InsertSpaces *bool           `msgpack:"sp,omitempty"`
	Changes      []ContentChange `msgpack:"ch,omitempty"`
	Line         int             `msgpack:"ln,omitempty"`
	Prefix       string          `msgpack:"prefix,omitempty"`
	// Previous is the client's auto-closing brackets setting before open, restored on close.
	Previous string `msgpack:"prev,omitempty"`
}

// ContentChange replaces the range [start, end) with T.
type ContentChange struct {
	StartLine int    `msgpack:"sl"`
	StartCol  int    `msgpack:"sc"`
	EndLine   int    `msgpack:"el"`
	EndCol    int    `msgpack:"ec"`
	Text      string `msgpack:"t"`
}

// OverlayLine is ghost text painted after the content of a line.
type OverlayLine struct {
	Line int    `msgpack:"ln"`
	Text string `msgpack:"t"`
}

// Command is one host operation for the client.
type Command struct {
	Kind      string        `msgpack:"k"`
	StartLine int           `msgpack:"sl,omitempty"`
	StartCol  int           `msgpack:"sc,omitempty"`
	EndLine   int           `msgpack:"el,omitempty"`
	EndCol    int           `msgpack:"ec,omitempty"`
	Text      string        `msgpack:"t,omitempty"`
	Overlays  []OverlayLine `msgpack:"ov,omitempty"`
	Line      int           `msgpack:"ln,omitempty"`
	Col       int           `msgpack:"col,omitempty"`
	Message   string        `msgpack:"msg,omitempty"`
	Key       string        `msgpack:"key,omitempty"`
	Value     string        `msgpack:"val,omitempty"`
}

// Response answers a request, or carries pushed commands when ID is empty.
type Response struct {
	ID       string    `msgpack:"id"`
	Status   string    `msgpack:"status,omitempty"`
	Error    string    `msgpack:"error,omitempty"`
	Doc      string    `msgpack:"doc,omitempty"`
	Commands []Command `msgpack:"cmds,omitempty"`
	// Accepted is set when an accept request inserted a suggestion.
	Accepted  bool     `msgpack:"acc,omitempty"`
	Hover     string   `msgpack:"hover,omitempty"`
	Keys      []string `msgpack:"keys,omitempty"`
	Documents int      `msgpack:"docs,omitempty"`
}
