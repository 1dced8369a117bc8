package models

import "time"

type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangCPP        Language = "cpp"
)

// SupportedLanguages lists every language the editor offers, in menu order.
func SupportedLanguages() []Language {
	return []Language{LangJavaScript, LangTypeScript, LangPython, LangJava, LangCPP}
}

func (l Language) Valid() bool {
	switch l {
	case LangJavaScript, LangTypeScript, LangPython, LangJava, LangCPP:
		return true
	}
	return false
}

/*** Collaboration session state ***/

// DocState is the authoritative document: the full text plus a version that
// strictly increases on every accepted change. There is no range or per-char
// change representation; a change replaces the whole text (last writer wins).
type DocState struct {
	Text    string `json:"text"`
	Version int64  `json:"version"`
}

// ChatMessage is immutable once appended. SentAt is assigned by the room when
// the message is accepted; client clocks are never trusted for ordering.
type ChatMessage struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

/*** Wire protocol ***/

// WSFrame is the envelope for every message in both directions.
type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	// Client -> server.
	EvtJoin           = "join"
	EvtLeaveRoom      = "leaveRoom"
	EvtCodeChange     = "codeChange"
	EvtTyping         = "typing"
	EvtLanguageChange = "languageChange"
	EvtSendMessage    = "sendMessage"

	// Server -> client.
	EvtChatHistory    = "chatHistory"
	EvtReceiveMessage = "receiveMessage"
	EvtCodeUpdate     = "codeUpdate"
	EvtUserTyping     = "userTyping"
	EvtLanguageUpdate = "languageUpdate"
	EvtUserJoined     = "userJoined"
)

type JoinRequest struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type LeaveRequest struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type CodeChange struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type TypingNotice struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

type LanguageChange struct {
	RoomID   string   `json:"roomId"`
	Language Language `json:"language"`
}

type SendMessageRequest struct {
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

// CodeUpdate carries the version alongside the text so a receiver can discard
// an update that is not newer than the last one it applied.
type CodeUpdate struct {
	Code    string `json:"code"`
	Version int64  `json:"version"`
}

/*** Session persistence boundary ***/

// SessionMetadata is what the persistence collaborator records per session.
type SessionMetadata struct {
	ID       string   `json:"id"`
	Language Language `json:"language"`
}

/*** Code execution boundary ***/

type RunRequest struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
	Stdin    string   `json:"stdin,omitempty"`
}

type RunResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compileOutput,omitempty"`
}

type LanguageSpec struct {
	Name Language `json:"name"`
	// ExecID is the numeric id the execution collaborator expects.
	ExecID int `json:"execId"`
}
