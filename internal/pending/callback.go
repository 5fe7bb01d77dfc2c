package pending

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Callback data carries the full key so handlers need no server-side
// lookup table:
//
//	q:<chatId>:<threadId>:<questionIdx>:<optionIdx|other>
//	p:<chatId>:<threadId>:<once|always|reject>
const (
	OptionOther = "other"

	PermissionOnce   = "once"
	PermissionAlways = "always"
	PermissionReject = "reject"
)

// maxOptionButtons caps the option rows; anything beyond goes through
// Other as freetext.
const maxOptionButtons = 7

// QuestionCallback is a decoded q: token.
type QuestionCallback struct {
	Key         Key
	QuestionIdx int
	OptionIdx   int  // valid when !Other
	Other       bool
}

// PermissionCallback is a decoded p: token.
type PermissionCallback struct {
	Key     Key
	Verdict string
}

// EncodeQuestionCallback builds the q: token. option is a numeric option
// index or OptionOther.
func EncodeQuestionCallback(key Key, questionIdx int, option string) string {
	return fmt.Sprintf("q:%d:%d:%d:%s", key.ChatID, key.ThreadID, questionIdx, option)
}

// EncodePermissionCallback builds the p: token.
func EncodePermissionCallback(key Key, verdict string) string {
	return fmt.Sprintf("p:%d:%d:%s", key.ChatID, key.ThreadID, verdict)
}

// ParseQuestionCallback decodes a q: token.
func ParseQuestionCallback(data string) (QuestionCallback, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 5 || parts[0] != "q" {
		return QuestionCallback{}, false
	}
	chatID, err1 := strconv.ParseInt(parts[1], 10, 64)
	threadID, err2 := strconv.Atoi(parts[2])
	qIdx, err3 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return QuestionCallback{}, false
	}
	cb := QuestionCallback{
		Key:         Key{ChatID: chatID, ThreadID: threadID},
		QuestionIdx: qIdx,
	}
	if parts[4] == OptionOther {
		cb.Other = true
		return cb, true
	}
	optIdx, err := strconv.Atoi(parts[4])
	if err != nil {
		return QuestionCallback{}, false
	}
	cb.OptionIdx = optIdx
	return cb, true
}

// ParsePermissionCallback decodes a p: token.
func ParsePermissionCallback(data string) (PermissionCallback, bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != "p" {
		return PermissionCallback{}, false
	}
	chatID, err1 := strconv.ParseInt(parts[1], 10, 64)
	threadID, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return PermissionCallback{}, false
	}
	switch parts[3] {
	case PermissionOnce, PermissionAlways, PermissionReject:
	default:
		return PermissionCallback{}, false
	}
	return PermissionCallback{
		Key:     Key{ChatID: chatID, ThreadID: threadID},
		Verdict: parts[3],
	}, true
}

// QuestionKeyboard lays out option buttons two per row, capped at
// maxOptionButtons, with a trailing Other button.
func QuestionKeyboard(key Key, questionIdx int, options []string) *telego.InlineKeyboardMarkup {
	if len(options) > maxOptionButtons {
		options = options[:maxOptionButtons]
	}
	var rows [][]telego.InlineKeyboardButton
	var row []telego.InlineKeyboardButton
	for i, opt := range options {
		row = append(row, tu.InlineKeyboardButton(opt).
			WithCallbackData(EncodeQuestionCallback(key, questionIdx, strconv.Itoa(i))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	row = append(row, tu.InlineKeyboardButton("Other").
		WithCallbackData(EncodeQuestionCallback(key, questionIdx, OptionOther)))
	rows = append(rows, row)
	return tu.InlineKeyboard(rows...)
}

// PermissionKeyboard builds the three-verdict row.
func PermissionKeyboard(key Key) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Accept").WithCallbackData(EncodePermissionCallback(key, PermissionOnce)),
			tu.InlineKeyboardButton("Accept Always").WithCallbackData(EncodePermissionCallback(key, PermissionAlways)),
			tu.InlineKeyboardButton("Deny").WithCallbackData(EncodePermissionCallback(key, PermissionReject)),
		),
	)
}
