package render

import (
	"unicode/utf8"

	"github.com/go-telegram/bot/models"
)

// telegramCallbackLimit is the Bot API limit for callback_data, in bytes.
const telegramCallbackLimit = 64

// TelegramMessage is a sendMessage or sendPhoto call.
type TelegramMessage struct {
	Method      string                       `json:"method"`
	Text        string                       `json:"text,omitempty"`
	Photo       string                       `json:"photo,omitempty"`
	Caption     string                       `json:"caption,omitempty"`
	ParseMode   models.ParseMode             `json:"parse_mode,omitempty"`
	ReplyMarkup *models.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type telegramButtons struct{}

func (telegramButtons) SaySomething(a SaySomething) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: a.Label, CallbackData: callbackData(SayPayloadPrefix + a.Text)}
}

func (telegramButtons) OpenURL(a OpenURL) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: a.Label, URL: a.URL}
}

func (telegramButtons) Postback(a Postback) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: a.Label, CallbackData: callbackData(a.Payload)}
}

// callbackData truncates s to the callback_data limit without splitting a rune.
func callbackData(s string) string {
	if len(s) <= telegramCallbackLimit {
		return s
	}
	s = s[:telegramCallbackLimit]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func renderTelegram(c Carousel) []any {
	out := make([]any, 0, len(c.Items))
	for _, card := range c.Items {
		text := "*" + card.Title + "*"
		if card.Subtitle != "" {
			text += "\n" + card.Subtitle
		}

		msg := TelegramMessage{ParseMode: models.ParseModeMarkdown}
		if len(card.Actions) > 0 {
			rows := make([][]models.InlineKeyboardButton, 0, len(card.Actions))
			for _, a := range card.Actions {
				rows = append(rows, []models.InlineKeyboardButton{Visit[models.InlineKeyboardButton](a, telegramButtons{})})
			}
			msg.ReplyMarkup = &models.InlineKeyboardMarkup{InlineKeyboard: rows}
		}

		if card.Image != "" {
			msg.Method = "sendPhoto"
			msg.Photo = card.Image
			msg.Caption = text
		} else {
			msg.Method = "sendMessage"
			msg.Text = text
		}
		out = append(out, msg)
	}
	return out
}
