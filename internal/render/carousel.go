package render

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ashureev/botkit/internal/domain"
)

// BotURLPlaceholder is replaced by the bot's public url in action urls and images.
const BotURLPlaceholder = "BOT_URL"

// Channels with a dedicated template. Every other channel gets the web payload.
const (
	ChannelSlack     = "slack"
	ChannelMessenger = "messenger"
	ChannelTeams     = "teams"
	ChannelTelegram  = "telegram"
	ChannelTwilio    = "twilio"
	ChannelWeb       = "web"
)

// Card is one carousel item.
type Card struct {
	Title    string  `json:"title"`
	Image    string  `json:"image,omitempty"`
	Subtitle string  `json:"subtitle,omitempty"`
	Actions  Actions `json:"actions"`
}

// Carousel is a multi-card message.
type Carousel struct {
	Items    []Card `json:"items"`
	Typing   bool   `json:"typing,omitempty"`
	Markdown bool   `json:"markdown,omitempty"`
	BotURL   string `json:"botUrl,omitempty"`
}

// Channels lists every channel Render knows, templated ones first.
func Channels() []string {
	return []string{ChannelWeb, ChannelSlack, ChannelMessenger, ChannelTeams, ChannelTelegram, ChannelTwilio}
}

// Render returns the messages to send on channel for c.
func Render(c Carousel, channel string) ([]any, error) {
	for i, card := range c.Items {
		if strings.TrimSpace(card.Title) == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("items[%d].title", i), "is required")
		}
	}
	c = c.resolveURLs()

	switch strings.ToLower(channel) {
	case ChannelSlack:
		return renderSlack(c), nil
	case ChannelMessenger:
		return renderMessenger(c), nil
	case ChannelTeams:
		return renderTeams(c), nil
	case ChannelTelegram:
		return renderTelegram(c), nil
	case ChannelTwilio:
		return renderTwilio(c), nil
	default:
		return renderWeb(c), nil
	}
}

// resolveURLs substitutes the bot url in images and links and makes relative images absolute.
func (c Carousel) resolveURLs() Carousel {
	base := strings.TrimRight(c.BotURL, "/")
	fix := func(s string, image bool) string {
		if s == "" || base == "" {
			return s
		}
		s = strings.ReplaceAll(s, BotURLPlaceholder, base)
		if image {
			if u, err := url.Parse(s); err == nil && !u.IsAbs() && !strings.HasPrefix(s, "data:") {
				return base + "/" + strings.TrimLeft(s, "/")
			}
		}
		return s
	}

	out := c
	out.Items = make([]Card, len(c.Items))
	for i, card := range c.Items {
		card.Image = fix(card.Image, true)
		actions := make(Actions, len(card.Actions))
		for j, a := range card.Actions {
			if link, ok := a.(OpenURL); ok {
				link.URL = fix(link.URL, false)
				a = link
			}
			actions[j] = a
		}
		card.Actions = actions
		out.Items[i] = card
	}
	return out
}

// TypingEvent shows a typing indicator before the carousel.
type TypingEvent struct {
	Type  string `json:"type"`
	Value bool   `json:"value"`
}

// WebCarousel is the channel-agnostic carousel payload.
type WebCarousel struct {
	Type     string       `json:"type"`
	Text     string       `json:"text"`
	Markdown bool         `json:"markdown"`
	Elements []WebElement `json:"elements"`
}

// WebElement is one card of a WebCarousel.
type WebElement struct {
	Title    string `json:"title"`
	Picture  string `json:"picture,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Buttons  []any  `json:"buttons"`
}

// SayButton, URLButton and PostbackButton are the web button shapes.
type SayButton struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type URLButton struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type PostbackButton struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type webButtons struct{}

func (webButtons) SaySomething(a SaySomething) any {
	return SayButton{Type: "say_something", Title: a.Label, Text: a.Text}
}

func (webButtons) OpenURL(a OpenURL) any {
	return URLButton{Type: "open_url", Title: a.Label, URL: a.URL}
}

func (webButtons) Postback(a Postback) any {
	return PostbackButton{Type: "postback", Title: a.Label, Payload: a.Payload}
}

func renderWeb(c Carousel) []any {
	var out []any
	if c.Typing {
		out = append(out, TypingEvent{Type: "typing", Value: true})
	}

	elements := make([]WebElement, 0, len(c.Items))
	for _, card := range c.Items {
		buttons := make([]any, 0, len(card.Actions))
		for _, a := range card.Actions {
			buttons = append(buttons, Visit[any](a, webButtons{}))
		}
		elements = append(elements, WebElement{
			Title:    card.Title,
			Picture:  card.Image,
			Subtitle: card.Subtitle,
			Buttons:  buttons,
		})
	}
	return append(out, WebCarousel{Type: "carousel", Text: " ", Markdown: c.Markdown, Elements: elements})
}
