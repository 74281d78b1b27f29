package render

import (
	"fmt"
	"strings"
)

// Slack block kit payload.

type SlackMessage struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

type SlackBlock struct {
	Type      string         `json:"type"`
	Text      *SlackText     `json:"text,omitempty"`
	Accessory *SlackImage    `json:"accessory,omitempty"`
	Elements  []SlackElement `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type SlackImage struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
	AltText  string `json:"alt_text"`
}

type SlackElement struct {
	Type     string    `json:"type"`
	Text     SlackText `json:"text"`
	ActionID string    `json:"action_id"`
	Value    string    `json:"value,omitempty"`
	URL      string    `json:"url,omitempty"`
}

type slackButtons struct{ card, index int }

func (s slackButtons) id(kind string) string {
	return fmt.Sprintf("%s::%d::%d", kind, s.card, s.index)
}

func (s slackButtons) SaySomething(a SaySomething) SlackElement {
	return SlackElement{Type: "button", Text: plain(a.Label), ActionID: s.id("say_something"), Value: a.Text}
}

func (s slackButtons) OpenURL(a OpenURL) SlackElement {
	return SlackElement{Type: "button", Text: plain(a.Label), ActionID: s.id("open_url"), URL: a.URL}
}

func (s slackButtons) Postback(a Postback) SlackElement {
	return SlackElement{Type: "button", Text: plain(a.Label), ActionID: s.id("postback"), Value: a.Payload}
}

func plain(s string) SlackText {
	return SlackText{Type: "plain_text", Text: s}
}

func renderSlack(c Carousel) []any {
	msg := SlackMessage{Text: " ", Blocks: []SlackBlock{}}
	for i, card := range c.Items {
		text := "*" + card.Title + "*"
		if card.Subtitle != "" {
			text += "\n" + card.Subtitle
		}
		section := SlackBlock{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: text}}
		if card.Image != "" {
			section.Accessory = &SlackImage{Type: "image", ImageURL: card.Image, AltText: card.Title}
		}
		msg.Blocks = append(msg.Blocks, section)

		if len(card.Actions) > 0 {
			elements := make([]SlackElement, 0, len(card.Actions))
			for j, a := range card.Actions {
				elements = append(elements, Visit[SlackElement](a, slackButtons{card: i, index: j}))
			}
			msg.Blocks = append(msg.Blocks, SlackBlock{Type: "actions", Elements: elements})
		}
	}
	return []any{msg}
}

// Messenger generic template payload.

type MessengerMessage struct {
	Attachment MessengerAttachment `json:"attachment"`
}

type MessengerAttachment struct {
	Type    string           `json:"type"`
	Payload MessengerPayload `json:"payload"`
}

type MessengerPayload struct {
	TemplateType string             `json:"template_type"`
	Elements     []MessengerElement `json:"elements"`
}

type MessengerElement struct {
	Title    string            `json:"title"`
	ImageURL string            `json:"image_url,omitempty"`
	Subtitle string            `json:"subtitle,omitempty"`
	Buttons  []MessengerButton `json:"buttons,omitempty"`
}

type MessengerButton struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// SayPayloadPrefix marks postbacks that replay text as a user message.
const SayPayloadPrefix = "say::"

type messengerButtons struct{}

func (messengerButtons) SaySomething(a SaySomething) MessengerButton {
	return MessengerButton{Type: "postback", Title: a.Label, Payload: SayPayloadPrefix + a.Text}
}

func (messengerButtons) OpenURL(a OpenURL) MessengerButton {
	return MessengerButton{Type: "web_url", Title: a.Label, URL: a.URL}
}

func (messengerButtons) Postback(a Postback) MessengerButton {
	return MessengerButton{Type: "postback", Title: a.Label, Payload: a.Payload}
}

func renderMessenger(c Carousel) []any {
	elements := make([]MessengerElement, 0, len(c.Items))
	for _, card := range c.Items {
		el := MessengerElement{Title: card.Title, ImageURL: card.Image, Subtitle: card.Subtitle}
		for _, a := range card.Actions {
			el.Buttons = append(el.Buttons, Visit[MessengerButton](a, messengerButtons{}))
		}
		elements = append(elements, el)
	}
	return []any{MessengerMessage{Attachment: MessengerAttachment{
		Type:    "template",
		Payload: MessengerPayload{TemplateType: "generic", Elements: elements},
	}}}
}

// Teams hero card carousel.

type TeamsMessage struct {
	Type             string            `json:"type"`
	AttachmentLayout string            `json:"attachmentLayout"`
	Attachments      []TeamsAttachment `json:"attachments"`
}

type TeamsAttachment struct {
	ContentType string        `json:"contentType"`
	Content     TeamsHeroCard `json:"content"`
}

type TeamsHeroCard struct {
	Title    string        `json:"title"`
	Subtitle string        `json:"subtitle,omitempty"`
	Images   []TeamsImage  `json:"images,omitempty"`
	Buttons  []TeamsAction `json:"buttons"`
}

type TeamsImage struct {
	URL string `json:"url"`
}

type TeamsAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
	Text  string `json:"text,omitempty"`
}

type teamsButtons struct{}

func (teamsButtons) SaySomething(a SaySomething) TeamsAction {
	return TeamsAction{Type: "imBack", Title: a.Label, Value: a.Text}
}

func (teamsButtons) OpenURL(a OpenURL) TeamsAction {
	return TeamsAction{Type: "openUrl", Title: a.Label, Value: a.URL}
}

func (teamsButtons) Postback(a Postback) TeamsAction {
	return TeamsAction{Type: "messageBack", Title: a.Label, Value: a.Payload, Text: a.Payload}
}

func renderTeams(c Carousel) []any {
	msg := TeamsMessage{Type: "message", AttachmentLayout: "carousel", Attachments: []TeamsAttachment{}}
	for _, card := range c.Items {
		hero := TeamsHeroCard{Title: card.Title, Subtitle: card.Subtitle, Buttons: []TeamsAction{}}
		if card.Image != "" {
			hero.Images = []TeamsImage{{URL: card.Image}}
		}
		for _, a := range card.Actions {
			hero.Buttons = append(hero.Buttons, Visit[TeamsAction](a, teamsButtons{}))
		}
		msg.Attachments = append(msg.Attachments, TeamsAttachment{
			ContentType: "application/vnd.microsoft.card.hero",
			Content:     hero,
		})
	}
	return []any{msg}
}

// Twilio plain text messages, one per card.

type TwilioMessage struct {
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type twilioLines struct{}

func (twilioLines) SaySomething(a SaySomething) string { return a.Label }
func (twilioLines) OpenURL(a OpenURL) string           { return a.Label + " : " + a.URL }
func (twilioLines) Postback(a Postback) string         { return a.Label }

func renderTwilio(c Carousel) []any {
	out := make([]any, 0, len(c.Items))
	for _, card := range c.Items {
		var b strings.Builder
		b.WriteString("*" + card.Title + "*")
		if card.Subtitle != "" {
			b.WriteString("\n" + card.Subtitle)
		}
		for i, a := range card.Actions {
			fmt.Fprintf(&b, "\n%d. %s", i+1, Visit[string](a, twilioLines{}))
		}
		out = append(out, TwilioMessage{Body: b.String(), MediaURL: card.Image})
	}
	return out
}
