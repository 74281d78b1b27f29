// Package render turns carousel definitions into channel-specific message payloads.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownAction is returned when a card action names an unsupported kind.
var ErrUnknownAction = errors.New("unknown action kind")

// Action kinds as they appear in carousel definitions.
const (
	KindSaySomething = "Say something"
	KindOpenURL      = "Open URL"
	KindPostback     = "Postback"
)

// Action is a card button. The set of implementations is closed:
// SaySomething, OpenURL and Postback.
type Action interface {
	Title() string
	accept(d dispatch)
}

// ActionVisitor maps every action kind to a T.
// Adding a kind adds a method here, so every renderer must handle it to compile.
type ActionVisitor[T any] interface {
	SaySomething(a SaySomething) T
	OpenURL(a OpenURL) T
	Postback(a Postback) T
}

// Visit applies v to a.
func Visit[T any](a Action, v ActionVisitor[T]) T {
	var out T
	a.accept(dispatch{
		say:      func(x SaySomething) { out = v.SaySomething(x) },
		openURL:  func(x OpenURL) { out = v.OpenURL(x) },
		postback: func(x Postback) { out = v.Postback(x) },
	})
	return out
}

type dispatch struct {
	say      func(SaySomething)
	openURL  func(OpenURL)
	postback func(Postback)
}

// SaySomething makes the bot receive Text as if the user typed it.
type SaySomething struct {
	Label string
	Text  string
}

// OpenURL opens URL in the user's browser.
type OpenURL struct {
	Label string
	URL   string
}

// Postback sends Payload back to the bot without showing it.
type Postback struct {
	Label   string
	Payload string
}

func (a SaySomething) Title() string { return a.Label }
func (a OpenURL) Title() string      { return a.Label }
func (a Postback) Title() string     { return a.Label }

func (a SaySomething) accept(d dispatch) { d.say(a) }
func (a OpenURL) accept(d dispatch)      { d.openURL(a) }
func (a Postback) accept(d dispatch)     { d.postback(a) }

// wireAction is the JSON form of an action.
type wireAction struct {
	Action  string `json:"action"`
	Title   string `json:"title"`
	Text    string `json:"text,omitempty"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// ParseAction builds the variant named by kind.
func ParseAction(kind, title, text, url, payload string) (Action, error) {
	switch kind {
	case KindSaySomething:
		return SaySomething{Label: title, Text: text}, nil
	case KindOpenURL:
		return OpenURL{Label: title, URL: url}, nil
	case KindPostback:
		return Postback{Label: title, Payload: payload}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, kind)
	}
}

type toWire struct{}

func (toWire) SaySomething(a SaySomething) wireAction {
	return wireAction{Action: KindSaySomething, Title: a.Label, Text: a.Text}
}

func (toWire) OpenURL(a OpenURL) wireAction {
	return wireAction{Action: KindOpenURL, Title: a.Label, URL: a.URL}
}

func (toWire) Postback(a Postback) wireAction {
	return wireAction{Action: KindPostback, Title: a.Label, Payload: a.Payload}
}

// Actions is a list of card actions with a JSON form of
// [{action, title, text?, url?, payload?}].
type Actions []Action

// MarshalJSON encodes every action with its kind label.
func (as Actions) MarshalJSON() ([]byte, error) {
	out := make([]wireAction, 0, len(as))
	for _, a := range as {
		out = append(out, Visit[wireAction](a, toWire{}))
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes actions and fails on the first unknown kind.
func (as *Actions) UnmarshalJSON(data []byte) error {
	var raw []wireAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Actions, 0, len(raw))
	for i, w := range raw {
		a, err := ParseAction(w.Action, w.Title, w.Text, w.URL, w.Payload)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	*as = out
	return nil
}
