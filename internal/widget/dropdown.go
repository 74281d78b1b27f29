package widget

import "errors"

// ErrNoOption is returned when a selection does not match any option.
var ErrNoOption = errors.New("no such option")

// Option is one dropdown entry.
type Option[T any] struct {
	Label string
	Value T
}

// ConfirmFunc decides whether the selection may move from current to next.
// current is nil when nothing is selected yet.
type ConfirmFunc[T any] func(current *Option[T], next Option[T]) bool

// Dropdown is a single-select list whose changes can require confirmation.
type Dropdown[T any] struct {
	options  []Option[T]
	selected int
	confirm  ConfirmFunc[T]
	onChange func(Option[T])
}

// NewDropdown creates a dropdown with nothing selected.
func NewDropdown[T any](options []Option[T]) *Dropdown[T] {
	return &Dropdown[T]{options: options, selected: -1}
}

// WithConfirm gates every change behind fn.
func (d *Dropdown[T]) WithConfirm(fn ConfirmFunc[T]) *Dropdown[T] {
	d.confirm = fn
	return d
}

// OnChange registers fn to run after a selection change.
func (d *Dropdown[T]) OnChange(fn func(Option[T])) *Dropdown[T] {
	d.onChange = fn
	return d
}

// Options returns the entries in display order.
func (d *Dropdown[T]) Options() []Option[T] {
	return d.options
}

// Selected returns the current selection.
func (d *Dropdown[T]) Selected() (Option[T], bool) {
	if d.selected < 0 {
		var zero Option[T]
		return zero, false
	}
	return d.options[d.selected], true
}

// Select picks the option at index. It reports false when the confirmation refused the change.
func (d *Dropdown[T]) Select(index int) (bool, error) {
	if index < 0 || index >= len(d.options) {
		return false, ErrNoOption
	}
	if index == d.selected {
		return true, nil
	}

	next := d.options[index]
	if d.confirm != nil {
		var current *Option[T]
		if d.selected >= 0 {
			current = &d.options[d.selected]
		}
		if !d.confirm(current, next) {
			return false, nil
		}
	}

	d.selected = index
	if d.onChange != nil {
		d.onChange(next)
	}
	return true, nil
}

// SelectLabel picks the first option labelled label.
func (d *Dropdown[T]) SelectLabel(label string) (bool, error) {
	for i, o := range d.options {
		if o.Label == label {
			return d.Select(i)
		}
	}
	return false, ErrNoOption
}
