// Package style tracks the visit style of each station and turns the
// current state into a shareable link.
package style

import "fmt"

// Style is a visit category. Zero is the default and is never stored.
type Style int

const (
	Unvisited Style = iota
	Style1
	Style2
	Style3
	Style4
)

// NumStyles is the size of the style cycle
const NumStyles = 5

// Styles lists every style in cycle order
var Styles = []Style{Unvisited, Style1, Style2, Style3, Style4}

// Icon describes the marker drawn for a style
type Icon struct {
	URL string `json:"url"`
}

const iconBase = "https://maps.google.com/mapfiles/ms/icons/"

var icons = [NumStyles]Icon{
	{URL: iconBase + "red-dot.png"},
	{URL: iconBase + "blue-dot.png"},
	{URL: iconBase + "purple-dot.png"},
	{URL: iconBase + "yellow-dot.png"},
	{URL: iconBase + "green-dot.png"},
}

// Icon returns the marker icon for s
func (s Style) Icon() Icon {
	if !s.Valid() {
		return icons[Unvisited]
	}
	return icons[s]
}

// Valid reports whether s is within 0..4
func (s Style) Valid() bool {
	return s >= Unvisited && s < NumStyles
}

// Next returns the following style in the cycle
func (s Style) Next() Style {
	return (s + 1) % NumStyles
}

func (s Style) String() string {
	return fmt.Sprintf("%d", int(s))
}

// Parse reads a stored value. Anything but "1".."4" is Unvisited.
func Parse(value string) Style {
	if len(value) != 1 || value[0] < '1' || value[0] > '4' {
		return Unvisited
	}
	return Style(value[0] - '0')
}
