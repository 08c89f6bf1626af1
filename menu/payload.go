package menu

import (
	"errors"
	"strings"
)

// ErrBadPayload is returned for callback data that matches no known shape.
var ErrBadPayload = errors.New("malformed callback payload")

const (
	wavePrefix   = "wave_"
	memberPrefix = "member_"
	waveSep      = " wave_"
	backMember   = "back"
	noGroup      = "none"
)

// Kind is what a button press asks for.
type Kind int

const (
	KindGroup Kind = iota
	KindToggle
	KindBack
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "wave_request"
	case KindToggle:
		return "member_request"
	case KindBack:
		return "back_request"
	default:
		return "unknown"
	}
}

// Action is a decoded callback payload.
type Action struct {
	Kind      Kind
	Group     string
	FirstName string
	LastName  string
}

// WavePayload opens a group's member list.
func WavePayload(group string) string { return wavePrefix + group }

// MemberPayload toggles a member and re-renders group.
func MemberPayload(first, last, group string) string {
	return memberPrefix + first + " " + last + waveSep + group
}

// BackPayload returns to the root menu.
func BackPayload() string { return memberPrefix + backMember + waveSep + noGroup }

// ParsePayload decodes callback data:
//
//	wave_<group>
//	member_<first> <last> wave_<group>
//	member_back wave_none
//
// The member name splits at its first space, so last names may contain spaces.
func ParsePayload(data string) (Action, error) {
	switch {
	case strings.HasPrefix(data, wavePrefix):
		group := strings.TrimPrefix(data, wavePrefix)
		if group == "" {
			return Action{}, ErrBadPayload
		}
		return Action{Kind: KindGroup, Group: group}, nil

	case strings.HasPrefix(data, memberPrefix):
		member, group, ok := strings.Cut(strings.TrimPrefix(data, memberPrefix), waveSep)
		if !ok {
			return Action{}, ErrBadPayload
		}
		if member == backMember {
			return Action{Kind: KindBack}, nil
		}
		first, last, ok := strings.Cut(member, " ")
		if !ok || first == "" || last == "" || group == "" {
			return Action{}, ErrBadPayload
		}
		return Action{Kind: KindToggle, Group: group, FirstName: first, LastName: last}, nil
	}
	return Action{}, ErrBadPayload
}
