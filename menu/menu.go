// Package menu implements the two-level subscription menu: a root list of groups with
// per-user counts, and a per-group member list whose buttons toggle subscriptions.
// Menu state lives entirely in the callback payloads; nothing is kept server-side.
package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/roster"
	"github.com/DanArmor/melatonin-bot/telemetry"
)

// ErrUnknownCreator is returned when a toggle names someone outside the roster.
var ErrUnknownCreator = errors.New("creator not in roster")

const (
	GreetingText    = "Здравствуйте, данный бот напоминает о стримах выбранных вами втуберов Nijisanji EN за 15-20 минут до начала стрима. Выберите волну"
	RootText        = "Данный бот напоминает о стримах выбранных вами втуберов Nijisanji EN за 15-20 минут до начала стрима. Выберите волну"
	GroupText       = "Выберите втубера"
	BackLabel       = "Назад"
	FailureText     = "Извините, возникла ошибка. Попробуйте позже отправить команду /waves или /start"
	SubscribedBadge = "✅"
)

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Screen is a message text plus its keyboard, one slice per row.
type Screen struct {
	Text     string
	Keyboard [][]Button
}

// FailureScreen is shown when an interaction cannot be completed.
func FailureScreen() Screen { return Screen{Text: FailureText} }

// Store is the data the menus read and the toggle writes.
type Store interface {
	GroupCounts(ctx context.Context, userID int64) ([]db.GroupCount, error)
	GroupMembers(ctx context.Context, userID int64, group string) ([]db.MemberState, error)
	CreatorByName(ctx context.Context, first, last string) (db.Creator, error)
	ToggleSubscription(ctx context.Context, userID, creatorID int64) (bool, error)
}

type Machine struct {
	store Store
	order roster.Order
}

// New builds the menu machine over store, sorting groups by order.
func New(store Store, order roster.Order) *Machine {
	telemetry.Init()
	return &Machine{store: store, order: order}
}

// Root renders one button per group, labelled "<group> (<subscribed>/<total>)".
// A group missing from the order fails the render.
func (m *Machine) Root(ctx context.Context, userID int64) (Screen, error) {
	counts, err := m.store.GroupCounts(ctx, userID)
	if err != nil {
		return Screen{}, err
	}
	if err := m.order.Sort(counts); err != nil {
		return Screen{}, err
	}
	kb := make([][]Button, 0, len(counts))
	for _, g := range counts {
		kb = append(kb, []Button{{
			Label: fmt.Sprintf("%s (%d/%d)", g.Group, g.Subscribed, g.Total),
			Data:  WavePayload(g.Group),
		}})
	}
	return Screen{Text: RootText, Keyboard: kb}, nil
}

// MemberLabel is "<badge><first> <last> <emoji>", the badge shown only when subscribed.
func MemberLabel(ms db.MemberState) string {
	badge := ""
	if ms.Subscribed {
		badge = SubscribedBadge
	}
	return badge + ms.FirstName + " " + ms.LastName + " " + ms.Emoji
}

// Group renders the member list for group with a trailing back button.
func (m *Machine) Group(ctx context.Context, userID int64, group string) (Screen, error) {
	if _, err := m.order.Rank(group); err != nil {
		return Screen{}, err
	}
	members, err := m.store.GroupMembers(ctx, userID, group)
	if err != nil {
		return Screen{}, err
	}
	kb := make([][]Button, 0, len(members)+1)
	for _, ms := range members {
		kb = append(kb, []Button{{
			Label: MemberLabel(ms),
			Data:  MemberPayload(ms.FirstName, ms.LastName, group),
		}})
	}
	kb = append(kb, []Button{{Label: BackLabel, Data: BackPayload()}})
	return Screen{Text: GroupText, Keyboard: kb}, nil
}

// Transition is the outcome of a button press. ReplaceText is false when only the
// keyboard changes (a toggle keeps the member list text).
type Transition struct {
	Action      Action
	Screen      Screen
	ReplaceText bool
	Subscribed  bool
}

// Handle decodes payload and performs the transition for userID.
func (m *Machine) Handle(ctx context.Context, userID int64, payload string) (Transition, error) {
	act, err := ParsePayload(payload)
	if err != nil {
		return Transition{}, fmt.Errorf("%w: %q", err, payload)
	}
	ctx, span := telemetry.StartSpan(ctx, "menu", "handle", telemetry.MenuActionAttr(act.Kind.String()))
	defer span.End()

	tr := Transition{Action: act}
	switch act.Kind {
	case KindGroup:
		tr.Screen, err = m.Group(ctx, userID, act.Group)
		tr.ReplaceText = true
	case KindBack:
		tr.Screen, err = m.Root(ctx, userID)
		tr.ReplaceText = true
	case KindToggle:
		// an unknown group must fail before the subscription changes
		if _, err = m.order.Rank(act.Group); err != nil {
			break
		}
		tr.Subscribed, err = m.toggle(ctx, userID, act)
		if err == nil {
			tr.Screen, err = m.Group(ctx, userID, act.Group)
		}
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return Transition{}, err
	}
	return tr, nil
}

func (m *Machine) toggle(ctx context.Context, userID int64, act Action) (bool, error) {
	c, err := m.store.CreatorByName(ctx, act.FirstName, act.LastName)
	if errors.Is(err, db.ErrNotFound) {
		return false, fmt.Errorf("%w: %s %s", ErrUnknownCreator, act.FirstName, act.LastName)
	}
	if err != nil {
		return false, err
	}
	subscribed, err := m.store.ToggleSubscription(ctx, userID, c.ID)
	if err != nil {
		return false, err
	}
	telemetry.RecordToggle(subscribed)
	return subscribed, nil
}
