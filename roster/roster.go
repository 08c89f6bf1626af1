// Package roster loads the tracked creator roster from its JSON seed file, seeds it into the
// store, and provides the fixed debut order used to sort groups in the menus.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/DanArmor/melatonin-bot/db"
)

// ErrUnknownGroup is returned when a group name has no place in the debut order.
var ErrUnknownGroup = errors.New("unknown group")

// Member is one roster entry as it appears in the seed file.
type Member struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Emoji     string `json:"emoji"`
	ChannelID string `json:"youtube_channel_id"`
	Handle    string `json:"youtube_handle"`
}

// Wave is a named group of members ("wave" is the Nijisanji EN term for a debut cohort).
type Wave struct {
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

type seedFile struct {
	Waves []Wave `json:"waves"`
}

// Load reads and validates the seed file at path.
func Load(path string) ([]Wave, error) {
	b, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(b)
}

// MaxCallbackData is Telegram's limit on inline button callback data, in bytes.
const MaxCallbackData = 64

// memberCallbackLen is the byte length of the toggle button payload
// "member_<first> <last> wave_<wave>".
func memberCallbackLen(first, last, wave string) int {
	return len("member_") + len(first) + 1 + len(last) + len(" wave_") + len(wave)
}

// Parse decodes a seed document. Wave names must be unique and non-empty, member names
// must be present, and a first name must not contain a space (callback payloads split
// the name at the first space). Every member's toggle payload must fit MaxCallbackData.
func Parse(b []byte) ([]Wave, error) {
	var f seedFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	seen := make(map[string]bool, len(f.Waves))
	for _, w := range f.Waves {
		if strings.TrimSpace(w.Name) == "" {
			return nil, errors.New("roster: wave with empty name")
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("roster: duplicate wave %q", w.Name)
		}
		seen[w.Name] = true
		for i, m := range w.Members {
			if m.FirstName == "" || m.LastName == "" {
				return nil, fmt.Errorf("roster: wave %q member %d has an empty name", w.Name, i)
			}
			if strings.Contains(m.FirstName, " ") {
				return nil, fmt.Errorf("roster: wave %q member %q: first name must not contain spaces", w.Name, m.FirstName)
			}
			if n := memberCallbackLen(m.FirstName, m.LastName, w.Name); n > MaxCallbackData {
				return nil, fmt.Errorf("roster: wave %q member %q %q: callback data is %d bytes, limit %d", w.Name, m.FirstName, m.LastName, n, MaxCallbackData)
			}
		}
	}
	return f.Waves, nil
}

// Order ranks groups for display. Lower ranks come first.
type Order map[string]int

// DefaultOrder is the Nijisanji EN debut order.
func DefaultOrder() Order {
	return Order{
		"LazuLight": 1,
		"OBSYDIA":   2,
		"Ethyria":   3,
		"Luxiem":    4,
		"Noctyx":    5,
		"ILUNA":     6,
		"XSOLEIL":   7,
		"Krisis":    8,
	}
}

// OrderFromWaves ranks groups by their position in the seed file, so a roster edit
// needs no code change.
func OrderFromWaves(waves []Wave) Order {
	o := make(Order, len(waves))
	for i, w := range waves {
		o[w.Name] = i + 1
	}
	return o
}

// Rank returns the position of group or ErrUnknownGroup.
func (o Order) Rank(group string) (int, error) {
	r, ok := o[group]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return r, nil
}

// Sort orders group counts in place. Any group missing from the order fails the whole
// sort and leaves the slice untouched.
func (o Order) Sort(groups []db.GroupCount) error {
	for _, g := range groups {
		if _, err := o.Rank(g.Group); err != nil {
			return err
		}
	}
	slices.SortStableFunc(groups, func(a, b db.GroupCount) int { return o[a.Group] - o[b.Group] })
	return nil
}

// Seeder is the store surface Seed writes through.
type Seeder interface {
	InsertCreatorIfMissing(ctx context.Context, c db.Creator) (bool, error)
}

// ChannelResolver turns a channel handle into a channel id.
type ChannelResolver interface {
	ResolveChannelID(ctx context.Context, handle string) (string, error)
}

// SeedReport summarizes a Seed run.
type SeedReport struct {
	Inserted   int
	Existing   int
	Resolved   int
	Unresolved int
}

// Seed inserts every roster member that is not yet stored. Members without a channel id
// are resolved through resolver when one is given; a failed lookup is logged and the
// member is stored without a channel id (it simply never matches a stream).
func Seed(ctx context.Context, s Seeder, waves []Wave, resolver ChannelResolver) (SeedReport, error) {
	var rep SeedReport
	for _, w := range waves {
		for _, m := range w.Members {
			c := db.Creator{
				FirstName:         m.FirstName,
				LastName:          m.LastName,
				Emoji:             m.Emoji,
				GroupName:         w.Name,
				ExternalHandle:    m.Handle,
				ExternalChannelID: m.ChannelID,
			}
			if c.ExternalChannelID == "" && c.ExternalHandle != "" && resolver != nil {
				id, err := resolver.ResolveChannelID(ctx, c.ExternalHandle)
				if err != nil {
					slog.Warn("channel handle not resolved", slog.String("component", "roster"), slog.String("creator", c.DisplayName()), slog.String("handle", c.ExternalHandle), slog.Any("err", err))
				} else {
					c.ExternalChannelID = id
					rep.Resolved++
				}
			}
			if c.ExternalChannelID == "" {
				rep.Unresolved++
			}
			inserted, err := s.InsertCreatorIfMissing(ctx, c)
			if err != nil {
				return rep, err
			}
			if inserted {
				rep.Inserted++
			} else {
				rep.Existing++
			}
		}
	}
	slog.Info("roster seeded", slog.String("component", "roster"), slog.Int("inserted", rep.Inserted), slog.Int("existing", rep.Existing), slog.Int("resolved", rep.Resolved), slog.Int("unresolved", rep.Unresolved))
	return rep, nil
}
