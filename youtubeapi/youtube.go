// Package youtubeapi wraps the YouTube Data API for the one lookup the roster needs:
// resolving a channel handle (@name) to the channel id that stream listings carry.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrChannelNotFound is returned when a handle resolves to no channel.
var ErrChannelNotFound = errors.New("channel not found")

type Service struct {
	yt *yt.Service
}

// New builds an API-key authenticated client. Extra options are appended, which is how
// tests point the client at a local server.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key empty")
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Service{yt: svc}, nil
}

// ResolveChannelID looks up the channel id for handle. The leading @ is optional.
func (s *Service) ResolveChannelID(ctx context.Context, handle string) (string, error) {
	h := strings.TrimSpace(handle)
	if h == "" {
		return "", errors.New("handle empty")
	}
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	resp, err := s.yt.Channels.List([]string{"id"}).ForHandle(h).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube channels.list %s: %w", h, err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == "" {
		return "", fmt.Errorf("%w: %s", ErrChannelNotFound, h)
	}
	return resp.Items[0].Id, nil
}
