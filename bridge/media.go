package bridge

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// defaultImageTypes is the upload allow-list applied when no override is
// configured. Matches the platform's accepted photo formats.
var defaultImageTypes = []string{"jpeg", "bmp", "png", "gif", "tiff"}

func (s *Service) supportedType(declared string) bool {
	types := s.ImageTypes
	if len(types) == 0 {
		types = defaultImageTypes
	}
	declared = strings.ToLower(declared)
	for _, t := range types {
		if declared == t {
			return true
		}
	}
	return false
}

// fetchImages downloads every supported attachment concurrently. Unsupported
// types are skipped silently; a single failed download fails the whole set so
// a post never goes out with a partial gallery.
func (s *Service) fetchImages(ctx context.Context, ev InboundEvent) ([]Media, error) {
	var wanted []Attachment
	for _, att := range ev.Attachments {
		if s.supportedType(att.DeclaredType) {
			wanted = append(wanted, att)
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	media := make([]Media, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	for i, att := range wanted {
		g.Go(func() error {
			data, err := s.Fetcher.Fetch(gctx, ev.WorkspaceID, att)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", att.Name, err)
			}
			media[i] = Media{
				Filename:    att.Name,
				ContentType: "image/" + strings.ToLower(att.DeclaredType),
				Data:        data,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return media, nil
}

// fetchFirstImage downloads the first supported attachment only; comments
// accept at most one image.
func (s *Service) fetchFirstImage(ctx context.Context, ev InboundEvent) (*Media, error) {
	for _, att := range ev.Attachments {
		if !s.supportedType(att.DeclaredType) {
			continue
		}
		data, err := s.Fetcher.Fetch(ctx, ev.WorkspaceID, att)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", att.Name, err)
		}
		return &Media{
			Filename:    att.Name,
			ContentType: "image/" + strings.ToLower(att.DeclaredType),
			Data:        data,
		}, nil
	}
	return nil, nil
}
