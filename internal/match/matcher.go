// Package match locates portal projects in a partner store. The stores share
// no foreign key; identity is case-insensitive title equality, which the
// matcher turns into an explicit, cacheable link with recorded ambiguity.
package match

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"permitport/api/internal/store"
)

// Link records one resolved portal-to-partner mapping, including the
// data-quality signals observed while resolving it.
type Link struct {
	PortalID     int64     `json:"portal_id"`
	PartnerID    int64     `json:"partner_id"`
	Title        string    `json:"title"`
	Ambiguous    bool      `json:"ambiguous,omitempty"`
	CandidateIDs []int64   `json:"candidate_ids,omitempty"`
	IDMismatch   bool      `json:"id_mismatch,omitempty"`
	MatchedAt    time.Time `json:"matched_at"`
}

// Directory is the partner-store read the matcher needs.
type Directory interface {
	FindProjectsByTitles(ctx context.Context, titles []string) ([]store.ProjectRef, error)
}

type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{logger: logger}
}

// Resolve maps each portal project to its partner row by normalized title.
// Zero matches skip the project; multiple matches pick the lowest partner id
// and warn with every candidate; a partner id that differs numerically from
// the portal id warns but still maps. Ambiguity is a data-quality signal, not
// an error, so Resolve only fails on transport problems.
func (m *Matcher) Resolve(ctx context.Context, portal []store.ProjectRef, partner Directory) (map[int64]int64, []Link, error) {
	titles := make([]string, 0, len(portal))
	for _, p := range portal {
		if t := strings.TrimSpace(p.Title); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return map[int64]int64{}, nil, nil
	}

	rows, err := partner.FindProjectsByTitles(ctx, titles)
	if err != nil {
		return nil, nil, fmt.Errorf("query partner titles: %w", err)
	}

	byTitle := make(map[string][]store.ProjectRef)
	for _, row := range rows {
		key := normalize(row.Title)
		byTitle[key] = append(byTitle[key], row)
	}

	now := time.Now().UTC()
	mapping := make(map[int64]int64, len(portal))
	var links []Link
	for _, p := range portal {
		candidates := byTitle[normalize(p.Title)]
		if len(candidates) == 0 {
			continue
		}

		link := Link{PortalID: p.ID, Title: p.Title, MatchedAt: now}
		if len(candidates) > 1 {
			link.Ambiguous = true
			link.CandidateIDs = make([]int64, len(candidates))
			for i, c := range candidates {
				link.CandidateIDs[i] = c.ID
			}
			sort.Slice(link.CandidateIDs, func(i, j int) bool {
				return link.CandidateIDs[i] < link.CandidateIDs[j]
			})
			m.logger.Warn("ambiguous partner match",
				"title", p.Title,
				"portal_id", p.ID,
				"candidate_ids", link.CandidateIDs)
			link.PartnerID = link.CandidateIDs[0]
		} else {
			link.PartnerID = candidates[0].ID
		}

		if link.PartnerID != p.ID {
			link.IDMismatch = true
			m.logger.Warn("partner id differs from portal id",
				"title", p.Title,
				"portal_id", p.ID,
				"partner_id", link.PartnerID)
		}

		mapping[p.ID] = link.PartnerID
		links = append(links, link)
	}
	return mapping, links, nil
}

func normalize(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
