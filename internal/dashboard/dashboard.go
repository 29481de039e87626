// Package dashboard aggregates the numbers shown on a user's home screen.
package dashboard

import (
	"context"
	"math"

	"github.com/Napageneral/sdr/internal/bus"
	"github.com/Napageneral/sdr/internal/campaigns"
	"github.com/Napageneral/sdr/internal/contacts"
	"github.com/Napageneral/sdr/internal/db"
	"github.com/Napageneral/sdr/internal/sendlogs"
)

// DefaultActivityLimit is the number of recent events included in a Summary.
const DefaultActivityLimit = 10

// CampaignProgress is a campaign's share of contacts already messaged.
type CampaignProgress struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	TotalContacts int    `json:"total_contacts"`
	MessagesSent  int    `json:"messages_sent"`
	Progress      int    `json:"progress"`
}

type Summary struct {
	TotalContacts    int                `json:"total_contacts"`
	MessagesSent     int                `json:"messages_sent"`
	MessagesFailed   int                `json:"messages_failed"`
	ResponseRate     float64            `json:"response_rate"`
	Conversions      int                `json:"conversions"`
	ContactsByStatus map[string]int     `json:"contacts_by_status"`
	Campaigns        []CampaignProgress `json:"campaigns"`
	Activity         []bus.Event        `json:"activity"`
}

// Summarize builds the dashboard for userID.
func Summarize(ctx context.Context, q db.Querier, userID string) (Summary, error) {
	byStatus, err := contacts.CountByStatus(ctx, q, userID, "")
	if err != nil {
		return Summary{}, err
	}
	logCounts, err := sendlogs.CountByStatus(ctx, q, userID, "")
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		MessagesSent:     logCounts[sendlogs.StatusSent],
		MessagesFailed:   logCounts[sendlogs.StatusFailed],
		Conversions:      byStatus[contacts.StatusConverted],
		ContactsByStatus: byStatus,
		Campaigns:        []CampaignProgress{},
	}
	for _, n := range byStatus {
		s.TotalContacts += n
	}

	responded := byStatus[contacts.StatusReplied] + byStatus[contacts.StatusConverted]
	reached := byStatus[contacts.StatusContacted] + responded
	s.ResponseRate = ResponseRate(responded, reached)

	list, err := campaigns.List(ctx, q, userID, campaigns.Filter{})
	if err != nil {
		return Summary{}, err
	}
	for _, c := range list {
		if c.Status == campaigns.StatusCompleted {
			continue
		}
		s.Campaigns = append(s.Campaigns, CampaignProgress{
			ID:            c.ID,
			Name:          c.Name,
			Status:        c.Status,
			TotalContacts: c.TotalContacts,
			MessagesSent:  c.MessagesSent,
			Progress:      Progress(c.MessagesSent, c.TotalContacts),
		})
	}

	s.Activity, err = bus.Recent(ctx, q, userID, DefaultActivityLimit)
	if err != nil {
		return Summary{}, err
	}
	if s.Activity == nil {
		s.Activity = []bus.Event{}
	}
	return s, nil
}

// ResponseRate is responded/reached as a percentage with one decimal.
func ResponseRate(responded, reached int) float64 {
	if reached == 0 {
		return 0
	}
	return math.Round(float64(responded)*1000/float64(reached)) / 10
}

// Progress is sent/total as a whole percentage, capped at 100.
func Progress(sent, total int) int {
	if total <= 0 {
		return 0
	}
	p := sent * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}
