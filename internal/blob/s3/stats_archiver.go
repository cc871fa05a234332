package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// StatsArchiver uploads run statistics snapshots. Each upload writes a
// timestamped object and overwrites latest.json next to it:
//
//	{prefix}/stats/2026/10/19/153000.json
//	{prefix}/stats/latest.json
type StatsArchiver struct {
	writer domain.BlobWriter
	prefix string
	now    func() time.Time
}

// NewStatsArchiver creates a StatsArchiver writing under prefix.
func NewStatsArchiver(writer domain.BlobWriter, prefix string) *StatsArchiver {
	return &StatsArchiver{writer: writer, prefix: prefix, now: time.Now}
}

// statsDocument is the uploaded JSON body.
type statsDocument struct {
	Stats      domain.RunStatistics `json:"stats"`
	Markets    int                  `json:"markets"`
	FeedState  string               `json:"feed_state,omitempty"`
	UploadedAt time.Time            `json:"uploaded_at"`
}

// Upload writes one snapshot and returns its timestamped key.
func (a *StatsArchiver) Upload(ctx context.Context, stats domain.RunStatistics, markets int, feedState string) (string, error) {
	at := a.now().UTC()
	body, err := json.Marshal(statsDocument{
		Stats:      stats,
		Markets:    markets,
		FeedState:  feedState,
		UploadedAt: at,
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal stats: %w", err)
	}

	key := statsPath(a.prefix, at)
	if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: stats upload: %w", err)
	}
	latest := path.Join(a.prefix, "stats", "latest.json")
	if err := a.writer.Put(ctx, latest, bytes.NewReader(body), "application/json"); err != nil {
		return key, fmt.Errorf("s3blob: stats latest upload: %w", err)
	}
	return key, nil
}

func statsPath(prefix string, at time.Time) string {
	return path.Join(prefix, "stats", at.Format("2006/01/02"), at.Format("150405")+".json")
}
