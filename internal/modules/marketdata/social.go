package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/dateparse"
	"github.com/aristath/equityscope/internal/domain"
)

// SocialRepository handles reddit_posts table operations.
type SocialRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSocialRepository creates a new social repository.
func NewSocialRepository(db *sql.DB, log zerolog.Logger) *SocialRepository {
	return &SocialRepository{
		db:  db,
		log: log.With().Str("repo", "social").Logger(),
	}
}

// InsertBatch writes posts in one transaction, skipping posts whose external
// id is already stored. Returns the number of rows actually written.
func (r *SocialRepository) InsertBatch(posts []domain.SocialPost) (int64, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	var written int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO reddit_posts
			(external_id, symbol, channel, author, title, text, score, upvote_ratio,
			 num_comments, created_utc, url, sentiment, quality)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare social insert: %w", err)
		}
		defer stmt.Close()

		for i, p := range posts {
			if p.ExternalID == "" {
				return fmt.Errorf("record %d: missing external id", i)
			}
			res, err := stmt.Exec(
				p.ExternalID, p.Symbol, p.Channel, p.Author, p.Title, p.Text,
				p.Score, p.UpvoteRatio, p.NumComments,
				dateparse.FormatTime(p.CreatedUTC), p.URL, p.Sentiment, p.Quality,
			)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				written += n
			}
		}
		return nil
	})
	return written, err
}

// Recent returns posts for a symbol created on or after since, newest first.
func (r *SocialRepository) Recent(symbol string, since time.Time) ([]domain.SocialPost, error) {
	rows, err := r.db.Query(`SELECT external_id, symbol, channel, author, title, text,
		score, upvote_ratio, num_comments, created_utc, url, sentiment, quality
		FROM reddit_posts
		WHERE symbol = ? AND created_utc >= ?
		ORDER BY created_utc DESC`,
		symbol, dateparse.FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query social posts for %s: %w", symbol, err)
	}
	defer rows.Close()

	var posts []domain.SocialPost
	for rows.Next() {
		var p domain.SocialPost
		var createdUTC string
		if err := rows.Scan(&p.ExternalID, &p.Symbol, &p.Channel, &p.Author, &p.Title,
			&p.Text, &p.Score, &p.UpvoteRatio, &p.NumComments, &createdUTC,
			&p.URL, &p.Sentiment, &p.Quality); err != nil {
			return nil, fmt.Errorf("failed to scan social post: %w", err)
		}
		if parsed, ok := dateparse.ParseLogged(createdUTC, r.log); ok {
			p.CreatedUTC = parsed
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// LatestCreated returns the newest post timestamp for a symbol, nil when
// the symbol has no posts.
func (r *SocialRepository) LatestCreated(symbol string) (*time.Time, error) {
	var value sql.NullString
	err := r.db.QueryRow(`SELECT MAX(created_utc) FROM reddit_posts WHERE symbol = ?`, symbol).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest social date for %s: %w", symbol, err)
	}
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := dateparse.Parse(value.String)
	if err != nil {
		return nil, fmt.Errorf("stored created_utc: %w", err)
	}
	return &parsed, nil
}

// CountSince returns the number of posts for a symbol created on or after
// since.
func (r *SocialRepository) CountSince(symbol string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM reddit_posts WHERE symbol = ? AND created_utc >= ?`,
		symbol, dateparse.FormatTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count social posts for %s: %w", symbol, err)
	}
	return count, nil
}
