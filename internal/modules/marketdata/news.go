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

// NewsRepository handles news_articles table operations.
type NewsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewNewsRepository creates a new news repository.
func NewNewsRepository(db *sql.DB, log zerolog.Logger) *NewsRepository {
	return &NewsRepository{
		db:  db,
		log: log.With().Str("repo", "news").Logger(),
	}
}

// InsertBatch writes articles in one transaction. Articles whose URL is
// already stored are skipped (unique index on url). Returns the number of
// rows actually written.
func (r *NewsRepository) InsertBatch(articles []domain.NewsArticle) (int64, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	var written int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO news_articles
			(symbol, title, summary, content, publisher, url, publish_date, sentiment, quality, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare news insert: %w", err)
		}
		defer stmt.Close()

		for i, a := range articles {
			if a.PublishDate.IsZero() {
				return fmt.Errorf("record %d: missing publish date", i)
			}
			var url interface{}
			if a.URL != "" {
				url = a.URL
			}
			res, err := stmt.Exec(
				a.Symbol, a.Title, a.Summary, a.Content, a.Publisher, url,
				dateparse.FormatTime(a.PublishDate), a.Sentiment, a.Quality,
				dateparse.FormatTime(a.CreatedAt),
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

// Recent returns articles for a symbol published on or after since,
// newest first.
func (r *NewsRepository) Recent(symbol string, since time.Time) ([]domain.NewsArticle, error) {
	rows, err := r.db.Query(`SELECT id, symbol, title, summary, content, publisher,
		COALESCE(url, ''), publish_date, sentiment, quality, created_at
		FROM news_articles
		WHERE symbol = ? AND publish_date >= ?
		ORDER BY publish_date DESC`,
		symbol, dateparse.FormatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query news for %s: %w", symbol, err)
	}
	defer rows.Close()

	var articles []domain.NewsArticle
	for rows.Next() {
		var a domain.NewsArticle
		var publishDate, createdAt string
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Title, &a.Summary, &a.Content,
			&a.Publisher, &a.URL, &publishDate, &a.Sentiment, &a.Quality, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan news article: %w", err)
		}
		if parsed, ok := dateparse.ParseLogged(publishDate, r.log); ok {
			a.PublishDate = parsed
		}
		if parsed, ok := dateparse.ParseLogged(createdAt, r.log); ok {
			a.CreatedAt = parsed
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// LatestPublishDate returns the newest publish date for a symbol, nil when
// the symbol has no articles.
func (r *NewsRepository) LatestPublishDate(symbol string) (*time.Time, error) {
	var value sql.NullString
	err := r.db.QueryRow(`SELECT MAX(publish_date) FROM news_articles WHERE symbol = ?`, symbol).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest news date for %s: %w", symbol, err)
	}
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := dateparse.Parse(value.String)
	if err != nil {
		return nil, fmt.Errorf("stored publish_date: %w", err)
	}
	return &parsed, nil
}

// CountSince returns the number of articles for a symbol published on or
// after since.
func (r *NewsRepository) CountSince(symbol string, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM news_articles WHERE symbol = ? AND publish_date >= ?`,
		symbol, dateparse.FormatTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count news for %s: %w", symbol, err)
	}
	return count, nil
}
