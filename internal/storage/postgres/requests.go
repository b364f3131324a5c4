package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundscope/internal/model"
	"fundscope/internal/storage"
)

type requestStore struct {
	db querier
}

const requestColumns = `id, status, platform, platform_id, link, owner, repo, number, title, created_at`

func scanRequest(row pgx.Row) (model.Request, error) {
	var (
		r        model.Request
		status   string
		platform string
	)
	err := row.Scan(
		&r.ID, &status, &platform,
		&r.IssueInformation.PlatformID,
		&r.IssueInformation.Link,
		&r.IssueInformation.Owner,
		&r.IssueInformation.Repo,
		&r.IssueInformation.Number,
		&r.IssueInformation.Title,
		&r.CreatedAt,
	)
	if err != nil {
		return model.Request{}, err
	}
	r.Status = model.RequestStatus(status)
	r.IssueInformation.Platform = model.Platform(platform)
	return r, nil
}

func (s requestStore) FindByID(ctx context.Context, id int64) (model.Request, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	r, err := scanRequest(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.Request{}, false, nil
		}
		return model.Request{}, false, fmt.Errorf("get request by id: %w", err)
	}
	return r, true, nil
}

func (s requestStore) FindByIssue(ctx context.Context, platform model.Platform, platformID string) (model.Request, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE platform = $1 AND platform_id = $2
	`, string(platform), platformID)
	r, err := scanRequest(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.Request{}, false, nil
		}
		return model.Request{}, false, fmt.Errorf("get request by issue: %w", err)
	}
	return r, true, nil
}

func (s requestStore) Save(ctx context.Context, r model.Request) (model.Request, error) {
	info := r.IssueInformation
	if info.Platform == "" || info.PlatformID == "" {
		return model.Request{}, storage.ErrInvalidInput
	}

	var row pgx.Row
	if r.ID == 0 {
		row = s.db.QueryRow(ctx, `
			INSERT INTO requests (status, platform, platform_id, link, owner, repo, number, title)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+requestColumns,
			string(r.Status), string(info.Platform), info.PlatformID,
			info.Link, info.Owner, info.Repo, info.Number, info.Title,
		)
	} else {
		row = s.db.QueryRow(ctx, `
			INSERT INTO requests (id, status, platform, platform_id, link, owner, repo, number, title)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				platform = EXCLUDED.platform,
				platform_id = EXCLUDED.platform_id,
				link = EXCLUDED.link,
				owner = EXCLUDED.owner,
				repo = EXCLUDED.repo,
				number = EXCLUDED.number,
				title = EXCLUDED.title
			RETURNING `+requestColumns,
			r.ID, string(r.Status), string(info.Platform), info.PlatformID,
			info.Link, info.Owner, info.Repo, info.Number, info.Title,
		)
	}

	saved, err := scanRequest(row)
	if err != nil {
		if isDuplicateKeyError(err) {
			return model.Request{}, storage.ErrDuplicateKey
		}
		return model.Request{}, fmt.Errorf("save request: %w", err)
	}
	return saved, nil
}
