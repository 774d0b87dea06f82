package data

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type EmailTemplate struct {
	Key      string
	Name     string
	Type     string
	Subject  string
	Content  string
	IsActive bool
}

const upsertEmailTemplateSQL = `insert into email_templates(key, name, type, subject, content, is_active)
values($1, $2, $3, $4, $5, $6)
on conflict (key) do update set
  name=excluded.name,
  type=excluded.type,
  subject=excluded.subject,
  content=excluded.content,
  is_active=excluded.is_active`

// UpsertEmailTemplates writes all templates in a single batch.
func UpsertEmailTemplates(ctx context.Context, db interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}, templates []EmailTemplate) error {
	batch := &pgx.Batch{}
	for _, t := range templates {
		batch.Queue(upsertEmailTemplateSQL, t.Key, t.Name, t.Type, t.Subject, t.Content, t.IsActive)
	}

	br := db.SendBatch(ctx, batch)
	for range templates {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}

	return br.Close()
}

func SelectEmailTemplates(ctx context.Context, db Queryer) ([]EmailTemplate, error) {
	rows, err := db.Query(ctx, `select key, name, type, subject, content, is_active from email_templates order by key`)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (EmailTemplate, error) {
		var t EmailTemplate
		err := row.Scan(&t.Key, &t.Name, &t.Type, &t.Subject, &t.Content, &t.IsActive)
		return t, err
	})
}
