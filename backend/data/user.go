package data

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID               pgtype.Int4
	Name             pgtype.Text
	PasswordDigest   []byte
	PasswordSalt     []byte
	Email            pgtype.Text
	SubscriptionTier pgtype.Text
}

func selectUser(ctx context.Context, db Queryer, sql string, arg interface{}) (*User, error) {
	var row User
	err := db.QueryRow(ctx, sql, arg).Scan(
		&row.ID,
		&row.Name,
		&row.PasswordDigest,
		&row.PasswordSalt,
		&row.Email,
		&row.SubscriptionTier,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return &row, nil
}

const selectUserSQL = `select
  users.id,
  users.name,
  users.password_digest,
  users.password_salt,
  users.email,
  users.subscription_tier
from users`

func SelectUserByPK(ctx context.Context, db Queryer, id int32) (*User, error) {
	return selectUser(ctx, db, selectUserSQL+` where users.id=$1`, id)
}

func SelectUserByName(ctx context.Context, db Queryer, name string) (*User, error) {
	return selectUser(ctx, db, selectUserSQL+` where lower(users.name)=lower($1)`, name)
}

func SelectUserBySessionID(ctx context.Context, db Queryer, id []byte) (*User, error) {
	return selectUser(ctx, db, selectUserSQL+`
  join sessions on sessions.user_id=users.id
where sessions.id=$1`, id)
}

func CreateUser(ctx context.Context, db Queryer, user *User) (int32, error) {
	args := pgsql.Args{}

	var columns, values []string

	columns = append(columns, `name`)
	values = append(values, args.Use(&user.Name).String())
	columns = append(columns, `password_digest`)
	values = append(values, args.Use(&user.PasswordDigest).String())
	columns = append(columns, `password_salt`)
	values = append(values, args.Use(&user.PasswordSalt).String())
	if user.Email.Valid {
		columns = append(columns, `email`)
		values = append(values, args.Use(&user.Email).String())
	}
	if user.SubscriptionTier.Valid {
		columns = append(columns, `subscription_tier`)
		values = append(values, args.Use(&user.SubscriptionTier).String())
	}

	sql := `insert into "users"(` + strings.Join(columns, ", ") + `)
values(` + strings.Join(values, ",") + `)
returning "id"`

	err := db.QueryRow(ctx, sql, args.Values()...).Scan(&user.ID)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if strings.Contains(constraint, "email") {
				return 0, DuplicationError{Field: "email"}
			}
			return 0, DuplicationError{Field: "name"}
		}
		return 0, err
	}

	return user.ID.Int32, nil
}

// UpdateUserPassword replaces the password digest and salt of user id.
func UpdateUserPassword(ctx context.Context, db Queryer, id int32, digest, salt []byte) error {
	commandTag, err := db.Exec(ctx, `update users set password_digest=$1, password_salt=$2 where id=$3`, digest, salt, id)
	if err != nil {
		return err
	}
	if commandTag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
