package base

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB общий интерфейс для пула и транзакции: репозиторий не знает, в транзакции он или нет
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Коды ошибок Postgres
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

// ExecAffected выполняет команду и возвращает количество затронутых строк
func ExecAffected(ctx context.Context, db DB, query string, args ...any) (int64, error) {
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsExclusionViolation нарушение EXCLUDE-ограничения (пересечение интервалов)
func IsExclusionViolation(err error) bool {
	return pgErrorCode(err) == codeExclusionViolation
}

// IsUniqueViolation нарушение уникального индекса
func IsUniqueViolation(err error) bool {
	return pgErrorCode(err) == codeUniqueViolation
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Where собирает условия WHERE с позиционными параметрами $1, $2, ...
type Where struct {
	conds []string
	args  []any
}

// Add добавляет условие. В cond каждый %d заменяется номером следующего параметра.
func (w *Where) Add(cond string, args ...any) {
	placeholders := make([]any, len(args))
	for i := range args {
		placeholders[i] = len(w.args) + i + 1
	}
	w.conds = append(w.conds, fmt.Sprintf(cond, placeholders...))
	w.args = append(w.args, args...)
}

// Arg добавляет параметр без условия и возвращает его номер
func (w *Where) Arg(v any) int {
	w.args = append(w.args, v)
	return len(w.args)
}

// SQL возвращает " WHERE ..." или пустую строку
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args параметры запроса в порядке номеров
func (w *Where) Args() []any {
	return w.args
}

// Paginate дописывает LIMIT/OFFSET. Нулевой limit = без ограничения.
func (w *Where) Paginate(limit, offset int) string {
	var sb strings.Builder
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT $%d", w.Arg(limit))
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET $%d", w.Arg(offset))
	}
	return sb.String()
}
