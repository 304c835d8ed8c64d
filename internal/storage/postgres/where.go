package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// columns сопоставляет логическое имя поля с SQL-выражением.
// Только перечисленные поля попадают в WHERE и ORDER BY.
type columns map[string]string

func (c columns) sortable(field string) bool {
	_, ok := c[field]
	return ok
}

// sqlBuilder накапливает текст запроса и позиционные аргументы.
type sqlBuilder struct {
	sb   strings.Builder
	args []any
}

func (b *sqlBuilder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

// bind добавляет аргумент и возвращает его плейсхолдер.
func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) String() string {
	return b.sb.String()
}

// where дописывает " WHERE ..." для непустого фильтра.
func (b *sqlBuilder) where(filter query.Filter, cols columns) error {
	if filter.Empty() {
		return nil
	}

	groups := make([]string, 0, len(filter.Groups))
	for _, group := range filter.Groups {
		alts := make([]string, 0, len(group))
		for _, alt := range group {
			terms := make([]string, 0, len(alt))
			for _, term := range alt {
				cond, err := b.term(term, cols)
				if err != nil {
					return err
				}
				terms = append(terms, cond)
			}
			alts = append(alts, "("+strings.Join(terms, " AND ")+")")
		}
		groups = append(groups, "("+strings.Join(alts, " OR ")+")")
	}

	b.write(" WHERE ", strings.Join(groups, " AND "))
	return nil
}

func (b *sqlBuilder) term(t query.Term, cols columns) (string, error) {
	col, ok := cols[t.Field]
	if !ok {
		return "", fmt.Errorf("%w: %q", query.ErrUnknownFilterField, t.Field)
	}
	if len(t.Values) == 0 {
		return "", fmt.Errorf("%w: %q has no operand", query.ErrBadFilterValue, t.Field)
	}

	switch t.Op {
	case query.OpIn:
		placeholders := make([]string, len(t.Values))
		for i, v := range t.Values {
			placeholders[i] = b.bind(v)
		}
		return col + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	case query.OpContains:
		s, ok := t.Value().(string)
		if !ok {
			return "", fmt.Errorf("%w: %q expects text", query.ErrBadFilterValue, t.Field)
		}
		return col + "::text ILIKE " + b.bind("%"+escapeLike(s)+"%") + ` ESCAPE '\'`, nil
	case query.OpGTE:
		return col + " >= " + b.bind(t.Value()), nil
	case query.OpLTE:
		return col + " <= " + b.bind(t.Value()), nil
	case query.OpEq:
		return col + " = " + b.bind(t.Value()), nil
	default:
		return "", fmt.Errorf("%w: operator %q", query.ErrBadFilterValue, t.Op)
	}
}

// page дописывает ORDER BY с добором по id и LIMIT/OFFSET.
func (b *sqlBuilder) page(w query.Window, cols columns) error {
	col, ok := cols[w.Sort.Field]
	if !ok {
		return fmt.Errorf("%w: %q", query.ErrUnknownSortField, w.Sort.Field)
	}

	dir := "ASC"
	if w.Sort.Direction == query.Desc {
		dir = "DESC"
	}
	b.write(" ORDER BY ", col, " ", dir)
	if idCol := cols["id"]; idCol != "" && idCol != col {
		b.write(", ", idCol, " ASC")
	}

	if w.Limit > 0 {
		b.write(" LIMIT ", b.bind(w.Limit))
	}
	if w.Offset > 0 {
		b.write(" OFFSET ", b.bind(w.Offset))
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
