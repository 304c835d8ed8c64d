package query

// Op — оператор условия.
type Op string

const (
	// OpIn: значение поля входит в множество.
	OpIn Op = "in"
	// OpContains: подстрока без учёта регистра.
	OpContains Op = "contains"
	// OpGTE: нижняя граница включительно.
	OpGTE Op = "gte"
	// OpLTE: верхняя граница включительно.
	OpLTE Op = "lte"
	// OpEq: точное совпадение.
	OpEq Op = "eq"
)

// Term описывает одно условие над полем сущности.
// Для OpIn значения лежат в Values, для остальных операторов используется Values[0].
type Term struct {
	Field  string
	Op     Op
	Values []any
}

// Value возвращает единственный операнд условия.
func (t Term) Value() any {
	if len(t.Values) == 0 {
		return nil
	}
	return t.Values[0]
}

// Alternative — набор условий, объединённых через AND.
type Alternative []Term

// Group объединяет через OR варианты одного логического поля.
type Group []Alternative

// Filter — группы разных полей, объединённые через AND.
// Пустой фильтр пропускает всё.
type Filter struct {
	Groups []Group
}

// Where добавляет группу из непустых вариантов. Если все варианты пустые, фильтр не меняется.
func (f Filter) Where(alternatives ...Alternative) Filter {
	group := make(Group, 0, len(alternatives))
	for _, alt := range alternatives {
		if len(alt) > 0 {
			group = append(group, alt)
		}
	}
	if len(group) == 0 {
		return f
	}

	groups := make([]Group, len(f.Groups), len(f.Groups)+1)
	copy(groups, f.Groups)
	f.Groups = append(groups, group)
	return f
}

// Empty сообщает, что фильтр не содержит условий.
func (f Filter) Empty() bool {
	return len(f.Groups) == 0
}

// Fields возвращает все поля, упомянутые в фильтре.
func (f Filter) Fields() []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, group := range f.Groups {
		for _, alt := range group {
			for _, term := range alt {
				if _, ok := seen[term.Field]; ok {
					continue
				}
				seen[term.Field] = struct{}{}
				fields = append(fields, term.Field)
			}
		}
	}
	return fields
}

// In строит вариант "поле входит в множество". Пустое множество даёт пустой вариант.
func In[V any](field string, values []V) Alternative {
	if len(values) == 0 {
		return nil
	}
	operands := make([]any, len(values))
	for i, v := range values {
		operands[i] = v
	}
	return Alternative{{Field: field, Op: OpIn, Values: operands}}
}

// Contains строит вариант поиска подстроки. Пустая подстрока даёт пустой вариант.
func Contains(field, substr string) Alternative {
	if substr == "" {
		return nil
	}
	return Alternative{{Field: field, Op: OpContains, Values: []any{substr}}}
}

// Between строит диапазон из присутствующих границ (nil означает отсутствие границы).
func Between[V any](field string, from, to *V) Alternative {
	var alt Alternative
	if from != nil {
		alt = append(alt, Term{Field: field, Op: OpGTE, Values: []any{*from}})
	}
	if to != nil {
		alt = append(alt, Term{Field: field, Op: OpLTE, Values: []any{*to}})
	}
	return alt
}

// Equal строит вариант точного совпадения, nil даёт пустой вариант.
func Equal[V any](field string, value *V) Alternative {
	if value == nil {
		return nil
	}
	return Alternative{{Field: field, Op: OpEq, Values: []any{*value}}}
}
