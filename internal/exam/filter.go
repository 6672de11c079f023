package exam

// FilterSet selects questions from the bank. Values inside one dimension are
// OR-ed, dimensions are AND-ed, and an empty dimension matches everything.
type FilterSet struct {
	Subjects      []string    `json:"subjects,omitempty"`
	Difficulties  []string    `json:"difficulties,omitempty"`
	GradeLevels   []string    `json:"grade_levels,omitempty"`
	QuestionTypes []Archetype `json:"question_types,omitempty"`
	Categories    []string    `json:"categories,omitempty"`
}

// Matches reports whether q is visible to assembly and satisfies f.
func (f FilterSet) Matches(q Question) bool {
	if q.Deleted || q.Disabled {
		return false
	}
	return anyOf(f.Subjects, q.Subject) &&
		anyOf(f.Difficulties, q.Difficulty) &&
		anyOf(f.GradeLevels, q.GradeLevel) &&
		anyOf(f.QuestionTypes, q.Type) &&
		anyOf(f.Categories, q.Category)
}

func (f FilterSet) Clone() FilterSet {
	return FilterSet{
		Subjects:      cloneSlice(f.Subjects),
		Difficulties:  cloneSlice(f.Difficulties),
		GradeLevels:   cloneSlice(f.GradeLevels),
		QuestionTypes: cloneSlice(f.QuestionTypes),
		Categories:    cloneSlice(f.Categories),
	}
}

func anyOf[T comparable](allowed []T, v T) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
