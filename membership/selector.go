package membership

// Selector picks members by their attributes.
type Selector interface {
	Select(m Member) bool
}

// SelectorFunc adapts a plain function to the Selector interface.
type SelectorFunc func(m Member) bool

func (f SelectorFunc) Select(m Member) bool {
	return f(m)
}

// Any matches every member.
func Any() Selector {
	return SelectorFunc(func(Member) bool { return true })
}

// RoleIn matches members whose process role is one of the given roles.
func RoleIn(roles ...Role) Selector {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}

	return SelectorFunc(func(m Member) bool {
		_, ok := set[m.Role()]
		return ok
	})
}

// And matches members accepted by all of the selectors.
func And(selectors ...Selector) Selector {
	return SelectorFunc(func(m Member) bool {
		for _, s := range selectors {
			if !s.Select(m) {
				return false
			}
		}

		return true
	})
}

// Or matches members accepted by at least one of the selectors.
func Or(selectors ...Selector) Selector {
	return SelectorFunc(func(m Member) bool {
		for _, s := range selectors {
			if s.Select(m) {
				return true
			}
		}

		return false
	})
}

func Not(s Selector) Selector {
	return SelectorFunc(func(m Member) bool {
		return !s.Select(m)
	})
}

// Filter returns the members accepted by the selector, preserving order.
func Filter(members []Member, s Selector) []Member {
	var res []Member

	for _, m := range members {
		if s.Select(m) {
			res = append(res, m)
		}
	}

	return res
}
