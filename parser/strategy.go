package parser

// Strategy is one way of recovering a value. It reports false when it could
// not find anything, so the next strategy in a chain gets a chance.
type Strategy[T any] func() (T, bool)

// FirstOf runs the strategies in order and returns the first hit.
func FirstOf[T any](strategies ...Strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// firstText adapts a string chain to a nullable record field.
func firstText(strategies ...Strategy[string]) *string {
	v, ok := FirstOf(strategies...)
	if !ok {
		return nil
	}
	return optional(v)
}
