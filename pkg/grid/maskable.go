package grid

// Maskable is a cell value that may be absent. The zero value is absent.
type Maskable[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Maskable[T] {
	return Maskable[T]{Value: v, Valid: true}
}

// Get returns the value and whether it is present.
func (m Maskable[T]) Get() (T, bool) {
	return m.Value, m.Valid
}

// IsSet is a predicate usable with Grid.Any and Grid.ContentBounds.
func IsSet[T any](m Maskable[T]) bool {
	return m.Valid
}
