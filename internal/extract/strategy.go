package extract

// Strategy is one named way of locating a field.
type Strategy[T any] struct {
	Name string
	Func func(*Page) (T, bool)
}

// First evaluates strategies in order and returns the first hit together
// with the name of the strategy that produced it.
func First[T any](p *Page, strategies []Strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if s.Func == nil {
			continue
		}
		if v, ok := s.Func(p); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, "", false
}
