// Package ptrs is the place to get a pointer to a value without ceremony.
package ptrs

// Ptr is the generic version of the "&value" you always wanted.
func Ptr[T any](val T) *T {
	return &val
}
