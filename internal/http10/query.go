package http10

import "strings"

// SplitTarget separa path y query string de un target (p. ej., "/path?x=1&y=2").
// No realiza decodificación; eso se agrega si el proyecto lo requiere.
func SplitTarget(t string) (path string, query string) {
	path = t
	if i := strings.IndexByte(t, '?'); i >= 0 {
		path = t[:i]
		query = t[i+1:]
	}
	return
}
