//go:build debug

package softbody

func assertFinite(msg string) { panic(msg) }
