//go:build cgo

package sqldoc

// go-libsql links the libSQL client library and is only available in cgo
// builds. Without it, opening DialectLibSQL fails with an unknown driver.
import _ "github.com/tursodatabase/go-libsql"
