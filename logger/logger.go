// Package logger provides adapters for popular logger libraries to work with leafdb's Logger interface.
//
// The adapters allow you to use your existing logger with leafdb without writing boilerplate.
// Note that the standard library's slog.Logger already implements leafdb.Logger directly.
//
// Example with zap:
//
//	import (
//	    "github.com/alexhholmes/leafdb"
//	    "github.com/alexhholmes/leafdb/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    db, err := leafdb.Open("data.db", leafdb.WithLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer db.Close()
//	}
package logger
