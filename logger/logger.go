// Package logger provides adapters for popular logger libraries to work with refdb's Logger interface.
//
// The adapters allow you to use your existing logger with refdb without writing boilerplate.
// Note that the standard library's slog.Logger already implements refdb.Logger directly.
//
// Example with zap:
//
//	import (
//	    "refdb"
//	    "refdb/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    table, err := refdb.Open(refdb.NewMemStore(),
//	        refdb.WithLogger(logger.NewZap(zapLogger)),
//	    )
//	    if err != nil {
//	        panic(err)
//	    }
//	    _ = table
//	}
package logger
