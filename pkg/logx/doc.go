// Package logx configures earshot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Live level changes via Service.Apply without replacing loggers
//
// The zero value of Logger is a safe no-op; services accept it by value.
package logx
