// Package logx is notifboard's structured logger: a small value type over
// zerolog that every component derives its own logger from with With.
//
// Output goes to stdout (human console or JSON lines) and optionally to an
// append-only JSON file. Service.Apply swaps sinks and level at runtime;
// loggers handed out earlier follow the change.
package logx
