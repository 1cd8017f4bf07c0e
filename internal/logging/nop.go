package logging

import "context"

// Nop discards everything. Handy as a default and in tests.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any) {}

func (Nop) Info(context.Context, string, ...any) {}

func (Nop) Warn(context.Context, string, ...any) {}

func (Nop) Error(context.Context, string, ...any) {}

func (n Nop) With(...any) Logger { return n }
