package intake

import (
	"context"
	"strings"
)

type actionFunc func(context.Context, Event) error

type actionFactory struct {
	byKind map[string]actionFunc
}

func newActionFactory(onCreated, onRescheduled, onCancelled actionFunc) *actionFactory {
	return &actionFactory{
		byKind: map[string]actionFunc{
			KindCreated:     onCreated,
			KindRescheduled: onRescheduled,
			KindCancelled:   onCancelled,
		},
	}
}

func (f *actionFactory) get(kind string) (actionFunc, bool) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	fn, ok := f.byKind[kind]
	return fn, ok
}
