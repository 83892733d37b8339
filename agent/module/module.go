// SPDX-License-Identifier: GPL-3.0-or-later

package module

import (
	"context"

	"github.com/jmxstat/zookeeperjmx/agent/metricapi"
	"github.com/jmxstat/zookeeperjmx/logger"
)

// Module is an interface that represents a collection module.
type Module interface {
	// Init does initialization.
	// If it returns error, the module will not be run.
	Init(context.Context) error

	// Check is called after Init.
	// A failed check is reported but does not stop the module: the
	// targets it polls may simply not be running yet.
	Check(context.Context) error

	// Collect runs one collection cycle and returns the records to dispatch.
	Collect(context.Context) []metricapi.Record

	// Cleanup is called on shutdown.
	Cleanup(context.Context)

	GetBase() *Base

	Configuration() any
}

// Base is a helper struct. All modules should embed this struct.
type Base struct {
	*logger.Logger
}

func (b *Base) GetBase() *Base { return b }

func (b *Base) SetLogger(l *logger.Logger) { b.Logger = l }
